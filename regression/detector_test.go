// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regression

import (
	"math"
	"testing"

	"github.com/benchgate/benchgate/stats"
	"github.com/benchgate/benchgate/trend"
)

func TestCompare(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("critical regression", func(t *testing.T) {
		report := detector.Compare(
			stats.Summary{Mean: 160},
			stats.Summary{Mean: 100},
		)

		if !report.Detected {
			t.Fatal("expected detection")
		}
		if math.Abs(report.PercentChange-0.6) > 1e-9 {
			t.Errorf("expected percent change 0.6, got %v", report.PercentChange)
		}
		if report.Kind != KindMean {
			t.Errorf("expected kind mean, got %s", report.Kind)
		}
		if report.Severity != SeverityCritical {
			t.Errorf("expected critical severity, got %s", report.Severity)
		}
	})

	t.Run("below threshold", func(t *testing.T) {
		report := detector.Compare(
			stats.Summary{Mean: 105},
			stats.Summary{Mean: 100},
		)

		if report.Detected {
			t.Error("expected no detection for 5% change at 10% threshold")
		}
		if report.Kind != KindNone {
			t.Errorf("expected kind none, got %s", report.Kind)
		}
		if report.Severity != SeverityNone {
			t.Errorf("expected severity none, got %s", report.Severity)
		}
		if math.Abs(report.PercentChange-0.05) > 1e-9 {
			t.Errorf("expected percent change 0.05, got %v", report.PercentChange)
		}
	})

	t.Run("improvement", func(t *testing.T) {
		report := detector.Compare(
			stats.Summary{Mean: 70},
			stats.Summary{Mean: 100},
		)

		if !report.Detected {
			t.Fatal("expected detection")
		}
		if report.Kind != KindImprovement {
			t.Errorf("expected kind improvement, got %s", report.Kind)
		}
		if report.Severity != SeverityHigh {
			t.Errorf("expected high severity for 30%% change, got %s", report.Severity)
		}
	})

	t.Run("zero baseline makes no determination", func(t *testing.T) {
		report := detector.Compare(
			stats.Summary{Mean: 50},
			stats.Summary{Mean: 0},
		)

		if report.Detected {
			t.Error("expected no detection against zero baseline")
		}
		if report.Kind != KindNone {
			t.Errorf("expected kind none, got %s", report.Kind)
		}
	})

	t.Run("severity buckets", func(t *testing.T) {
		for _, tc := range []struct {
			current  float64
			expected Severity
		}{
			{111, SeverityMedium},   // 11%
			{126, SeverityHigh},     // 26%
			{151, SeverityCritical}, // 51%
		} {
			report := detector.Compare(
				stats.Summary{Mean: tc.current},
				stats.Summary{Mean: 100},
			)
			if report.Severity != tc.expected {
				t.Errorf("mean %v: expected %s, got %s", tc.current, tc.expected, report.Severity)
			}
		}
	})
}

func TestSeparationConfidence(t *testing.T) {
	detector := NewDetector(DefaultConfig())

	t.Run("zero spread gives full confidence", func(t *testing.T) {
		report := detector.Compare(
			stats.Summary{Mean: 200, StdDev: 0},
			stats.Summary{Mean: 100, StdDev: 0},
		)
		if report.Confidence != 1.0 {
			t.Errorf("expected confidence 1.0, got %v", report.Confidence)
		}
	})

	t.Run("separation formula", func(t *testing.T) {
		// avgStd = 20, diff = 100 -> 1 - 20/100 = 0.8
		report := detector.Compare(
			stats.Summary{Mean: 200, StdDev: 30},
			stats.Summary{Mean: 100, StdDev: 10},
		)
		if math.Abs(report.Confidence-0.8) > 1e-9 {
			t.Errorf("expected confidence 0.8, got %v", report.Confidence)
		}
	})

	t.Run("overlapping distributions clamp to zero", func(t *testing.T) {
		// avgStd = 200 > diff = 100 -> negative, clamped.
		report := detector.Compare(
			stats.Summary{Mean: 200, StdDev: 200},
			stats.Summary{Mean: 100, StdDev: 200},
		)
		if report.Confidence != 0 {
			t.Errorf("expected confidence 0, got %v", report.Confidence)
		}
	})
}

func TestCompareValue(t *testing.T) {
	detector := NewDetector(Config{Threshold: 0.10})

	report := detector.CompareValue(stats.Summary{Mean: 130}, 100)
	if !report.Detected || report.Kind != KindMean {
		t.Errorf("expected mean regression against raw value, got %+v", report)
	}
}

func TestDetectTrend(t *testing.T) {
	t.Run("insufficient history", func(t *testing.T) {
		detector := NewDetector(DefaultConfig())

		signal := detector.DetectTrend([]float64{1, 2, 3})
		if signal.Detected {
			t.Error("expected no detection")
		}
		if signal.Direction != trend.DirectionInsufficientData {
			t.Errorf("expected insufficient_data, got %s", signal.Direction)
		}
	})

	t.Run("falling series flags trend regression", func(t *testing.T) {
		detector := NewDetector(Config{Threshold: 0.10, TrendWindow: 10})

		// Falls from 100 to 10: normalized slope well below -0.10.
		history := make([]float64, 10)
		for i := range history {
			history[i] = float64(100 - 10*i)
		}

		signal := detector.DetectTrend(history)
		if !signal.Detected {
			t.Fatalf("expected detection, got %+v", signal)
		}
		if signal.Direction != trend.DirectionDegrading {
			t.Errorf("expected degrading, got %s", signal.Direction)
		}
		if signal.NormalizedSlope >= 0 {
			t.Errorf("expected negative normalized slope, got %v", signal.NormalizedSlope)
		}
	})

	t.Run("flat series does not flag", func(t *testing.T) {
		detector := NewDetector(Config{Threshold: 0.10, TrendWindow: 10})

		history := make([]float64, 10)
		for i := range history {
			history[i] = 50
		}

		signal := detector.DetectTrend(history)
		if signal.Detected {
			t.Error("expected no detection for flat history")
		}
	})
}
