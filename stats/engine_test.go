// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// -----------------------------------------------------------------------------
// Compute Tests
// -----------------------------------------------------------------------------

func TestCompute(t *testing.T) {
	t.Run("basic statistics", func(t *testing.T) {
		engine := NewEngine(0.95)

		summary, err := engine.Compute([]float64{1, 2, 3, 4, 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if summary.Count != 5 {
			t.Errorf("expected count 5, got %d", summary.Count)
		}
		if summary.Mean != 3 {
			t.Errorf("expected mean 3, got %v", summary.Mean)
		}
		if summary.Median != 3 {
			t.Errorf("expected median 3, got %v", summary.Median)
		}
		if summary.Min != 1 || summary.Max != 5 {
			t.Errorf("expected min 1 max 5, got %v and %v", summary.Min, summary.Max)
		}
		if summary.P50 != 3 {
			t.Errorf("expected p50 3, got %v", summary.P50)
		}
		// Population std dev of 1..5 is sqrt(2) ~= 1.414
		if !almostEqual(summary.StdDev, math.Sqrt2, 1e-6) {
			t.Errorf("expected std dev ~1.414, got %v", summary.StdDev)
		}
		if !almostEqual(summary.Variance, 2, 1e-6) {
			t.Errorf("expected variance 2, got %v", summary.Variance)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		engine := NewEngine(0.95)

		_, err := engine.Compute(nil)
		if !errors.Is(err, ErrNoSamples) {
			t.Errorf("expected ErrNoSamples, got %v", err)
		}
	})

	t.Run("single sample", func(t *testing.T) {
		engine := NewEngine(0.95)

		summary, err := engine.Compute([]float64{42})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if summary.Mean != 42 || summary.Median != 42 || summary.Min != 42 || summary.Max != 42 {
			t.Errorf("degenerate summary wrong: %+v", summary)
		}
		if summary.StdDev != 0 {
			t.Errorf("expected zero std dev, got %v", summary.StdDev)
		}
		if summary.CI.Margin != 0 {
			t.Errorf("expected zero margin, got %v", summary.CI.Margin)
		}
	})

	t.Run("does not reorder input", func(t *testing.T) {
		engine := NewEngine(0.95)
		samples := []float64{5, 1, 4, 2, 3}

		if _, err := engine.Compute(samples); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []float64{5, 1, 4, 2, 3}
		for i := range want {
			if samples[i] != want[i] {
				t.Fatalf("input reordered at %d: %v", i, samples)
			}
		}
	})

	t.Run("confidence interval z selection", func(t *testing.T) {
		samples := []float64{10, 12, 14, 16, 18, 20, 22, 24, 26}

		for _, tc := range []struct {
			level float64
			z     float64
		}{
			{0.95, 1.96},
			{0.99, 1.96},
			{0.90, 1.645},
		} {
			engine := NewEngine(tc.level)
			summary, err := engine.Compute(samples)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			expected := tc.z * summary.StdDev / math.Sqrt(float64(summary.Count))
			if !almostEqual(summary.CI.Margin, expected, epsilon) {
				t.Errorf("level %v: expected margin %v, got %v", tc.level, expected, summary.CI.Margin)
			}
			if summary.CI.Level != tc.level {
				t.Errorf("level %v not recorded, got %v", tc.level, summary.CI.Level)
			}
			if !almostEqual(summary.CI.Upper-summary.CI.Lower, 2*expected, epsilon) {
				t.Errorf("interval not symmetric around mean")
			}
		}
	})

	t.Run("invalid level falls back to default", func(t *testing.T) {
		engine := NewEngine(0)
		if engine.ConfidenceLevel() != DefaultConfidenceLevel {
			t.Errorf("expected default level, got %v", engine.ConfidenceLevel())
		}
	})
}

// -----------------------------------------------------------------------------
// Percentile Tests
// -----------------------------------------------------------------------------

func TestPercentile(t *testing.T) {
	t.Run("interpolation", func(t *testing.T) {
		sorted := []float64{10, 20, 30, 40}

		// idx = 0.5 * 3 = 1.5 -> 25
		if got := Percentile(sorted, 50); !almostEqual(got, 25, epsilon) {
			t.Errorf("expected p50 25, got %v", got)
		}
		// idx = 0.25 * 3 = 0.75 -> 17.5
		if got := Percentile(sorted, 25); !almostEqual(got, 17.5, epsilon) {
			t.Errorf("expected p25 17.5, got %v", got)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		sorted := []float64{1, 2, 3}

		if got := Percentile(sorted, 0); got != 1 {
			t.Errorf("expected p0 1, got %v", got)
		}
		if got := Percentile(sorted, 100); got != 3 {
			t.Errorf("expected p100 3, got %v", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := Percentile(nil, 50); got != 0 {
			t.Errorf("expected 0 for empty input, got %v", got)
		}
	})
}

// -----------------------------------------------------------------------------
// Outlier Tests
// -----------------------------------------------------------------------------

func TestDetectOutliers(t *testing.T) {
	t.Run("flags the extreme value", func(t *testing.T) {
		engine := NewEngine(0.95)

		report := engine.DetectOutliers([]float64{10, 10, 10, 10, 100}, 2.5)

		// median=10, stddev=36, so z(100) = 90/36 = 2.5 and z(10) = 0.
		if report.Count != 1 {
			t.Fatalf("expected exactly 1 outlier, got %d (%v)", report.Count, report.Outliers)
		}
		if report.Outliers[0] != 100 {
			t.Errorf("expected outlier value 100, got %v", report.Outliers[0])
		}
		if report.Indices[0] != 4 {
			t.Errorf("expected outlier index 4, got %d", report.Indices[0])
		}
		if !almostEqual(report.Percentage, 20, epsilon) {
			t.Errorf("expected 20%% outliers, got %v", report.Percentage)
		}
	})

	t.Run("zero variance flags nothing", func(t *testing.T) {
		engine := NewEngine(0.95)

		report := engine.DetectOutliers([]float64{7, 7, 7, 7}, 2.5)
		if report.Count != 0 {
			t.Errorf("expected no outliers, got %d", report.Count)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		engine := NewEngine(0.95)

		report := engine.DetectOutliers(nil, 2.5)
		if report.Count != 0 || report.Percentage != 0 {
			t.Errorf("expected empty report, got %+v", report)
		}
	})

	t.Run("default threshold applied", func(t *testing.T) {
		engine := NewEngine(0.95)

		report := engine.DetectOutliers([]float64{1, 2, 3}, 0)
		if report.Threshold != DefaultOutlierThreshold {
			t.Errorf("expected default threshold, got %v", report.Threshold)
		}
	})
}
