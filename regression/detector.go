// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regression detects performance regressions by comparing a
// current statistics summary against a baseline summary or an ordered
// metric history.
//
// The convention throughout is larger-is-worse (timings, memory): a
// positive mean shift is a regression, a negative one an improvement.
package regression

import (
	"fmt"
	"math"

	"github.com/benchgate/benchgate/stats"
	"github.com/benchgate/benchgate/trend"
)

// -----------------------------------------------------------------------------
// Kind and Severity
// -----------------------------------------------------------------------------

// Kind identifies what kind of change was detected.
type Kind string

const (
	// KindNone indicates no determination or no change beyond threshold.
	KindNone Kind = "none"

	// KindMean indicates a mean shift in the worsening direction.
	KindMean Kind = "mean"

	// KindTrend indicates a degrading trend over the history window.
	KindTrend Kind = "trend"

	// KindImprovement indicates a mean shift in the improving direction.
	KindImprovement Kind = "improvement"
)

// Severity buckets the magnitude of a detected change.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityFor buckets an absolute percent change.
func severityFor(absChange float64) Severity {
	switch {
	case absChange > 0.5:
		return SeverityCritical
	case absChange > 0.25:
		return SeverityHigh
	case absChange > 0.1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// -----------------------------------------------------------------------------
// Reports
// -----------------------------------------------------------------------------

// Report describes the outcome of a point comparison.
type Report struct {
	// Detected is true if the change exceeded the threshold.
	Detected bool `json:"detected"`

	// Kind classifies the change.
	Kind Kind `json:"kind"`

	// Severity buckets the magnitude. SeverityNone when not detected.
	Severity Severity `json:"severity"`

	// Confidence is the separation heuristic in [0, 1].
	Confidence float64 `json:"confidence"`

	// PercentChange is (current.Mean - baseline.Mean) / baseline.Mean.
	PercentChange float64 `json:"percent_change"`

	// Details carries supplementary values for reporting.
	Details map[string]float64 `json:"details,omitempty"`
}

// TrendSignal describes the outcome of a trend comparison.
type TrendSignal struct {
	// Detected is true if a degrading trend exceeded the threshold.
	Detected bool `json:"detected"`

	// Direction is the trend direction over the window.
	Direction trend.Direction `json:"direction"`

	// NormalizedSlope is the fitted slope divided by the window mean.
	NormalizedSlope float64 `json:"normalized_slope"`

	// Window is the number of points analyzed.
	Window int `json:"window"`
}

// -----------------------------------------------------------------------------
// Detector
// -----------------------------------------------------------------------------

// DefaultThreshold is the relative change that counts as a regression.
const DefaultThreshold = 0.10

// DefaultTrendWindow is the history window for trend regression checks.
const DefaultTrendWindow = 10

// Config configures a Detector.
type Config struct {
	// Threshold is the relative change beyond which a regression is
	// flagged (e.g., 0.10 = 10%).
	// Default: 0.10
	Threshold float64

	// TrendWindow is the number of trailing history points examined by
	// DetectTrend.
	// Default: 10
	TrendWindow int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		TrendWindow: DefaultTrendWindow,
	}
}

// Detector compares current statistics against baselines and histories.
//
// Thread Safety: Safe for concurrent use (stateless).
type Detector struct {
	threshold   float64
	trendWindow int
}

// NewDetector creates a regression detector.
//
// Inputs:
//   - cfg: Detection configuration. Non-positive fields fall back to
//     package defaults.
//
// Outputs:
//   - *Detector: The new detector. Never nil.
func NewDetector(cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.TrendWindow <= 0 {
		cfg.TrendWindow = DefaultTrendWindow
	}
	return &Detector{
		threshold:   cfg.Threshold,
		trendWindow: cfg.TrendWindow,
	}
}

// Compare performs a point regression check of current against baseline.
//
// Description:
//
//	Computes the relative mean change and flags a regression when its
//	magnitude exceeds the configured threshold. Positive change means
//	worse (larger-is-worse convention); negative change beyond the
//	threshold is reported as an improvement. A zero baseline mean makes
//	no determination.
//
//	Confidence is the separation heuristic
//	clamp(1 - avgStdDev/|Δmean|, 0, 1), with 1.0 when both standard
//	deviations are zero. It is an ad hoc measure of how cleanly the two
//	distributions separate, not a statistical confidence level; its
//	exact formula is part of the contract and must not be "improved".
//
// Inputs:
//   - current: Summary of the current run.
//   - baseline: Summary of the baseline run.
//
// Outputs:
//   - Report: The comparison outcome. Never an error; degenerate inputs
//     yield Kind=KindNone with Detected=false.
//
// Thread Safety: Safe for concurrent use.
func (d *Detector) Compare(current, baseline stats.Summary) Report {
	report := Report{
		Kind:     KindNone,
		Severity: SeverityNone,
		Details:  map[string]float64{},
	}

	if baseline.Mean == 0 {
		// No determination possible against a zero baseline.
		return report
	}

	percentChange := (current.Mean - baseline.Mean) / baseline.Mean
	report.PercentChange = percentChange
	report.Details["current_mean"] = current.Mean
	report.Details["baseline_mean"] = baseline.Mean

	report.Confidence = separationConfidence(current, baseline)

	if math.Abs(percentChange) <= d.threshold {
		return report
	}

	report.Detected = true
	report.Severity = severityFor(math.Abs(percentChange))
	if percentChange > 0 {
		report.Kind = KindMean
	} else {
		report.Kind = KindImprovement
	}

	return report
}

// CompareValue checks current against a raw baseline metric value.
//
// A raw value carries no spread information, so confidence degenerates
// to the same heuristic with the baseline standard deviation taken as
// zero.
func (d *Detector) CompareValue(current stats.Summary, baselineValue float64) Report {
	return d.Compare(current, stats.Summary{Mean: baselineValue})
}

// DetectTrend checks the trailing history window for a degrading trend.
//
// Description:
//
//	Fits a least-squares slope over the last TrendWindow points,
//	normalizes it by the window mean, and flags a trend regression when
//	the normalized slope falls below -Threshold. Under larger-is-worse
//	metrics a *rising* series degrades, so callers tracking timings
//	should pass the history as-is and interpret Direction accordingly;
//	the detection condition follows the historical contract (normalized
//	slope < -threshold).
//
// Inputs:
//   - history: Ordered metric values, oldest first.
//
// Outputs:
//   - TrendSignal: Detection outcome. Direction is
//     trend.DirectionInsufficientData when the history is shorter than
//     the window.
//
// Thread Safety: Safe for concurrent use.
func (d *Detector) DetectTrend(history []float64) TrendSignal {
	if len(history) < d.trendWindow {
		return TrendSignal{
			Direction: trend.DirectionInsufficientData,
			Window:    len(history),
		}
	}

	analyzer := trend.NewAnalyzer(trend.Config{Window: d.trendWindow})
	report := analyzer.Analyze(history)

	signal := TrendSignal{
		Direction: report.Direction,
		Window:    report.Window,
	}

	window := history[len(history)-d.trendWindow:]
	mean := stats.Mean(window)
	if mean == 0 {
		return signal
	}

	signal.NormalizedSlope = report.Slope / mean
	if signal.NormalizedSlope < -d.threshold {
		signal.Detected = true
		signal.Direction = trend.DirectionDegrading
	}

	return signal
}

// separationConfidence computes the historical separation heuristic.
func separationConfidence(current, baseline stats.Summary) float64 {
	avgStd := (current.StdDev + baseline.StdDev) / 2
	if avgStd == 0 {
		return 1.0
	}

	diff := math.Abs(current.Mean - baseline.Mean)
	if diff == 0 {
		return 0
	}

	c := 1 - avgStd/diff
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// String renders a compact description of the report for logs.
func (r Report) String() string {
	if !r.Detected {
		return fmt.Sprintf("no regression (change %+.1f%%)", r.PercentChange*100)
	}
	return fmt.Sprintf("%s [%s] change %+.1f%% (confidence %.2f)",
		r.Kind, r.Severity, r.PercentChange*100, r.Confidence)
}
