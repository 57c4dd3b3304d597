// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes descriptive statistics over benchmark sample
// sequences.
//
// All functions in this package are pure: they never mutate their input
// slices and hold no shared state, so they are safe to call from any
// goroutine with independent inputs. Sample order is preserved for
// callers that feed the same sequence into trend analysis; percentile
// computation works on an internal sorted copy.
package stats

import (
	"errors"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoSamples indicates statistics were requested on an empty sequence.
	ErrNoSamples = errors.New("no samples collected")
)

// -----------------------------------------------------------------------------
// Summary
// -----------------------------------------------------------------------------

// ConfidenceInterval is a symmetric interval around the sample mean.
type ConfidenceInterval struct {
	// Lower is the lower bound.
	Lower float64 `json:"lower"`

	// Upper is the upper bound.
	Upper float64 `json:"upper"`

	// Margin is the half-width (z * stddev / sqrt(n)).
	Margin float64 `json:"margin"`

	// Level is the confidence level used (e.g., 0.95).
	Level float64 `json:"level"`
}

// Contains returns true if the interval contains the value.
func (ci ConfidenceInterval) Contains(v float64) bool {
	return v >= ci.Lower && v <= ci.Upper
}

// Summary is an immutable snapshot of descriptive statistics for one
// sample sequence. It is created by Engine.Compute and never mutated
// afterwards.
//
// Thread Safety: Safe for concurrent read access after creation.
type Summary struct {
	// Count is the number of samples.
	Count int `json:"count"`

	// Mean is the arithmetic mean.
	Mean float64 `json:"mean"`

	// Median is the 50th percentile.
	Median float64 `json:"median"`

	// StdDev is the population standard deviation.
	StdDev float64 `json:"std_dev"`

	// Variance is StdDev squared.
	Variance float64 `json:"variance"`

	// Min is the smallest sample.
	Min float64 `json:"min"`

	// Max is the largest sample.
	Max float64 `json:"max"`

	// P50 is the 50th percentile.
	P50 float64 `json:"p50"`

	// P95 is the 95th percentile.
	P95 float64 `json:"p95"`

	// P99 is the 99th percentile.
	P99 float64 `json:"p99"`

	// CI is the confidence interval for the mean.
	CI ConfidenceInterval `json:"confidence_interval"`
}

// OutlierReport lists the samples flagged as outliers by modified
// z-score against a threshold in standard-deviation units.
type OutlierReport struct {
	// Outliers holds the flagged sample values, in input order.
	Outliers []float64 `json:"outliers"`

	// Indices holds the positions of the flagged samples in the input.
	Indices []int `json:"outlier_indices"`

	// Count is len(Outliers).
	Count int `json:"outlier_count"`

	// Percentage is Count over total samples, in percent.
	Percentage float64 `json:"outlier_percentage"`

	// Threshold is the z-score threshold that was applied.
	Threshold float64 `json:"threshold"`
}

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// DefaultConfidenceLevel is the confidence level used when none is given.
const DefaultConfidenceLevel = 0.95

// DefaultOutlierThreshold is the z-score threshold used when none is given.
const DefaultOutlierThreshold = 2.5

// Engine computes descriptive statistics over sample sequences.
//
// Description:
//
//	Engine is configured once with a confidence level and then applied
//	to any number of sample sequences. The confidence interval uses a
//	normal-distribution approximation: z = 1.96 for levels >= 0.95 and
//	z = 1.645 otherwise, regardless of sample size. This is a deliberate
//	simplification carried over from the historical behavior; callers
//	that need a true Student's-t interval must compute it themselves.
//
// Thread Safety: Safe for concurrent use (stateless after creation).
type Engine struct {
	confidenceLevel float64
}

// NewEngine creates a statistics engine.
//
// Inputs:
//   - confidenceLevel: Confidence level for intervals. Values outside
//     (0, 1) fall back to DefaultConfidenceLevel.
//
// Outputs:
//   - *Engine: The new engine. Never nil.
func NewEngine(confidenceLevel float64) *Engine {
	if confidenceLevel <= 0 || confidenceLevel >= 1 {
		confidenceLevel = DefaultConfidenceLevel
	}
	return &Engine{confidenceLevel: confidenceLevel}
}

// ConfidenceLevel returns the configured confidence level.
func (e *Engine) ConfidenceLevel() float64 {
	return e.confidenceLevel
}

// Compute calculates a Summary for the given samples.
//
// Description:
//
//	Computes count, mean, median, population standard deviation,
//	variance, min, max, P50/P95/P99, and a confidence interval for the
//	mean. Percentiles use linear interpolation on a sorted copy; the
//	input slice is not reordered.
//
// Inputs:
//   - samples: Sample values. Must not be empty.
//
// Outputs:
//   - Summary: Computed statistics with all fields populated.
//   - error: ErrNoSamples if samples is empty.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) Compute(samples []float64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, ErrNoSamples
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	n := len(sorted)
	mean := Mean(samples)
	variance := Variance(samples, mean)
	stdDev := math.Sqrt(variance)

	summary := Summary{
		Count:    n,
		Mean:     mean,
		StdDev:   stdDev,
		Variance: variance,
		Min:      sorted[0],
		Max:      sorted[n-1],
		Median:   Percentile(sorted, 50),
		P50:      Percentile(sorted, 50),
		P95:      Percentile(sorted, 95),
		P99:      Percentile(sorted, 99),
	}

	// Normal approximation: z depends only on the level, not on n.
	z := 1.645
	if e.confidenceLevel >= 0.95 {
		z = 1.96
	}
	margin := z * stdDev / math.Sqrt(float64(n))
	summary.CI = ConfidenceInterval{
		Lower:  mean - margin,
		Upper:  mean + margin,
		Margin: margin,
		Level:  e.confidenceLevel,
	}

	return summary, nil
}

// DetectOutliers flags samples whose modified z-score reaches the
// threshold.
//
// Description:
//
//	For each sample, computes the modified z-score
//	|x - median| / stddev (median-centered, so a single extreme value
//	does not drag the center toward itself) and flags the sample when
//	the score reaches threshold. A zero standard deviation flags
//	nothing (all samples identical; no division is attempted).
//
// Inputs:
//   - samples: Sample values. Empty input yields an empty report.
//   - threshold: Z-score threshold. Non-positive values fall back to
//     DefaultOutlierThreshold.
//
// Outputs:
//   - OutlierReport: Flagged values and their input positions.
//
// Thread Safety: Safe for concurrent use.
func (e *Engine) DetectOutliers(samples []float64, threshold float64) OutlierReport {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}

	report := OutlierReport{Threshold: threshold}
	if len(samples) == 0 {
		return report
	}

	mean := Mean(samples)
	stdDev := math.Sqrt(Variance(samples, mean))
	if stdDev == 0 {
		return report
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	median := Percentile(sorted, 50)

	for i, x := range samples {
		z := math.Abs(x-median) / stdDev
		if z >= threshold {
			report.Outliers = append(report.Outliers, x)
			report.Indices = append(report.Indices, i)
		}
	}

	report.Count = len(report.Outliers)
	report.Percentage = float64(report.Count) / float64(len(samples)) * 100
	return report
}

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// Mean calculates the arithmetic mean. Returns 0 for empty input.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Variance calculates the population variance around the given mean.
func Variance(samples []float64, mean float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(samples))
}

// Percentile calculates the p-th percentile (0-100) of sorted samples
// using linear interpolation between the two nearest ranks.
//
// Inputs:
//   - sorted: Samples in ascending order. Must be pre-sorted.
//   - p: Percentile in [0, 100].
//
// Outputs:
//   - float64: Interpolated percentile value. 0 for empty input.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	index := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	// Clamp if the index rounds past the end.
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	if lower == upper {
		return sorted[lower]
	}

	fraction := index - float64(lower)
	return sorted[lower]*(1-fraction) + sorted[upper]*fraction
}
