// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trend fits linear trends to ordered metric histories and
// produces direction, volatility, and short-horizon forecasts.
package trend

import (
	"fmt"
	"math"

	"github.com/benchgate/benchgate/stats"
)

// -----------------------------------------------------------------------------
// Direction
// -----------------------------------------------------------------------------

// Direction classifies the trend of a metric history.
type Direction string

const (
	// DirectionImproving indicates a positive slope.
	DirectionImproving Direction = "improving"

	// DirectionStable indicates a slope close to zero.
	DirectionStable Direction = "stable"

	// DirectionDegrading indicates a negative slope.
	DirectionDegrading Direction = "degrading"

	// DirectionInsufficientData indicates too few points for analysis.
	DirectionInsufficientData Direction = "insufficient_data"
)

// stableSlopeEpsilon is the |slope| below which a trend counts as stable.
const stableSlopeEpsilon = 0.01

// -----------------------------------------------------------------------------
// Report
// -----------------------------------------------------------------------------

// Report holds the outcome of one trend analysis.
//
// The sign convention is the caller's: Analyze reports the raw slope of
// the fitted line, and a positive slope maps to DirectionImproving.
// Callers tracking larger-is-worse metrics (timings) must interpret
// accordingly or negate before analysis.
type Report struct {
	// Direction classifies the fitted slope.
	Direction Direction `json:"direction"`

	// Slope is the least-squares slope over the analysis window.
	Slope float64 `json:"slope"`

	// Confidence weights the fit quality (R²) with the history length.
	// Range [0, 1].
	Confidence float64 `json:"confidence"`

	// Volatility is the coefficient of variation over the window.
	Volatility float64 `json:"volatility"`

	// Forecast maps horizon (periods ahead, 1-based) to predicted value.
	Forecast map[int]float64 `json:"forecast"`

	// Insights holds human-readable observations. For reporting only;
	// never parse these.
	Insights []string `json:"insights"`

	// Window is the number of points actually analyzed.
	Window int `json:"window"`
}

// -----------------------------------------------------------------------------
// Analyzer
// -----------------------------------------------------------------------------

// DefaultWindow is the sliding-window size used when none is given.
const DefaultWindow = 10

// DefaultForecastPeriods is the forecast horizon used when none is given.
const DefaultForecastPeriods = 5

// Config configures a trend Analyzer.
type Config struct {
	// Window is the number of most recent points to analyze.
	// Default: 10
	Window int

	// ForecastPeriods is how many periods ahead to forecast.
	// Default: 5
	ForecastPeriods int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:          DefaultWindow,
		ForecastPeriods: DefaultForecastPeriods,
	}
}

// Analyzer fits linear trends over metric histories.
//
// Thread Safety: Safe for concurrent use (stateless).
type Analyzer struct {
	window          int
	forecastPeriods int
}

// NewAnalyzer creates a trend analyzer.
//
// Inputs:
//   - cfg: Analysis configuration. Non-positive fields fall back to
//     package defaults.
//
// Outputs:
//   - *Analyzer: The new analyzer. Never nil.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ForecastPeriods <= 0 {
		cfg.ForecastPeriods = DefaultForecastPeriods
	}
	return &Analyzer{
		window:          cfg.Window,
		forecastPeriods: cfg.ForecastPeriods,
	}
}

// Analyze fits a linear trend to the last Window points of history.
//
// Description:
//
//	Performs an ordinary least-squares fit of value against index over
//	the analysis window, classifies the direction, computes volatility
//	(coefficient of variation) and a per-period forecast extrapolated
//	from the last observed value.
//
// Inputs:
//   - history: Ordered metric values, oldest first.
//
// Outputs:
//   - Report: Analysis result. Direction is DirectionInsufficientData
//     with zero confidence when history has fewer points than the window.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) Analyze(history []float64) Report {
	if len(history) < a.window {
		return Report{
			Direction: DirectionInsufficientData,
			Forecast:  map[int]float64{},
			Insights: []string{
				fmt.Sprintf("need %d data points for trend analysis, have %d", a.window, len(history)),
			},
			Window: len(history),
		}
	}

	window := history[len(history)-a.window:]
	n := len(window)

	slope, intercept := leastSquares(window)

	report := Report{
		Slope:    slope,
		Forecast: make(map[int]float64, a.forecastPeriods),
		Window:   n,
	}

	switch {
	case math.Abs(slope) < stableSlopeEpsilon:
		report.Direction = DirectionStable
	case slope > 0:
		report.Direction = DirectionImproving
	default:
		report.Direction = DirectionDegrading
	}

	r2 := rSquared(window, slope, intercept)
	report.Confidence = clamp01(r2*0.8 + math.Min(float64(n), 20)/20*0.2)

	mean := stats.Mean(window)
	if mean != 0 {
		report.Volatility = math.Sqrt(stats.Variance(window, mean)) / mean
	}

	last := window[n-1]
	for i := 1; i <= a.forecastPeriods; i++ {
		report.Forecast[i] = last + slope*float64(i)
	}

	report.Insights = buildInsights(report)
	return report
}

// -----------------------------------------------------------------------------
// Fit Helpers
// -----------------------------------------------------------------------------

// leastSquares fits value = slope*index + intercept over indices 0..n-1.
func leastSquares(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, stats.Mean(values)
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// rSquared computes the coefficient of determination for the fitted line.
func rSquared(values []float64, slope, intercept float64) float64 {
	mean := stats.Mean(values)

	var ssRes, ssTot float64
	for i, y := range values {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - mean) * (y - mean)
	}

	if ssTot == 0 {
		// Flat series; the fit is exact.
		return 1
	}
	return clamp01(1 - ssRes/ssTot)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// buildInsights renders non-authoritative observations about the report.
func buildInsights(r Report) []string {
	insights := []string{
		fmt.Sprintf("trend %s with slope %.4f per period (confidence %.0f%%)",
			r.Direction, r.Slope, r.Confidence*100),
	}

	switch {
	case r.Volatility > 0.5:
		insights = append(insights,
			fmt.Sprintf("high volatility (cv %.2f): measurements are unstable", r.Volatility))
	case r.Volatility > 0.2:
		insights = append(insights,
			fmt.Sprintf("moderate volatility (cv %.2f)", r.Volatility))
	}

	if r.Confidence < 0.5 && r.Direction != DirectionStable {
		insights = append(insights, "low fit confidence: treat direction as indicative only")
	}

	return insights
}
