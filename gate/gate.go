// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate decides whether a set of current performance metrics is
// acceptable relative to a stored baseline, for use as a CI/CD check.
//
// Metric direction is inferred from the metric name: names containing
// "fps" are rate metrics (smaller is worse, absolute drop), names
// containing "mem" or ending in "_bytes" are memory metrics (absolute
// growth in bytes), and everything else is treated as a timing metric
// (relative growth). All threshold comparisons are strictly greater
// than: a change exactly at a threshold passes.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/benchgate/benchgate/baseline"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrGateFailed indicates the gate did not pass.
	ErrGateFailed = errors.New("performance gate failed")
)

// -----------------------------------------------------------------------------
// Thresholds
// -----------------------------------------------------------------------------

// Default threshold values.
const (
	// DefaultAvgTimeRegression is the relative timing growth allowed
	// before failing (0.05 = 5%).
	DefaultAvgTimeRegression = 0.05

	// DefaultMemoryGrowthBytes is the absolute memory growth allowed
	// before failing.
	DefaultMemoryGrowthBytes = 10 * 1024 * 1024

	// DefaultFPSDrop is the absolute frames-per-second drop allowed
	// before failing.
	DefaultFPSDrop = 5.0
)

// Thresholds bounds the acceptable change per metric class.
type Thresholds struct {
	// AvgTimeRegression is the maximum relative growth for timing
	// metrics (e.g., 0.05 = 5%).
	AvgTimeRegression float64 `json:"avg_time_regression" yaml:"avg_time_regression"`

	// MemoryGrowthBytes is the maximum absolute growth for memory
	// metrics, in bytes.
	MemoryGrowthBytes float64 `json:"memory_growth_bytes" yaml:"memory_growth_bytes"`

	// FPSDrop is the maximum absolute drop for rate metrics.
	FPSDrop float64 `json:"fps_drop" yaml:"fps_drop"`
}

// DefaultThresholds returns the standard gate thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AvgTimeRegression: DefaultAvgTimeRegression,
		MemoryGrowthBytes: DefaultMemoryGrowthBytes,
		FPSDrop:           DefaultFPSDrop,
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Gate.
type Config struct {
	// Thresholds bounds the acceptable change per metric class.
	Thresholds Thresholds

	// RequireBaseline fails the gate when no baseline exists.
	// Default: false (missing baseline = pass with a warning).
	RequireBaseline bool

	// Logger for gate decisions.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Thresholds: DefaultThresholds(),
		Logger:     slog.Default(),
	}
}

// Option configures the gate.
type Option func(*Config)

// WithThresholds replaces all thresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Config) {
		c.Thresholds = t
	}
}

// WithAvgTimeThreshold sets the relative timing growth threshold.
func WithAvgTimeThreshold(threshold float64) Option {
	return func(c *Config) {
		if threshold > 0 {
			c.Thresholds.AvgTimeRegression = threshold
		}
	}
}

// WithMemoryGrowthThreshold sets the absolute memory growth threshold.
func WithMemoryGrowthThreshold(bytes float64) Option {
	return func(c *Config) {
		if bytes > 0 {
			c.Thresholds.MemoryGrowthBytes = bytes
		}
	}
}

// WithFPSDropThreshold sets the absolute rate drop threshold.
func WithFPSDropThreshold(drop float64) Option {
	return func(c *Config) {
		if drop > 0 {
			c.Thresholds.FPSDrop = drop
		}
	}
}

// WithRequireBaseline requires a baseline to exist.
func WithRequireBaseline(required bool) Option {
	return func(c *Config) {
		c.RequireBaseline = required
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Gate
// -----------------------------------------------------------------------------

// Gate evaluates current metrics against stored baselines.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	store  baseline.Store
	config Config
	logger *slog.Logger
}

// NewGate creates a performance gate.
//
// Inputs:
//   - store: Baseline store. May be nil if only Evaluate is used.
//   - opts: Configuration options.
//
// Outputs:
//   - *Gate: The new gate. Never nil.
func NewGate(store baseline.Store, opts ...Option) *Gate {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Gate{
		store:  store,
		config: config,
		logger: config.Logger,
	}
}

// Finding is one metric that crossed a threshold.
type Finding struct {
	// Metric is the metric name.
	Metric string `json:"metric"`

	// Baseline is the stored value.
	Baseline float64 `json:"baseline"`

	// Current is the submitted value.
	Current float64 `json:"current"`

	// Change is Current - Baseline.
	Change float64 `json:"change"`

	// PercentChange is Change / Baseline, or 0 when Baseline is 0.
	PercentChange float64 `json:"percent_change"`

	// Message explains which rule the metric crossed.
	Message string `json:"message"`
}

// Result is the gate decision for one baseline name.
type Result struct {
	// Passed is true if no metric crossed a failure threshold.
	Passed bool `json:"passed"`

	// Name is the evaluated baseline name.
	Name string `json:"name"`

	// Version is the baseline version compared against.
	Version int `json:"version"`

	// Failures are metrics that worsened past their threshold.
	Failures []Finding `json:"failures,omitempty"`

	// Warnings are notable but non-blocking changes, including
	// improvements past the same thresholds.
	Warnings []Finding `json:"warnings,omitempty"`

	// MissingBaseline is true if no baseline existed for the name.
	MissingBaseline bool `json:"missing_baseline,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`

	// Timestamp is when the check was performed.
	Timestamp time.Time `json:"timestamp"`
}

// Check loads the baseline and evaluates current metrics against it.
//
// Description:
//
//	Retrieves the requested baseline version, computes per-metric
//	deltas, and applies the threshold rules. A missing baseline passes
//	with a warning unless RequireBaseline is set; a first run must be
//	recorded explicitly, never synthesized here.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - name: Baseline name.
//   - version: Baseline version, or baseline.LatestVersion.
//   - current: Current metric values. Must not be empty.
//
// Outputs:
//   - *Result: The gate decision. Never nil on success.
//   - error: Non-nil only if the check could not be performed.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Check(ctx context.Context, name string, version int, current map[string]float64) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if len(current) == 0 {
		return nil, errors.New("current metrics must not be empty")
	}
	if g.store == nil {
		return nil, errors.New("gate has no baseline store")
	}

	ctx, span := otel.Tracer("gate").Start(ctx, "gate.Gate.Check",
		trace.WithAttributes(
			attribute.String("name", name),
			attribute.Int("version", version),
		),
	)
	defer span.End()

	start := time.Now()

	cmp, err := baseline.Compare(ctx, g.store, name, version, current)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			result := &Result{
				Name:            name,
				MissingBaseline: true,
				Timestamp:       start,
			}
			if g.config.RequireBaseline {
				result.Passed = false
				result.Failures = append(result.Failures, Finding{
					Metric:  name,
					Message: "no baseline exists and one is required",
				})
			} else {
				result.Passed = true
				result.Warnings = append(result.Warnings, Finding{
					Metric:  name,
					Message: "no baseline exists; record one to enable gating",
				})
			}
			result.Duration = time.Since(start)
			g.logDecision(result)
			return result, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := g.Evaluate(cmp)
	result.Timestamp = start
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Bool("passed", result.Passed),
		attribute.Int("failures", len(result.Failures)),
		attribute.Int("warnings", len(result.Warnings)),
	)
	if !result.Passed {
		span.SetStatus(codes.Error, "performance gate failed")
	}

	g.logDecision(result)
	return result, nil
}

// Evaluate applies the threshold rules to a precomputed comparison.
//
// Description:
//
//	Classifies each compared metric by name, applies the matching rule
//	with a strictly-greater-than comparison, and collects failures for
//	changes in the worsening direction and warnings for changes of the
//	same magnitude in the improving direction.
//
// Inputs:
//   - cmp: Per-metric deltas against one baseline version. Must not be
//     nil.
//
// Outputs:
//   - *Result: The decision. Never nil.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Evaluate(cmp *baseline.Comparison) *Result {
	result := &Result{
		Passed:    true,
		Timestamp: time.Now(),
	}
	if cmp == nil {
		return result
	}

	result.Name = cmp.Name
	result.Version = cmp.Version

	// Sorted for deterministic failure ordering in reports.
	metrics := make([]string, 0, len(cmp.Metrics))
	for metric := range cmp.Metrics {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	for _, metric := range metrics {
		delta := cmp.Metrics[metric]
		finding := Finding{
			Metric:        metric,
			Baseline:      delta.Baseline,
			Current:       delta.Current,
			Change:        delta.Change,
			PercentChange: delta.PercentChange,
		}

		switch classify(metric) {
		case classRate:
			drop := delta.Baseline - delta.Current
			if drop > g.config.Thresholds.FPSDrop {
				finding.Message = fmt.Sprintf("dropped %.1f (limit %.1f)", drop, g.config.Thresholds.FPSDrop)
				result.Failures = append(result.Failures, finding)
			} else if -drop > g.config.Thresholds.FPSDrop {
				finding.Message = fmt.Sprintf("improved by %.1f", -drop)
				result.Warnings = append(result.Warnings, finding)
			}

		case classMemory:
			if delta.Change > g.config.Thresholds.MemoryGrowthBytes {
				finding.Message = fmt.Sprintf("grew %.0f bytes (limit %.0f)", delta.Change, g.config.Thresholds.MemoryGrowthBytes)
				result.Failures = append(result.Failures, finding)
			} else if -delta.Change > g.config.Thresholds.MemoryGrowthBytes {
				finding.Message = fmt.Sprintf("shrank %.0f bytes", -delta.Change)
				result.Warnings = append(result.Warnings, finding)
			}

		default:
			if delta.PercentChange > g.config.Thresholds.AvgTimeRegression {
				finding.Message = fmt.Sprintf("slowed %.1f%% (limit %.1f%%)",
					delta.PercentChange*100, g.config.Thresholds.AvgTimeRegression*100)
				result.Failures = append(result.Failures, finding)
			} else if -delta.PercentChange > g.config.Thresholds.AvgTimeRegression {
				finding.Message = fmt.Sprintf("sped up %.1f%%", -delta.PercentChange*100)
				result.Warnings = append(result.Warnings, finding)
			}
		}
	}

	result.Passed = len(result.Failures) == 0
	return result
}

// Err returns ErrGateFailed if the result did not pass, for callers
// that want an error to propagate as a process exit status.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%w: %d failing metric(s)", ErrGateFailed, len(r.Failures))
}

func (g *Gate) logDecision(result *Result) {
	g.logger.Info("performance gate check completed",
		slog.String("name", result.Name),
		slog.Bool("passed", result.Passed),
		slog.Int("failures", len(result.Failures)),
		slog.Int("warnings", len(result.Warnings)),
		slog.Bool("missing_baseline", result.MissingBaseline),
	)
}

// -----------------------------------------------------------------------------
// Metric Classification
// -----------------------------------------------------------------------------

type metricClass int

const (
	classTiming metricClass = iota
	classMemory
	classRate
)

// classify infers the rule for a metric from its name.
func classify(metric string) metricClass {
	lower := strings.ToLower(metric)
	switch {
	case strings.Contains(lower, "fps"):
		return classRate
	case strings.Contains(lower, "mem"), strings.HasSuffix(lower, "_bytes"):
		return classMemory
	default:
		return classTiming
	}
}

// -----------------------------------------------------------------------------
// Reporting
// -----------------------------------------------------------------------------

// RenderReport creates a human-readable report for a gate result.
//
// The output is deterministic: findings appear in sorted metric order.
func RenderReport(result *Result) string {
	var sb strings.Builder

	sb.WriteString("# Performance Gate Report\n\n")

	if result.Passed {
		sb.WriteString("**Status: PASS**\n\n")
	} else {
		sb.WriteString("**Status: FAIL**\n\n")
	}

	sb.WriteString(fmt.Sprintf("Baseline: %s", result.Name))
	if result.Version > 0 {
		sb.WriteString(fmt.Sprintf(" (v%d)", result.Version))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Timestamp: %s\n", result.Timestamp.Format(time.RFC3339)))

	if result.MissingBaseline {
		sb.WriteString("\nNo baseline exists for this name.\n")
	}

	if len(result.Failures) > 0 {
		sb.WriteString("\n## Failures\n\n")
		sb.WriteString("| Metric | Baseline | Current | Change |\n")
		sb.WriteString("|--------|----------|---------|--------|\n")
		for _, f := range result.Failures {
			sb.WriteString(fmt.Sprintf("| %s | %.4g | %.4g | %s |\n",
				f.Metric, f.Baseline, f.Current, f.Message))
		}
	}

	if len(result.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range result.Warnings {
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", w.Metric, w.Message))
		}
	}

	return sb.String()
}
