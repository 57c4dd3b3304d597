// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bench orchestrates benchmark suites: it runs registered
// workloads through warmup and measured iterations, aggregates samples
// into statistics, keeps an in-memory history across runs, and can
// evaluate the results against a stored baseline through a gate.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/benchgate/benchgate/baseline"
	"github.com/benchgate/benchgate/gate"
	"github.com/benchgate/benchgate/stats"
)

const tracerName = "bench"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrAlreadyRunning indicates a run was requested while one is in
	// progress.
	ErrAlreadyRunning = errors.New("benchmark run already in progress")

	// ErrNoBenchmarks indicates an empty suite was submitted.
	ErrNoBenchmarks = errors.New("suite contains no benchmarks")
)

// -----------------------------------------------------------------------------
// States
// -----------------------------------------------------------------------------

// State is the orchestrator lifecycle state.
type State string

const (
	// StateIdle means no run is in progress.
	StateIdle State = "idle"

	// StateRunning means workloads are executing.
	StateRunning State = "running"

	// StateAggregating means samples are being reduced to statistics.
	StateAggregating State = "aggregating"

	// StateDone means the last run completed; a new run may start.
	StateDone State = "done"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Default run parameters.
const (
	DefaultIterations  = 100
	DefaultWarmup      = 10
	DefaultConcurrency = 1
)

// Config configures an Orchestrator.
type Config struct {
	// Iterations is the number of measured iterations per benchmark.
	// Default: 100
	Iterations int

	// Warmup is the number of discarded iterations before measurement.
	// Default: 10
	Warmup int

	// Concurrency is how many benchmarks run at once.
	// Default: 1 (sequential; timings of concurrent benchmarks
	// interfere with each other)
	Concurrency int

	// Clock measures iteration time. Default: system clock.
	Clock Clock

	// Logger for run progress.
	Logger *slog.Logger

	// Gate optionally evaluates suite results against a baseline.
	Gate *gate.Gate
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Iterations:  DefaultIterations,
		Warmup:      DefaultWarmup,
		Concurrency: DefaultConcurrency,
		Clock:       NewSystemClock(),
		Logger:      slog.Default(),
	}
}

// Option configures the orchestrator.
type Option func(*Config)

// WithIterations sets the measured iteration count.
func WithIterations(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Iterations = n
		}
	}
}

// WithWarmup sets the warmup iteration count.
func WithWarmup(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Warmup = n
		}
	}
}

// WithConcurrency sets how many benchmarks run at once.
func WithConcurrency(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}

// WithClock sets the measurement clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
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

// WithGate attaches a gate evaluated after aggregation.
func WithGate(g *gate.Gate) Option {
	return func(c *Config) {
		c.Gate = g
	}
}

// -----------------------------------------------------------------------------
// Suite Types
// -----------------------------------------------------------------------------

// Benchmark is one workload in a suite.
type Benchmark struct {
	// Name identifies the benchmark within the suite. Must be unique.
	Name string

	// Workload is the operation under measurement. A non-nil error
	// aborts this benchmark only; the rest of the suite continues.
	Workload func(ctx context.Context) error
}

// Result holds the outcome of one benchmark.
type Result struct {
	// Name is the benchmark name.
	Name string `json:"name"`

	// Summary is the statistics over the measured samples.
	Summary stats.Summary `json:"summary"`

	// Samples are the measured iteration times in milliseconds.
	Samples []float64 `json:"samples,omitempty"`

	// Failed is true if the workload returned an error.
	Failed bool `json:"failed,omitempty"`

	// Error is the workload error message, if any.
	Error string `json:"error,omitempty"`
}

// SuiteResult is the outcome of one orchestrated run.
type SuiteResult struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// Suite is the suite name.
	Suite string `json:"suite"`

	// Results holds per-benchmark outcomes in submission order.
	Results []Result `json:"results"`

	// Best is the name of the benchmark with the lowest mean.
	Best string `json:"best,omitempty"`

	// Worst is the name of the benchmark with the highest mean.
	Worst string `json:"worst,omitempty"`

	// AverageMean is the average of the per-benchmark means, in
	// milliseconds.
	AverageMean float64 `json:"average_mean"`

	// Variance is the population variance of the per-benchmark means.
	// Zero when fewer than two benchmarks succeeded.
	Variance float64 `json:"variance"`

	// Gate is the gate decision, when a gate is attached.
	Gate *gate.Result `json:"gate,omitempty"`

	// Duration is the wall time of the whole run.
	Duration time.Duration `json:"duration"`

	// Timestamp is when the run started.
	Timestamp time.Time `json:"timestamp"`
}

// Metrics flattens the suite result into gate/baseline metric values:
// one "<name>_ms" entry per successful benchmark.
func (s *SuiteResult) Metrics() map[string]float64 {
	metrics := make(map[string]float64)
	for _, r := range s.Results {
		if r.Failed {
			continue
		}
		metrics[r.Name+"_ms"] = r.Summary.Mean
	}
	return metrics
}

// -----------------------------------------------------------------------------
// Orchestrator
// -----------------------------------------------------------------------------

// Orchestrator runs benchmark suites.
//
// Description:
//
//	The orchestrator moves through idle -> running -> aggregating ->
//	done on each run. Only one run may be in progress at a time;
//	concurrent Run calls beyond the first fail with ErrAlreadyRunning.
//
// Thread Safety: Safe for concurrent use.
type Orchestrator struct {
	config Config
	engine *stats.Engine
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	history map[string][]float64 // per benchmark, mean per completed run
}

// NewOrchestrator creates a benchmark orchestrator.
//
// Inputs:
//   - opts: Configuration options.
//
// Outputs:
//   - *Orchestrator: The new orchestrator in StateIdle. Never nil.
func NewOrchestrator(opts ...Option) *Orchestrator {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Orchestrator{
		config:  config,
		engine:  stats.NewEngine(stats.DefaultConfidenceLevel),
		logger:  config.Logger,
		state:   StateIdle,
		history: make(map[string][]float64),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns the recorded mean per run for a benchmark, oldest
// first. The returned slice is a copy.
func (o *Orchestrator) History(name string) []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	recorded := o.history[name]
	out := make([]float64, len(recorded))
	copy(out, recorded)
	return out
}

// Run executes a benchmark suite.
//
// Description:
//
//	Runs every benchmark through warmup and measured iterations,
//	aggregates the samples, updates the in-memory history, and applies
//	the gate when one is attached. A failing workload marks its own
//	result failed without aborting the rest of the suite.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - suite: Suite name, used as the baseline name for gating.
//   - benchmarks: Workloads to run. Must not be empty.
//
// Outputs:
//   - *SuiteResult: Per-benchmark and aggregate outcomes. Never nil on
//     success.
//   - error: ErrAlreadyRunning, ErrNoBenchmarks, or a context error.
//
// Thread Safety: Safe for concurrent use; concurrent runs are
// rejected, not queued.
func (o *Orchestrator) Run(ctx context.Context, suite string, benchmarks []Benchmark) (*SuiteResult, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if len(benchmarks) == 0 {
		return nil, ErrNoBenchmarks
	}

	if err := o.transition(StateIdle, StateDone, StateRunning); err != nil {
		return nil, err
	}
	defer o.setState(StateDone)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bench.Orchestrator.Run",
		trace.WithAttributes(
			attribute.String("suite", suite),
			attribute.Int("benchmarks", len(benchmarks)),
			attribute.Int("iterations", o.config.Iterations),
		),
	)
	defer span.End()

	start := time.Now()
	result := &SuiteResult{
		RunID:     uuid.NewString(),
		Suite:     suite,
		Results:   make([]Result, len(benchmarks)),
		Timestamp: start,
	}

	o.logger.Info("benchmark suite started",
		slog.String("suite", suite),
		slog.String("run_id", result.RunID),
		slog.Int("benchmarks", len(benchmarks)),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Concurrency)

	for i, b := range benchmarks {
		i, b := i, b
		group.Go(func() error {
			result.Results[i] = o.runBenchmark(groupCtx, b)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o.setState(StateAggregating)
	o.aggregate(result)

	if o.config.Gate != nil {
		metrics := result.Metrics()
		if len(metrics) > 0 {
			decision, err := o.config.Gate.Check(ctx, suite, baseline.LatestVersion, metrics)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("gate check for suite %s: %w", suite, err)
			}
			result.Gate = decision
		}
	}

	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("run_id", result.RunID),
		attribute.Float64("average_mean_ms", result.AverageMean),
	)
	if result.Gate != nil && !result.Gate.Passed {
		span.SetStatus(codes.Error, "performance gate failed")
	}

	o.logger.Info("benchmark suite completed",
		slog.String("suite", suite),
		slog.String("run_id", result.RunID),
		slog.String("best", result.Best),
		slog.String("worst", result.Worst),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// runBenchmark executes one workload through warmup and measurement.
func (o *Orchestrator) runBenchmark(ctx context.Context, b Benchmark) Result {
	result := Result{Name: b.Name}

	if b.Workload == nil {
		result.Failed = true
		result.Error = "benchmark has no workload"
		return result
	}

	for i := 0; i < o.config.Warmup; i++ {
		if err := ctx.Err(); err != nil {
			result.Failed = true
			result.Error = err.Error()
			return result
		}
		if err := b.Workload(ctx); err != nil {
			result.Failed = true
			result.Error = fmt.Sprintf("warmup iteration %d: %v", i, err)
			o.logBenchmarkFailure(b.Name, result.Error)
			return result
		}
	}

	samples := make([]float64, 0, o.config.Iterations)
	for i := 0; i < o.config.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			result.Failed = true
			result.Error = err.Error()
			return result
		}

		iterStart := o.config.Clock.Now()
		err := b.Workload(ctx)
		elapsed := o.config.Clock.Now().Sub(iterStart)

		if err != nil {
			result.Failed = true
			result.Error = fmt.Sprintf("iteration %d: %v", i, err)
			o.logBenchmarkFailure(b.Name, result.Error)
			return result
		}

		samples = append(samples, float64(elapsed)/float64(time.Millisecond))
	}

	summary, err := o.engine.Compute(samples)
	if err != nil {
		result.Failed = true
		result.Error = err.Error()
		return result
	}

	result.Summary = summary
	result.Samples = samples
	return result
}

// aggregate fills the suite-level fields and records history.
func (o *Orchestrator) aggregate(result *SuiteResult) {
	var (
		bestMean  float64
		worstMean float64
		sum       float64
		means     []float64
	)

	for _, r := range result.Results {
		if r.Failed {
			continue
		}

		mean := r.Summary.Mean
		if len(means) == 0 || mean < bestMean {
			bestMean = mean
			result.Best = r.Name
		}
		if len(means) == 0 || mean > worstMean {
			worstMean = mean
			result.Worst = r.Name
		}
		sum += mean
		means = append(means, mean)
	}

	if len(means) > 0 {
		result.AverageMean = sum / float64(len(means))
		result.Variance = stats.Variance(means, result.AverageMean)
	}

	o.mu.Lock()
	for _, r := range result.Results {
		if !r.Failed {
			o.history[r.Name] = append(o.history[r.Name], r.Summary.Mean)
		}
	}
	o.mu.Unlock()
}

func (o *Orchestrator) logBenchmarkFailure(name, message string) {
	o.logger.Warn("benchmark failed",
		slog.String("benchmark", name),
		slog.String("error", message),
	)
}

// transition moves to next if the current state is one of from.
func (o *Orchestrator) transition(fromA, fromB, next State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != fromA && o.state != fromB {
		return fmt.Errorf("%w: state is %s", ErrAlreadyRunning, o.state)
	}
	o.state = next
	return nil
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	o.state = next
	o.mu.Unlock()
}
