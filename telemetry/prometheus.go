// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports benchmark run and gate outcomes as
// Prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/benchgate/benchgate/bench"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig indicates the sink configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed indicates metric registration failed.
	ErrRegistrationFailed = errors.New("metric registration failed")

	// ErrSinkClosed indicates the sink has been closed.
	ErrSinkClosed = errors.New("sink is closed")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures the Prometheus sink.
type Config struct {
	// Namespace is the metrics namespace.
	// Required.
	Namespace string

	// Subsystem is the metrics subsystem.
	// Required.
	Subsystem string

	// Registry is the Prometheus registry to use.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// MeanBuckets defines histogram buckets for benchmark means
	// (milliseconds). If nil, uses default buckets.
	MeanBuckets []float64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace: "benchgate",
		Subsystem: "runs",
		MeanBuckets: []float64{
			0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
		},
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prometheus Sink
// -----------------------------------------------------------------------------

// Sink exports suite and gate outcomes as Prometheus metrics.
//
// Description:
//
//	Metrics are registered on creation and unregistered on Close()
//	when the registry supports it. After Close(), recording methods
//	return ErrSinkClosed.
//
// Thread Safety: Safe for concurrent use.
type Sink struct {
	registry prometheus.Registerer

	suitesTotal       *prometheus.CounterVec
	benchmarkMean     *prometheus.HistogramVec
	benchmarkFailures *prometheus.CounterVec
	gateChecks        *prometheus.CounterVec
	gateFindings      *prometheus.CounterVec

	mu         sync.RWMutex
	closed     bool
	collectors []prometheus.Collector
}

// NewSink creates a Prometheus telemetry sink.
//
// Inputs:
//   - config: Sink configuration. Must not be nil.
//
// Outputs:
//   - *Sink: The created sink. Never nil on success.
//   - error: Non-nil if the configuration is invalid or registration
//     fails.
//
// Thread Safety: The returned sink is safe for concurrent use.
func NewSink(config *Config) (*Sink, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	if cfg.MeanBuckets == nil {
		cfg.MeanBuckets = DefaultConfig().MeanBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	sink := &Sink{registry: registry}

	sink.suitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "suites_total",
			Help:      "Total benchmark suite runs",
		},
		[]string{"suite"},
	)

	sink.benchmarkMean = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "benchmark_mean_milliseconds",
			Help:      "Mean iteration time per benchmark in milliseconds",
			Buckets:   cfg.MeanBuckets,
		},
		[]string{"suite", "benchmark"},
	)

	sink.benchmarkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "benchmark_failures_total",
			Help:      "Total failed benchmarks",
		},
		[]string{"suite", "benchmark"},
	)

	sink.gateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "gate_checks_total",
			Help:      "Total gate checks by result",
		},
		[]string{"suite", "result"},
	)

	sink.gateFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "gate_findings_total",
			Help:      "Total gate findings by kind",
		},
		[]string{"suite", "kind"},
	)

	sink.collectors = []prometheus.Collector{
		sink.suitesTotal,
		sink.benchmarkMean,
		sink.benchmarkFailures,
		sink.gateChecks,
		sink.gateFindings,
	}

	for _, c := range sink.collectors {
		if err := registry.Register(c); err != nil {
			var alreadyErr prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyErr) {
				return nil, errors.Join(ErrRegistrationFailed, err)
			}
		}
	}

	return sink, nil
}

// RecordSuite records the outcome of one suite run.
//
// Description:
//
//	Records the run count, per-benchmark means and failures, and the
//	gate decision when one was made.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - result: The completed suite result. Must not be nil.
//
// Outputs:
//   - error: Non-nil if the sink is closed or inputs are invalid.
//
// Thread Safety: Safe for concurrent use.
func (s *Sink) RecordSuite(ctx context.Context, result *bench.SuiteResult) error {
	if ctx == nil {
		return errors.New("context must not be nil")
	}
	if result == nil {
		return errors.New("result must not be nil")
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	suite := result.Suite
	if suite == "" {
		suite = "unknown"
	}

	s.suitesTotal.WithLabelValues(suite).Inc()

	for _, r := range result.Results {
		if r.Failed {
			s.benchmarkFailures.WithLabelValues(suite, r.Name).Inc()
			continue
		}
		s.benchmarkMean.WithLabelValues(suite, r.Name).Observe(r.Summary.Mean)
	}

	if result.Gate != nil {
		outcome := "pass"
		if !result.Gate.Passed {
			outcome = "fail"
		}
		s.gateChecks.WithLabelValues(suite, outcome).Inc()

		if n := len(result.Gate.Failures); n > 0 {
			s.gateFindings.WithLabelValues(suite, "failure").Add(float64(n))
		}
		if n := len(result.Gate.Warnings); n > 0 {
			s.gateFindings.WithLabelValues(suite, "warning").Add(float64(n))
		}
	}

	return nil
}

// Close unregisters all metrics and releases resources.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// DefaultRegisterer doesn't expose Unregister; only custom
	// registries get cleaned up.
	if registry, ok := s.registry.(*prometheus.Registry); ok {
		for _, c := range s.collectors {
			registry.Unregister(c)
		}
	}

	return nil
}
