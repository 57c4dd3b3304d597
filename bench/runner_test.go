// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benchgate/benchgate/baseline"
	"github.com/benchgate/benchgate/gate"
)

func noopWorkload(context.Context) error { return nil }

// advanceWorkload simulates a workload taking d of fake-clock time.
func advanceWorkload(clock *FakeClock, d time.Duration) func(context.Context) error {
	return func(context.Context) error {
		clock.Advance(d)
		return nil
	}
}

func TestRunSingleBenchmark(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	o := NewOrchestrator(
		WithClock(clock),
		WithIterations(5),
		WithWarmup(2),
	)

	result, err := o.Run(context.Background(), "suite", []Benchmark{
		{Name: "render", Workload: advanceWorkload(clock, 2*time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(result.Results))
	}

	r := result.Results[0]
	if r.Failed {
		t.Fatalf("unexpected failure: %s", r.Error)
	}
	if len(r.Samples) != 5 {
		t.Errorf("expected 5 samples, got %d", len(r.Samples))
	}
	if math.Abs(r.Summary.Mean-2.0) > 1e-9 {
		t.Errorf("expected mean 2.0 ms, got %v", r.Summary.Mean)
	}
	if r.Summary.StdDev != 0 {
		t.Errorf("expected zero spread from fake clock, got %v", r.Summary.StdDev)
	}
	if result.Variance != 0 {
		t.Errorf("expected zero variance for a single benchmark, got %v", result.Variance)
	}

	if result.RunID == "" {
		t.Error("expected a run ID")
	}
	if o.State() != StateDone {
		t.Errorf("expected done state, got %s", o.State())
	}
}

func TestRunAggregation(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	o := NewOrchestrator(
		WithClock(clock),
		WithIterations(3),
		WithWarmup(0),
	)

	result, err := o.Run(context.Background(), "suite", []Benchmark{
		{Name: "slow", Workload: advanceWorkload(clock, 4*time.Millisecond)},
		{Name: "fast", Workload: advanceWorkload(clock, 1*time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Best != "fast" {
		t.Errorf("expected best fast, got %s", result.Best)
	}
	if result.Worst != "slow" {
		t.Errorf("expected worst slow, got %s", result.Worst)
	}
	if math.Abs(result.AverageMean-2.5) > 1e-9 {
		t.Errorf("expected average mean 2.5, got %v", result.AverageMean)
	}
	// Population variance of the means [4, 1] around 2.5.
	if math.Abs(result.Variance-2.25) > 1e-9 {
		t.Errorf("expected variance 2.25, got %v", result.Variance)
	}

	metrics := result.Metrics()
	if math.Abs(metrics["fast_ms"]-1.0) > 1e-9 || math.Abs(metrics["slow_ms"]-4.0) > 1e-9 {
		t.Errorf("unexpected flattened metrics: %v", metrics)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	o := NewOrchestrator(
		WithClock(clock),
		WithIterations(3),
		WithWarmup(0),
	)

	boom := errors.New("boom")
	result, err := o.Run(context.Background(), "suite", []Benchmark{
		{Name: "bad", Workload: func(context.Context) error { return boom }},
		{Name: "good", Workload: advanceWorkload(clock, 1*time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !result.Results[0].Failed {
		t.Error("expected bad benchmark to fail")
	}
	if result.Results[1].Failed {
		t.Errorf("expected good benchmark to succeed: %s", result.Results[1].Error)
	}
	if result.Best != "good" || result.Worst != "good" {
		t.Errorf("expected aggregation over survivors only, got best=%s worst=%s", result.Best, result.Worst)
	}

	// Failed benchmarks contribute no metrics.
	if _, ok := result.Metrics()["bad_ms"]; ok {
		t.Error("expected no metric for failed benchmark")
	}
}

func TestRunValidation(t *testing.T) {
	o := NewOrchestrator()

	t.Run("empty suite", func(t *testing.T) {
		if _, err := o.Run(context.Background(), "suite", nil); !errors.Is(err, ErrNoBenchmarks) {
			t.Errorf("expected ErrNoBenchmarks, got %v", err)
		}
	})

	t.Run("nil workload fails that benchmark", func(t *testing.T) {
		result, err := o.Run(context.Background(), "suite", []Benchmark{{Name: "empty"}})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !result.Results[0].Failed {
			t.Error("expected failure for nil workload")
		}
	})
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	o := NewOrchestrator(WithIterations(1), WithWarmup(0))

	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = o.Run(context.Background(), "suite", []Benchmark{
			{Name: "blocking", Workload: func(context.Context) error {
				close(started)
				<-release
				return nil
			}},
		})
	}()

	<-started
	if o.State() != StateRunning {
		t.Errorf("expected running state, got %s", o.State())
	}

	_, err := o.Run(context.Background(), "other", []Benchmark{
		{Name: "x", Workload: noopWorkload},
	})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	close(release)
}

func TestRunRecordsHistory(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))

	o := NewOrchestrator(
		WithClock(clock),
		WithIterations(2),
		WithWarmup(0),
	)

	suite := []Benchmark{{Name: "render", Workload: advanceWorkload(clock, 1*time.Millisecond)}}

	for i := 0; i < 3; i++ {
		if _, err := o.Run(context.Background(), "suite", suite); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	history := o.History("render")
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
	for i, mean := range history {
		if math.Abs(mean-1.0) > 1e-9 {
			t.Errorf("history[%d]: expected 1.0, got %v", i, mean)
		}
	}

	if len(o.History("unknown")) != 0 {
		t.Error("expected empty history for unknown benchmark")
	}
}

func TestRunWithGate(t *testing.T) {
	ctx := context.Background()
	clock := NewFakeClock(time.Unix(0, 0))

	store := baseline.NewMemoryStore()
	defer store.Close()

	// Baseline recorded at 1 ms; the current run measures 2 ms.
	if _, err := store.Save(ctx, "suite", map[string]float64{"render_ms": 1.0}, baseline.Metadata{}); err != nil {
		t.Fatalf("save baseline: %v", err)
	}

	o := NewOrchestrator(
		WithClock(clock),
		WithIterations(3),
		WithWarmup(0),
		WithGate(gate.NewGate(store)),
	)

	result, err := o.Run(ctx, "suite", []Benchmark{
		{Name: "render", Workload: advanceWorkload(clock, 2*time.Millisecond)},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Gate == nil {
		t.Fatal("expected a gate decision")
	}
	if result.Gate.Passed {
		t.Errorf("expected gate failure for doubled timing, got %+v", result.Gate)
	}
}

func TestFakeClock(t *testing.T) {
	t.Run("advance", func(t *testing.T) {
		clock := NewFakeClock(time.Unix(100, 0))
		before := clock.Now()
		clock.Advance(time.Second)
		if got := clock.Now().Sub(before); got != time.Second {
			t.Errorf("expected 1s elapsed, got %v", got)
		}
	})

	t.Run("step advances every read", func(t *testing.T) {
		clock := NewFakeClock(time.Unix(0, 0))
		clock.SetStep(time.Millisecond)
		first := clock.Now()
		second := clock.Now()
		if second.Sub(first) != time.Millisecond {
			t.Errorf("expected 1ms between reads, got %v", second.Sub(first))
		}
	})
}
