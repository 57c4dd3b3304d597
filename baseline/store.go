// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline persists, versions, retrieves, and expires named
// performance baseline records, and computes per-metric deltas between
// a current measurement and a stored baseline.
//
// Versions for a given name are strictly increasing integers starting
// at 1. Storing never destroys older versions; only Cleanup removes
// records, and removal is irreversible.
package baseline

import (
	"context"
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates no baseline exists for the requested name
	// (or name/version pair).
	ErrNotFound = errors.New("baseline not found")

	// ErrInvalidRecord indicates a persisted record failed to parse.
	// Stores surface this only in logs; reads report ErrNotFound.
	ErrInvalidRecord = errors.New("invalid baseline record")
)

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Metadata captures the environment a baseline was recorded under.
type Metadata struct {
	// EngineVersion is the version of the system under test.
	EngineVersion string `json:"engine_version"`

	// SystemInfo describes the operating system.
	SystemInfo string `json:"system_info"`

	// CPUInfo describes the processor.
	CPUInfo string `json:"cpu_info"`

	// MemoryInfo describes the installed memory.
	MemoryInfo string `json:"memory_info"`
}

// Baseline is one versioned reference measurement.
type Baseline struct {
	// Name identifies the benchmark or suite this baseline belongs to.
	Name string `json:"name"`

	// Timestamp is the creation time in Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// Data maps metric names to recorded values.
	Data map[string]float64 `json:"data"`

	// Metadata captures the recording environment.
	Metadata Metadata `json:"metadata"`

	// Version is a strictly increasing positive integer per name.
	Version int `json:"version"`
}

// LatestVersion requests the newest stored version in Get.
const LatestVersion = 0

// DefaultRetention is the cleanup retention window.
const DefaultRetention = 30 * 24 * time.Hour

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists versioned baseline records.
//
// Thread Safety: Implementations must serialize concurrent writers to
// the same name so version assignment never interleaves; readers of
// distinct names need no coordination.
type Store interface {
	// Save persists a new version of the named baseline. The assigned
	// version is max(existing versions)+1, or 1 if none exist.
	Save(ctx context.Context, name string, data map[string]float64, meta Metadata) (*Baseline, error)

	// Get retrieves the given version of the named baseline, or the
	// newest one when version is LatestVersion. Returns ErrNotFound if
	// no matching record exists. Corrupt records are treated as absent
	// and logged.
	Get(ctx context.Context, name string, version int) (*Baseline, error)

	// Versions returns the stored version numbers for a name, ascending.
	// Returns ErrNotFound if the name has no versions.
	Versions(ctx context.Context, name string) ([]int, error)

	// List returns the distinct baseline names in the store.
	List(ctx context.Context) ([]string, error)

	// Cleanup removes records whose timestamp predates now-retention
	// and reports how many were removed. Removal is irreversible.
	Cleanup(ctx context.Context, retention time.Duration) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// -----------------------------------------------------------------------------
// Comparison
// -----------------------------------------------------------------------------

// MetricDelta is the per-metric outcome of a comparison.
type MetricDelta struct {
	// Current is the submitted value.
	Current float64 `json:"current"`

	// Baseline is the stored value.
	Baseline float64 `json:"baseline"`

	// Change is Current - Baseline.
	Change float64 `json:"change"`

	// PercentChange is Change / Baseline, or 0 when Baseline is 0.
	PercentChange float64 `json:"percent_change"`
}

// Comparison holds the per-metric deltas against one baseline version.
type Comparison struct {
	// Name is the compared baseline name.
	Name string `json:"name"`

	// Version is the baseline version used.
	Version int `json:"version"`

	// Timestamp is the baseline's creation time in Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// Metrics maps metric names to deltas. Only metrics present in
	// both the submission and the baseline appear.
	Metrics map[string]MetricDelta `json:"metrics"`
}

// Compare loads a baseline and computes per-metric deltas against it.
//
// Description:
//
//	Retrieves the requested version (LatestVersion for the newest) and
//	computes {current, baseline, change, percent change} for every
//	metric present in both maps. Returns ErrNotFound unchanged when no
//	baseline exists; callers must decide whether to record a first
//	baseline, never synthesize one silently.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - store: The baseline store. Must not be nil.
//   - name: Baseline name.
//   - version: Version to compare against, or LatestVersion.
//   - current: Current metric values.
//
// Outputs:
//   - *Comparison: Per-metric deltas. Never nil on success.
//   - error: ErrNotFound if no baseline exists; otherwise a store error.
//
// Thread Safety: Safe for concurrent use.
func Compare(ctx context.Context, store Store, name string, version int, current map[string]float64) (*Comparison, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}

	base, err := store.Get(ctx, name, version)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Name:      base.Name,
		Version:   base.Version,
		Timestamp: base.Timestamp,
		Metrics:   make(map[string]MetricDelta),
	}

	for metric, cur := range current {
		ref, ok := base.Data[metric]
		if !ok {
			continue
		}

		delta := MetricDelta{
			Current:  cur,
			Baseline: ref,
			Change:   cur - ref,
		}
		if ref != 0 {
			delta.PercentChange = delta.Change / ref
		}
		cmp.Metrics[metric] = delta
	}

	return cmp, nil
}
