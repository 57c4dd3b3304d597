// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package baseline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"
	"time"
)

// settableClock is implemented by stores that accept an injected clock.
type settableClock interface {
	SetNowFunc(func() time.Time)
}

// newTestStores returns fresh instances of every store implementation
// that the conformance subtests run against.
func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("create file store: %v", err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func TestStoreVersioning(t *testing.T) {
	ctx := context.Background()

	for label, store := range newTestStores(t) {
		t.Run(label, func(t *testing.T) {
			defer store.Close()

			first, err := store.Save(ctx, "render_loop", map[string]float64{"avg_ms": 16.0}, Metadata{})
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if first.Version != 1 {
				t.Errorf("expected first version 1, got %d", first.Version)
			}

			second, err := store.Save(ctx, "render_loop", map[string]float64{"avg_ms": 17.5}, Metadata{})
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if second.Version != 2 {
				t.Errorf("expected second version 2, got %d", second.Version)
			}

			versions, err := store.Versions(ctx, "render_loop")
			if err != nil {
				t.Fatalf("versions: %v", err)
			}
			if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
				t.Errorf("expected versions [1 2], got %v", versions)
			}

			latest, err := store.Get(ctx, "render_loop", LatestVersion)
			if err != nil {
				t.Fatalf("get latest: %v", err)
			}
			if latest.Version != 2 {
				t.Errorf("expected latest version 2, got %d", latest.Version)
			}
			if latest.Data["avg_ms"] != 17.5 {
				t.Errorf("expected latest avg_ms 17.5, got %v", latest.Data["avg_ms"])
			}

			v1, err := store.Get(ctx, "render_loop", 1)
			if err != nil {
				t.Fatalf("get v1: %v", err)
			}
			if v1.Data["avg_ms"] != 16.0 {
				t.Errorf("expected v1 avg_ms 16.0, got %v", v1.Data["avg_ms"])
			}
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()

	for label, store := range newTestStores(t) {
		t.Run(label, func(t *testing.T) {
			defer store.Close()

			if _, err := store.Get(ctx, "missing", LatestVersion); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if _, err := store.Versions(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}

			if _, err := store.Save(ctx, "present", map[string]float64{"x": 1}, Metadata{}); err != nil {
				t.Fatalf("save: %v", err)
			}
			if _, err := store.Get(ctx, "present", 99); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for unknown version, got %v", err)
			}
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()

	for label, store := range newTestStores(t) {
		t.Run(label, func(t *testing.T) {
			defer store.Close()

			names, err := store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(names) != 0 {
				t.Errorf("expected empty list, got %v", names)
			}

			for _, name := range []string{"zeta", "alpha", "alpha"} {
				if _, err := store.Save(ctx, name, map[string]float64{"x": 1}, Metadata{}); err != nil {
					t.Fatalf("save %s: %v", name, err)
				}
			}

			names, err = store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
				t.Errorf("expected sorted [alpha zeta], got %v", names)
			}
		})
	}
}

func TestStoreCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	for label, store := range newTestStores(t) {
		t.Run(label, func(t *testing.T) {
			defer store.Close()

			clock, ok := store.(settableClock)
			if !ok {
				t.Fatalf("store %s does not support clock injection", label)
			}

			// One record 40 days old, one 10 days old.
			clock.SetNowFunc(func() time.Time { return now.Add(-40 * 24 * time.Hour) })
			if _, err := store.Save(ctx, "old", map[string]float64{"x": 1}, Metadata{}); err != nil {
				t.Fatalf("save old: %v", err)
			}

			clock.SetNowFunc(func() time.Time { return now.Add(-10 * 24 * time.Hour) })
			if _, err := store.Save(ctx, "recent", map[string]float64{"x": 2}, Metadata{}); err != nil {
				t.Fatalf("save recent: %v", err)
			}

			clock.SetNowFunc(func() time.Time { return now })
			removed, err := store.Cleanup(ctx, 30*24*time.Hour)
			if err != nil {
				t.Fatalf("cleanup: %v", err)
			}
			if removed != 1 {
				t.Errorf("expected 1 removed, got %d", removed)
			}

			if _, err := store.Get(ctx, "old", LatestVersion); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected old baseline gone, got %v", err)
			}
			if _, err := store.Get(ctx, "recent", LatestVersion); err != nil {
				t.Errorf("expected recent baseline retained, got %v", err)
			}
		})
	}
}

func TestStoreMetadataRoundTrip(t *testing.T) {
	ctx := context.Background()

	for label, store := range newTestStores(t) {
		t.Run(label, func(t *testing.T) {
			defer store.Close()

			meta := Metadata{
				EngineVersion: "1.4.2",
				SystemInfo:    "linux amd64",
				CPUInfo:       "8 cores",
				MemoryInfo:    "32 GiB",
			}
			if _, err := store.Save(ctx, "suite", map[string]float64{"fps": 60}, meta); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := store.Get(ctx, "suite", LatestVersion)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Metadata != meta {
				t.Errorf("expected metadata %+v, got %+v", meta, got.Metadata)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	ctx := context.Background()

	t.Run("per-metric deltas", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		_, err := store.Save(ctx, "physics", map[string]float64{
			"avg_ms":    10.0,
			"mem_bytes": 1000,
			"zero":      0,
		}, Metadata{})
		if err != nil {
			t.Fatalf("save: %v", err)
		}

		cmp, err := Compare(ctx, store, "physics", LatestVersion, map[string]float64{
			"avg_ms":    12.0,
			"mem_bytes": 900,
			"zero":      5,
			"unknown":   1,
		})
		if err != nil {
			t.Fatalf("compare: %v", err)
		}

		if len(cmp.Metrics) != 3 {
			t.Fatalf("expected 3 shared metrics, got %d: %v", len(cmp.Metrics), cmp.Metrics)
		}

		avg := cmp.Metrics["avg_ms"]
		if math.Abs(avg.Change-2.0) > 1e-9 || math.Abs(avg.PercentChange-0.2) > 1e-9 {
			t.Errorf("avg_ms: expected change 2.0 / 20%%, got %+v", avg)
		}

		mem := cmp.Metrics["mem_bytes"]
		if math.Abs(mem.PercentChange+0.1) > 1e-9 {
			t.Errorf("mem_bytes: expected percent change -0.1, got %v", mem.PercentChange)
		}

		// Zero baseline value: change recorded, percent change zero.
		zero := cmp.Metrics["zero"]
		if zero.Change != 5 || zero.PercentChange != 0 {
			t.Errorf("zero: expected change 5 with percent change 0, got %+v", zero)
		}
	})

	t.Run("missing baseline passes through ErrNotFound", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		_, err := Compare(ctx, store, "missing", LatestVersion, map[string]float64{"x": 1})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("specific version", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		if _, err := store.Save(ctx, "ai", map[string]float64{"avg_ms": 10}, Metadata{}); err != nil {
			t.Fatalf("save: %v", err)
		}
		if _, err := store.Save(ctx, "ai", map[string]float64{"avg_ms": 20}, Metadata{}); err != nil {
			t.Fatalf("save: %v", err)
		}

		cmp, err := Compare(ctx, store, "ai", 1, map[string]float64{"avg_ms": 15})
		if err != nil {
			t.Fatalf("compare: %v", err)
		}
		if cmp.Version != 1 {
			t.Errorf("expected version 1, got %d", cmp.Version)
		}
		if math.Abs(cmp.Metrics["avg_ms"].PercentChange-0.5) > 1e-9 {
			t.Errorf("expected percent change 0.5 against v1, got %v", cmp.Metrics["avg_ms"].PercentChange)
		}
	})
}

func TestMemoryStoreIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	data := map[string]float64{"avg_ms": 10}
	if _, err := store.Save(ctx, "iso", data, Metadata{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's map must not affect the stored record.
	data["avg_ms"] = 999

	got, err := store.Get(ctx, "iso", LatestVersion)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["avg_ms"] != 10 {
		t.Errorf("expected stored value 10, got %v", got.Data["avg_ms"])
	}

	// Mutating a retrieved record must not affect the store.
	got.Data["avg_ms"] = 777
	again, err := store.Get(ctx, "iso", LatestVersion)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Data["avg_ms"] != 10 {
		t.Errorf("expected stored value 10 after reader mutation, got %v", again.Data["avg_ms"])
	}
}
