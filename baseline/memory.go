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
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps baselines in memory.
//
// Description:
//
//	MemoryStore is useful for tests and short-lived processes. Data is
//	lost when the process exits.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]*Baseline // per name, ascending by version

	// now is injectable for cleanup tests.
	now func() time.Time
}

// NewMemoryStore creates an in-memory baseline store.
//
// Outputs:
//   - *MemoryStore: The new store. Never nil.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]*Baseline),
		now:  time.Now,
	}
}

// SetNowFunc overrides the store's clock. Nil values are ignored.
// Intended for tests.
func (m *MemoryStore) SetNowFunc(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, name string, data map[string]float64, meta Metadata) (*Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := 1
	if versions := m.data[name]; len(versions) > 0 {
		version = versions[len(versions)-1].Version + 1
	}

	record := &Baseline{
		Name:      name,
		Timestamp: m.now().Unix(),
		Data:      copyData(data),
		Metadata:  meta,
		Version:   version,
	}

	m.data[name] = append(m.data[name], record)

	out := *record
	out.Data = copyData(record.Data)
	return &out, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, name string, version int) (*Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.data[name]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}

	var found *Baseline
	if version == LatestVersion {
		found = versions[len(versions)-1]
	} else {
		for _, b := range versions {
			if b.Version == version {
				found = b
				break
			}
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}

	out := *found
	out.Data = copyData(found.Data)
	return &out, nil
}

// Versions implements Store.
func (m *MemoryStore) Versions(_ context.Context, name string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.data[name]
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	versions := make([]int, len(records))
	for i, b := range records {
		versions[i] = b.Version
	}
	return versions, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.data))
	for name, records := range m.data {
		if len(records) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup implements Store.
func (m *MemoryStore) Cleanup(_ context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-retention).Unix()
	removed := 0

	for name, records := range m.data {
		kept := records[:0]
		for _, b := range records {
			if b.Timestamp < cutoff {
				removed++
				continue
			}
			kept = append(kept, b)
		}
		if len(kept) == 0 {
			delete(m.data, name)
		} else {
			m.data[name] = kept
		}
	}

	return removed, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func copyData(data map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
