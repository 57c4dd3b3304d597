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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
)

// fileNamePattern matches <name>_v<version>.json.
var fileNamePattern = regexp.MustCompile(`^(.+)_v(\d+)\.json$`)

// FileStore persists baselines as JSON files.
//
// Description:
//
//	Each record lives in its own file named <name>_v<version>.json
//	under the store directory. Writes go through a temporary file and
//	an atomic rename so a crash never leaves a half-written record.
//	A record that fails to parse is treated as absent and logged, never
//	surfaced as a hard error.
//
// Thread Safety: Safe for concurrent use. Writers are serialized by a
// store-wide mutex so version assignment never interleaves.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates a file-backed baseline store.
//
// Inputs:
//   - dir: Directory for record files. Created if it does not exist.
//   - logger: Logger for corrupt-record warnings. Nil uses slog.Default().
//
// Outputs:
//   - *FileStore: The new store. Never nil on success.
//   - error: Non-nil if the directory cannot be created.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create baseline directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger, now: time.Now}, nil
}

// SetNowFunc overrides the store's clock. Nil values are ignored.
// Intended for tests.
func (f *FileStore) SetNowFunc(now func() time.Time) {
	if now != nil {
		f.now = now
	}
}

// Save implements Store.
func (f *FileStore) Save(_ context.Context, name string, data map[string]float64, meta Metadata) (*Baseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	versions, err := f.scanVersions(name)
	if err != nil {
		return nil, err
	}

	version := 1
	if len(versions) > 0 {
		version = versions[len(versions)-1] + 1
	}

	record := &Baseline{
		Name:      name,
		Timestamp: f.now().Unix(),
		Data:      copyData(data),
		Metadata:  meta,
		Version:   version,
	}

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode baseline %s v%d: %w", name, version, err)
	}

	final := f.recordPath(name, version)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, payload, 0640); err != nil {
		return nil, fmt.Errorf("write baseline %s v%d: %w", name, version, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return nil, fmt.Errorf("commit baseline %s v%d: %w", name, version, err)
	}

	return record, nil
}

// Get implements Store.
func (f *FileStore) Get(_ context.Context, name string, version int) (*Baseline, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if version == LatestVersion {
		versions, err := f.scanVersions(name)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, ErrNotFound
		}
		version = versions[len(versions)-1]
	}

	return f.readRecord(name, version)
}

// Versions implements Store.
func (f *FileStore) Versions(_ context.Context, name string) ([]int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	versions, err := f.scanVersions(name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// List implements Store.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list baseline directory: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		seen[match[1]] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup implements Store.
func (f *FileStore) Cleanup(_ context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("list baseline directory: %w", err)
	}

	cutoff := f.now().Add(-retention).Unix()
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		name := match[1]
		version, _ := strconv.Atoi(match[2])
		record, err := f.readRecord(name, version)
		if err != nil {
			// Already logged as corrupt; leave the file for inspection.
			continue
		}
		if record.Timestamp >= cutoff {
			continue
		}

		if err := os.Remove(f.recordPath(name, version)); err != nil {
			f.logger.Warn("failed to remove expired baseline",
				slog.String("name", name),
				slog.Int("version", version),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	return removed, nil
}

// Close implements Store.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) recordPath(name string, version int) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s_v%d.json", name, version))
}

// readRecord loads one record; corrupt files report ErrNotFound.
func (f *FileStore) readRecord(name string, version int) (*Baseline, error) {
	payload, err := os.ReadFile(f.recordPath(name, version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read baseline %s v%d: %w", name, version, err)
	}

	var record Baseline
	if err := json.Unmarshal(payload, &record); err != nil {
		f.logger.Warn("corrupt baseline record treated as absent",
			slog.String("name", name),
			slog.Int("version", version),
			slog.String("error", err.Error()),
		)
		return nil, ErrNotFound
	}

	return &record, nil
}

// scanVersions returns the parseable versions for a name, ascending.
func (f *FileStore) scanVersions(name string) ([]int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list baseline directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if match == nil || match[1] != name {
			continue
		}
		version, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		versions = append(versions, version)
	}

	sort.Ints(versions)
	return versions, nil
}
