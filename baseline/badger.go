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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/benchgate/benchgate/storage/badgerdb"
)

// keyPrefix namespaces baseline records inside the shared database.
const keyPrefix = "baseline/"

// BadgerStore persists baselines in an embedded BadgerDB.
//
// Description:
//
//	Records are stored as JSON under keys of the form
//	baseline/<name>/v<version>, with the version zero-padded so that
//	lexicographic key order matches numeric version order. Version
//	assignment happens inside a read-write transaction guarded by a
//	store-wide mutex, so concurrent saves to the same name never
//	collide.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badgerdb.DB
	mu     sync.Mutex // serializes version assignment across Save calls
	logger *slog.Logger
	now    func() time.Time
}

// NewBadgerStore creates a BadgerDB-backed baseline store.
//
// Inputs:
//   - db: An open database from the badgerdb package. Must not be nil.
//     The store takes ownership; Close closes it.
//   - logger: Logger for corrupt-record warnings. Nil uses slog.Default().
//
// Outputs:
//   - *BadgerStore: The new store. Never nil on success.
//   - error: Non-nil if db is nil.
func NewBadgerStore(db *badgerdb.DB, logger *slog.Logger) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger, now: time.Now}, nil
}

// SetNowFunc overrides the store's clock. Nil values are ignored.
// Intended for tests.
func (s *BadgerStore) SetNowFunc(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, name string, data map[string]float64, meta Metadata) (*Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *Baseline
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		versions, err := scanTxnVersions(txn, name)
		if err != nil {
			return err
		}

		version := 1
		if len(versions) > 0 {
			version = versions[len(versions)-1] + 1
		}

		record = &Baseline{
			Name:      name,
			Timestamp: s.now().Unix(),
			Data:      copyData(data),
			Metadata:  meta,
			Version:   version,
		}

		payload, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode baseline %s v%d: %w", name, version, err)
		}

		return txn.Set(recordKey(name, version), payload)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, name string, version int) (*Baseline, error) {
	var record *Baseline
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if version == LatestVersion {
			versions, err := scanTxnVersions(txn, name)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				return ErrNotFound
			}
			version = versions[len(versions)-1]
		}

		item, err := txn.Get(recordKey(name, version))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("read baseline %s v%d: %w", name, version, err)
		}

		return item.Value(func(val []byte) error {
			var b Baseline
			if err := json.Unmarshal(val, &b); err != nil {
				s.logger.Warn("corrupt baseline record treated as absent",
					slog.String("name", name),
					slog.Int("version", version),
					slog.String("error", err.Error()),
				)
				return ErrNotFound
			}
			record = &b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Versions implements Store.
func (s *BadgerStore) Versions(ctx context.Context, name string) ([]int, error) {
	var versions []int
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		versions, err = scanTxnVersions(txn, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			name, _, ok := parseKey(it.Item().Key())
			if !ok {
				continue
			}
			seen[name] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup implements Store.
func (s *BadgerStore) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	cutoff := s.now().Add(-retention).Unix()
	removed := 0

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		var expired [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name, version, ok := parseKey(item.Key())
			if !ok {
				continue
			}

			var b Baseline
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			})
			if err != nil {
				s.logger.Warn("corrupt baseline record skipped during cleanup",
					slog.String("name", name),
					slog.Int("version", version),
					slog.String("error", err.Error()),
				)
				continue
			}

			if b.Timestamp < cutoff {
				expired = append(expired, item.KeyCopy(nil))
			}
		}

		for _, key := range expired {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete expired baseline %s: %w", key, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Close implements Store. It closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// -----------------------------------------------------------------------------
// Key Layout
// -----------------------------------------------------------------------------

// recordKey builds baseline/<name>/v<version> with a zero-padded
// version so key order matches version order.
func recordKey(name string, version int) []byte {
	return []byte(fmt.Sprintf("%s%s/v%010d", keyPrefix, name, version))
}

// parseKey extracts the name and version from a record key.
func parseKey(key []byte) (string, int, bool) {
	k := string(key)
	if !strings.HasPrefix(k, keyPrefix) {
		return "", 0, false
	}
	k = strings.TrimPrefix(k, keyPrefix)

	idx := strings.LastIndex(k, "/v")
	if idx < 0 {
		return "", 0, false
	}

	version, err := strconv.Atoi(k[idx+2:])
	if err != nil {
		return "", 0, false
	}

	return k[:idx], version, true
}

// scanTxnVersions returns the stored versions for a name, ascending.
// Keys are zero-padded so iteration order is already ascending.
func scanTxnVersions(txn *badger.Txn, name string) ([]int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = []byte(keyPrefix + name + "/v")

	it := txn.NewIterator(opts)
	defer it.Close()

	var versions []int
	for it.Rewind(); it.Valid(); it.Next() {
		parsedName, version, ok := parseKey(it.Item().Key())
		if !ok || parsedName != name {
			continue
		}
		versions = append(versions, version)
	}
	return versions, nil
}
