// Crashguard - Crash Prevention and Hot-Reload Supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/crashguard

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/crashguard/internal/logging"
	"github.com/tomtom215/crashguard/internal/models"
)

// Store errors.
var (
	ErrStoreClosed    = errors.New("save store is closed")
	ErrRecordNotFound = errors.New("save record not found")
	ErrUnknownKind    = errors.New("unknown save kind")
)

// Key prefixes. Keys sort by write time within a prefix.
const (
	prefixEmergency = "emergency:"
	prefixAuto      = "auto:"
	prefixReload    = "reload:"
)

func prefixFor(kind models.SaveKind) (string, error) {
	switch kind {
	case models.SaveKindEmergency:
		return prefixEmergency, nil
	case models.SaveKindAuto:
		return prefixAuto, nil
	case models.SaveKindReload:
		return prefixReload, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func recordKey(prefix string, rec models.SaveRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, rec.WrittenAt.UnixNano(), rec.ID))
}

// Stats reports store counters.
type Stats struct {
	Writes   int64 `json:"writes"`
	Pruned   int64 `json:"pruned"`
	GCRuns   int64 `json:"gc_runs"`
	LSMSize  int64 `json:"lsm_size_bytes"`
	VLogSize int64 `json:"vlog_size_bytes"`
}

// BadgerStore persists save records in BadgerDB. It implements the save
// coordinator's Persister.
type BadgerStore struct {
	db  *badger.DB
	cfg Config

	writes atomic.Int64
	pruned atomic.Int64
	gcRuns atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store.
func Open(cfg *Config) (*BadgerStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	if cfg.Compression {
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Save store opened")

	return &BadgerStore{db: db, cfg: *cfg}, nil
}

// Persist writes one record. A missing ID or write time is filled in.
func (s *BadgerStore) Persist(ctx context.Context, rec models.SaveRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix, err := prefixFor(rec.Kind)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.WrittenAt.IsZero() {
		rec.WrittenAt = time.Now().UTC()
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal save record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(prefix, rec), data)
	})
	if err != nil {
		return fmt.Errorf("write save record: %w", err)
	}
	s.writes.Add(1)
	return nil
}

// List returns every record of kind, oldest first.
func (s *BadgerStore) List(ctx context.Context, kind models.SaveKind) ([]models.SaveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	prefix, err := prefixFor(kind)
	if err != nil {
		return nil, err
	}

	var records []models.SaveRecord
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var rec models.SaveRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable save record")
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", kind, err)
	}
	return records, nil
}

// Latest returns the most recent record of kind.
func (s *BadgerStore) Latest(ctx context.Context, kind models.SaveKind) (models.SaveRecord, error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return models.SaveRecord{}, err
	}
	if len(records) == 0 {
		return models.SaveRecord{}, ErrRecordNotFound
	}
	return records[len(records)-1], nil
}

// Prune deletes all but the newest keep records of kind and returns the
// number deleted.
func (s *BadgerStore) Prune(ctx context.Context, kind models.SaveKind, keep int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	prefix, err := prefixFor(kind)
	if err != nil {
		return 0, err
	}

	var keys [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s records: %w", kind, err)
	}
	if len(keys) <= keep {
		return 0, nil
	}

	stale := keys[:len(keys)-keep]
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete %s record: %w", kind, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush %s deletes: %w", kind, err)
	}
	s.pruned.Add(int64(len(stale)))
	return len(stale), nil
}

// RunGC runs value log garbage collection until nothing is rewritten.
// In-memory stores have no value log and return nil.
func (s *BadgerStore) RunGC() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if s.cfg.InMemory {
		return nil
	}
	s.gcRuns.Add(1)
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// Stats returns store counters.
func (s *BadgerStore) Stats() Stats {
	st := Stats{
		Writes: s.writes.Load(),
		Pruned: s.pruned.Load(),
		GCRuns: s.gcRuns.Load(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed {
		st.LSMSize, st.VLogSize = s.db.Size()
	}
	return st
}

// Config returns the store configuration.
func (s *BadgerStore) Config() Config {
	return s.cfg
}

// Close closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Save store closed")
	return nil
}
