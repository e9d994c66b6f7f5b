// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/party"
)

// snapshotKeyPrefix namespaces session snapshots.
const snapshotKeyPrefix = "snapshot:"

// schemaVersion is written with every record; records with another version are skipped.
const schemaVersion = 1

// Errors
var (
	// ErrStoreClosed is returned when the store is closed.
	ErrStoreClosed = errors.New("snapshot store is closed")

	// ErrSnapshotNotFound is returned when no snapshot exists for a party.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrEmptyPartyID is returned when a snapshot has no session id.
	ErrEmptyPartyID = errors.New("party id cannot be empty")
)

// Config controls how the BadgerDB instance is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites fsyncs every checkpoint.
	SyncWrites bool

	// GCInterval is how often Serve runs value log garbage collection.
	// Zero disables it.
	GCInterval time.Duration
	GCRatio    float64

	// AuditRetention is the TTL of audit events. Zero keeps them forever.
	AuditRetention time.Duration
}

// record is the stored form of a snapshot.
type record struct {
	SchemaVersion int             `json:"schemaVersion"`
	SavedAt       time.Time       `json:"savedAt"`
	Snapshot      *party.Snapshot `json:"snapshot"`
}

// BadgerStore persists session snapshots in BadgerDB so that sessions survive
// a restart. It implements party.SnapshotStore and suture.Service.
type BadgerStore struct {
	db     *badger.DB
	cfg    Config
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the snapshot database.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store path is required unless in-memory")
	}
	if cfg.GCRatio <= 0 || cfg.GCRatio >= 1 {
		cfg.GCRatio = 0.5
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logging.WithComponent("store"),
	}
	s.logger.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("snapshot store opened")
	return s, nil
}

// Save writes snap, replacing any earlier snapshot of the same party.
func (s *BadgerStore) Save(ctx context.Context, snap *party.Snapshot) error {
	if snap == nil || snap.Session.ID == "" {
		return ErrEmptyPartyID
	}
	if err := s.check(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(&record{
		SchemaVersion: schemaVersion,
		SavedAt:       time.Now().UTC(),
		Snapshot:      snap,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.Session.ID), data)
	})
}

// Load returns the stored snapshot of partyID.
func (s *BadgerStore) Load(ctx context.Context, partyID string) (*party.Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(partyID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return fmt.Errorf("get snapshot: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	if rec.SchemaVersion != schemaVersion || rec.Snapshot == nil {
		return nil, fmt.Errorf("snapshot %s: unsupported schema version %d", partyID, rec.SchemaVersion)
	}
	return rec.Snapshot, nil
}

// Delete removes the snapshot of partyID. Deleting a missing snapshot is not an error.
func (s *BadgerStore) Delete(ctx context.Context, partyID string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(snapshotKey(partyID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete snapshot: %w", err)
		}
		return nil
	})
}

// LoadAll returns every readable snapshot. Corrupt or foreign-version records
// are logged and skipped so that one bad entry cannot block startup.
func (s *BadgerStore) LoadAll(ctx context.Context) ([]*party.Snapshot, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var snaps []*party.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var rec record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil || rec.SchemaVersion != schemaVersion || rec.Snapshot == nil {
				s.logger.Warn().
					Err(err).
					Str("key", string(item.KeyCopy(nil))).
					Int("schema_version", rec.SchemaVersion).
					Msg("skipping unreadable snapshot")
				continue
			}
			snaps = append(snaps, rec.Snapshot)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Count returns the number of stored snapshots.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// RunGC runs value log garbage collection until nothing is left to rewrite.
func (s *BadgerStore) RunGC() error {
	if err := s.check(context.Background()); err != nil {
		return err
	}
	if s.cfg.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(s.cfg.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Ping reports whether the store is usable, for readiness checks.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrStoreClosed
	}
	return nil
}

// Serve runs periodic garbage collection until ctx is done.
func (s *BadgerStore) Serve(ctx context.Context) error {
	if s.cfg.GCInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunGC(); err != nil {
				if errors.Is(err, ErrStoreClosed) {
					return err
				}
				s.logger.Warn().Err(err).Msg("value log GC failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *BadgerStore) String() string {
	return "snapshot-store"
}

// Close closes the database. It is safe to call more than once.
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
	s.logger.Info().Msg("snapshot store closed")
	return nil
}

func (s *BadgerStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func snapshotKey(partyID string) []byte {
	return []byte(snapshotKeyPrefix + partyID)
}
