// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package store

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/partysync/internal/audit"
)

// auditKeyPrefix namespaces audit events. Keys sort by time:
// audit:<unix nanos, zero padded>:<event id>.
const auditKeyPrefix = "audit:"

// SaveAuditEvent implements audit.Store. Events expire after AuditRetention.
func (s *BadgerStore) SaveAuditEvent(ctx context.Context, event *audit.Event) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	entry := badger.NewEntry(auditKey(event), data)
	if s.cfg.AuditRetention > 0 {
		entry = entry.WithTTL(s.cfg.AuditRetention)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	})
}

// QueryAuditEvents implements audit.Store, newest first.
func (s *BadgerStore) QueryAuditEvents(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	results := make([]audit.Event, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the last key under the prefix.
		seek := append([]byte(auditKeyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev audit.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				s.logger.Warn().Err(err).Str("key", string(it.Item().KeyCopy(nil))).Msg("skipping unreadable audit event")
				continue
			}
			if !filter.Since.IsZero() && ev.Timestamp.Before(filter.Since) {
				// Keys are time ordered, so nothing older can match.
				return nil
			}
			if !filter.Matches(&ev) {
				continue
			}
			results = append(results, ev)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return results, nil
}

func auditKey(event *audit.Event) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", auditKeyPrefix, event.Timestamp.UnixNano(), event.ID))
}
