// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package audit

import (
	"context"
	"sync"
)

// MemoryStore is a fixed-size ring of the most recent events, used when the
// snapshot store is disabled. Events are lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	ring []Event
	next int // slot the next event is written to
	size int
}

// NewMemoryStore creates a ring holding capacity events (default 10000).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{ring: make([]Event, capacity)}
}

// SaveAuditEvent stores a copy of event, overwriting the oldest when full.
func (s *MemoryStore) SaveAuditEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	s.ring[s.next] = *event
	s.next = (s.next + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	s.mu.Unlock()
	return nil
}

// QueryAuditEvents walks the ring backwards so results are newest first.
func (s *MemoryStore) QueryAuditEvents(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := 1; i <= s.size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ev := &s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		if !filter.Matches(ev) {
			continue
		}
		out = append(out, *ev)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	if out == nil {
		out = []Event{}
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}
