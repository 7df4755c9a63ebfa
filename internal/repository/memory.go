package repository

import (
	"context"
	"sync"
)

// MemoryEventStore keeps event logs in memory. It backs tests and servers
// running without a configured database; the contract matches the Postgres
// store, including single-writer appends per session.
type MemoryEventStore struct {
	mu   sync.RWMutex
	logs map[string][]EventRecord
}

// NewMemoryEventStore creates an empty in-memory store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		logs: make(map[string][]EventRecord),
	}
}

// Append adds one record to the session's log.
func (s *MemoryEventStore) Append(_ context.Context, record EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[record.SessionID]
	if len(log) > 0 && record.Seq <= log[len(log)-1].Seq {
		return ErrDuplicateSeq
	}
	s.logs[record.SessionID] = append(log, record)
	return nil
}

// ListEvents returns up to limit records with seq > afterSeq.
func (s *MemoryEventStore) ListEvents(_ context.Context, sessionID string, afterSeq uint64, limit int) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []EventRecord
	for _, record := range s.logs[sessionID] {
		if record.Seq <= afterSeq {
			continue
		}
		records = append(records, record)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// ListEventsByType filters the session's log by event type.
func (s *MemoryEventStore) ListEventsByType(_ context.Context, sessionID string, types ...string) ([]EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var records []EventRecord
	for _, record := range s.logs[sessionID] {
		if wanted[record.EventType] {
			records = append(records, record)
		}
	}
	return records, nil
}

// FirstEventOfType returns the earliest matching record.
func (s *MemoryEventStore) FirstEventOfType(_ context.Context, sessionID, eventType string) (EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.logs[sessionID] {
		if record.EventType == eventType {
			return record, nil
		}
	}
	return EventRecord{}, ErrNotFound
}

// MaxSeq returns the tail position of the session's log.
func (s *MemoryEventStore) MaxSeq(_ context.Context, sessionID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[sessionID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[len(log)-1].Seq, nil
}
