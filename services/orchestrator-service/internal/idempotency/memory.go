package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	committed bool
}

// MemoryStore is the test-only backend. It honors the same reserve/commit
// contract as the durable store but offers no durability across restarts.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	s.clock = clock
	return s
}

func (s *MemoryStore) Reserve(ctx context.Context, commandID, commandType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[commandID]; ok {
		if e.committed {
			return ErrAlreadyProcessed
		}
		return ErrReservationHeld
	}
	s.entries[commandID] = &memoryEntry{
		record: Record{CommandID: commandID, CommandType: commandType},
	}
	return nil
}

func (s *MemoryStore) Commit(ctx context.Context, commandID, resultEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[commandID]
	if !ok {
		return ErrNotReserved
	}
	if e.committed {
		return ErrAlreadyProcessed
	}
	e.record.ProcessedAt = s.clock().UTC()
	e.record.ResultEventID = resultEventID
	e.committed = true
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, commandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[commandID]
	if !ok {
		return nil
	}
	if e.committed {
		return ErrAlreadyProcessed
	}
	delete(s.entries, commandID)
	return nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, commandID, commandType, resultEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[commandID]; ok {
		return ErrAlreadyProcessed
	}
	s.entries[commandID] = &memoryEntry{
		record: Record{
			CommandID:     commandID,
			CommandType:   commandType,
			ProcessedAt:   s.clock().UTC(),
			ResultEventID: resultEventID,
		},
		committed: true,
	}
	return nil
}

func (s *MemoryStore) IsProcessed(ctx context.Context, commandID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[commandID]
	return ok && e.committed, nil
}

func (s *MemoryStore) Lookup(ctx context.Context, commandID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[commandID]
	if !ok || !e.committed {
		return Record{}, false, nil
	}
	return e.record, true, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.committed {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	return nil
}

var _ Store = (*MemoryStore)(nil)
