package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. Used in tests and single-instance development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	var existing *Record
	if rec, ok := s.records[id]; ok {
		existing = &rec
	}
	state, found, err := reserve(existing, fingerprint, now)
	if err != nil {
		return 0, Record{}, err
	}
	if found {
		return state, *existing, nil
	}
	rec := Record{Fingerprint: fingerprint, ExpiresAt: now.Add(ttl)}
	s.records[id] = rec
	return StateNew, rec, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := documentID(key)
	if existing, ok := s.records[id]; ok && existing.Fingerprint != rec.Fingerprint {
		return ErrFingerprintMismatch
	}
	rec.Header = replayableHeader(rec.Header)
	rec.Body = append([]byte(nil), rec.Body...)
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, documentID(key))
	s.mu.Unlock()
	return nil
}
