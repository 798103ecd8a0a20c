package repositories

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/PauloRGNDev/lovableshop-starter/internal/domain"
)

// MemorySessionStore is the in-process CartSessionStore used when Redis is not configured.
// Entries are lost on restart and are not shared between instances.
type MemorySessionStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]sessionEntry
}

type sessionEntry struct {
	items     []domain.CartItem
	expiresAt time.Time
}

var _ CartSessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore returns an empty store. A nil clock defaults to time.Now.
func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{now: now, entries: make(map[string]sessionEntry)}
}

func (s *MemorySessionStore) Get(_ context.Context, key string) ([]domain.CartItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return slices.Clone(entry.items), true, nil
}

func (s *MemorySessionStore) Put(_ context.Context, key string, items []domain.CartItem, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := sessionEntry{items: slices.Clone(items)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	s.sweepLocked()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) sweepLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
