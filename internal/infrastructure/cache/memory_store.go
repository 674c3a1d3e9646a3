package cache

import (
	"context"
	"sync"
	"time"

	"github.com/casaviva/backoffice/internal/domain/shared"
)

const sweepInterval = 5 * time.Minute

// MemoryStore holds idempotency keys in process. Keys are not shared with
// other instances, so it suits single-instance deployments and tests.
// Expired keys are swept while claiming; there is no background goroutine.
type MemoryStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	nextSweep time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{expiry: make(map[string]time.Time), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.nextSweep = s.now().Add(sweepInterval)
	return s
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !now.Before(s.nextSweep) {
		s.sweep(now)
	}
	if until, held := s.expiry[key]; held && now.Before(until) {
		return false, nil
	}
	s.expiry[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.expiry, key)
	s.mu.Unlock()
	return nil
}

// Close is a no-op; the store holds no connections.
func (s *MemoryStore) Close() error { return nil }

// Len counts stored keys, expired ones not yet swept included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *MemoryStore) sweep(now time.Time) {
	for key, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, key)
		}
	}
	s.nextSweep = now.Add(sweepInterval)
}

var _ shared.IdempotencyStore = (*MemoryStore)(nil)
