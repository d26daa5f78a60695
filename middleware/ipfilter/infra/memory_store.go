package infra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

// MemoryBanStore é um BanStore em memória com expiração.
// Útil para testes e para uma única instância (não compartilha estado).
type MemoryBanStore struct {
	mu           sync.Mutex
	entries      map[string]memoryEntry
	now          func() time.Time
	cleanupEvery time.Duration
}

type memoryEntry struct {
	rec       domain.Record
	expiresAt time.Time // zero = não expira
}

type MemoryStoreOption func(*MemoryBanStore)

// WithClock troca o relógio usado para expirar as chaves.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryBanStore) { s.now = now }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryBanStore) { s.cleanupEvery = d }
}

func NewMemoryBanStore(opts ...MemoryStoreOption) *MemoryBanStore {
	s := &MemoryBanStore{
		entries:      make(map[string]memoryEntry),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryBanStore) Get(_ context.Context, key string) (domain.Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok {
		return domain.Record{}, nil
	}
	if ent.expired(now) {
		delete(s.entries, key)
		return domain.Record{}, nil
	}
	return ent.rec, nil
}

func (s *MemoryBanStore) SetIfAbsent(_ context.Context, key string, rec domain.Record, ttl time.Duration) (bool, error) {
	if !rec.Present {
		return false, fmt.Errorf("ipfilter: refusing to store an absent record under %q", key)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok && !ent.expired(now) {
		return false, nil
	}

	ent := memoryEntry{rec: rec}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	s.entries[key] = ent
	return true, nil
}

func (s *MemoryBanStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove as chaves vencidas (o Get já ignora as vencidas).
func (s *MemoryBanStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.expired(now) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor limpa chaves vencidas periodicamente. Pare cancelando o contexto.
func (s *MemoryBanStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
