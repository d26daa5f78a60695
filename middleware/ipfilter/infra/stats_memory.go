package infra

import (
	"context"
	"sync"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

// Counters agrupa contagens por resultado (allowed, blocked_temporary, ...).
type Counters map[domain.Outcome]int64

func (c Counters) clone() Counters {
	out := make(Counters, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byRoute    map[string]Counters
	byIdentity map[domain.Identity]Counters

	trackIdentities bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentities(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentities = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		total:      make(Counters),
		byRoute:    make(map[string]Counters),
		byIdentity: make(map[domain.Identity]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++

	c := s.byRoute[route]
	if c == nil {
		c = make(Counters)
		s.byRoute[route] = c
	}
	c[ev.Outcome]++

	if s.trackIdentities && ev.Identity != "" {
		k := s.byIdentity[ev.Identity]
		if k == nil {
			k = make(Counters)
			s.byIdentity[ev.Identity] = k
		}
		k[ev.Outcome]++
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total.clone()
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v.clone()
	}
	return out
}

func (s *MemoryStatsStore) ByIdentity() map[domain.Identity]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Identity]Counters, len(s.byIdentity))
	for k, v := range s.byIdentity {
		out[k] = v.clone()
	}
	return out
}
