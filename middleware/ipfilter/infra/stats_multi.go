package infra

import (
	"context"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

// MultiStats repassa o evento para vários StatsStore e devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
