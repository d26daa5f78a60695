package infra

import (
	"context"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewSlotPool cria um semáforo baseado em channel com `max` vagas,
// usado para limitar chamadas simultâneas ao store.
func NewSlotPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}
