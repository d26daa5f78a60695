package application

import (
	"context"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

// BoundedStore limita as chamadas simultâneas ao store com um SlotPool.
//
// Se não houver vaga dentro de AcquireTimeout, a chamada falha com
// domain.ErrStoreBusy, que o Gate transforma em erro de store (sem retry).
type BoundedStore struct {
	Store          domain.BanStore
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// acquire tenta adquirir uma vaga.
// - Se `AcquireTimeout <= 0`, espera até o ctx cancelar.
// - Se `AcquireTimeout > 0`, espera até o timeout.
func (s BoundedStore) acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, domain.ErrStoreBusy
	}
	return release, nil
}

func (s BoundedStore) Get(ctx context.Context, key string) (domain.Record, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	defer release()
	return s.Store.Get(ctx, key)
}

func (s BoundedStore) SetIfAbsent(ctx context.Context, key string, rec domain.Record, ttl time.Duration) (bool, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()
	return s.Store.SetIfAbsent(ctx, key, rec, ttl)
}
