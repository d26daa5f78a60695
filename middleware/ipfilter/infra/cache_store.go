package infra

import (
	"context"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedBanStore guarda localmente (ristretto) os bans encontrados no store.
//
// Só registros presentes entram no cache: ausência nunca é cacheada, senão um
// ban gravado por outra instância ficaria invisível. Como o filtro nunca
// sobrescreve nem apaga um ban, a cópia local continua válida até expirar.
type CachedBanStore struct {
	inner  domain.BanStore
	cache  *ristretto.Cache[string, int64]
	now    func() time.Time
	maxTTL time.Duration
}

type CacheOption func(*CachedBanStore)

// WithCacheMaxTTL limita quanto tempo um ban fica no cache local.
// Com 0, temporários ficam até expirar e permanentes não expiram.
func WithCacheMaxTTL(d time.Duration) CacheOption {
	return func(c *CachedBanStore) { c.maxTTL = d }
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedBanStore) { c.now = now }
}

func NewCachedBanStore(inner domain.BanStore, opts ...CacheOption) (*CachedBanStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters:        1e6,     // chaves rastreadas para frequência
		MaxCost:            1 << 16, // cada ban custa 1
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	c := &CachedBanStore{
		inner:  inner,
		cache:  cache,
		now:    time.Now,
		maxTTL: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CachedBanStore) Get(ctx context.Context, key string) (domain.Record, error) {
	if v, ok := c.cache.Get(key); ok {
		return domain.Record{Value: v, Present: true}, nil
	}

	rec, err := c.inner.Get(ctx, key)
	if err != nil || !rec.Present {
		return rec, err
	}
	c.remember(key, rec)
	return rec, nil
}

func (c *CachedBanStore) SetIfAbsent(ctx context.Context, key string, rec domain.Record, ttl time.Duration) (bool, error) {
	created, err := c.inner.SetIfAbsent(ctx, key, rec, ttl)
	if err != nil {
		return false, err
	}
	if created {
		c.remember(key, rec)
	}
	return created, nil
}

func (c *CachedBanStore) remember(key string, rec domain.Record) {
	ttl := c.maxTTL
	if until, ok := rec.ExpiresAt(); ok {
		left := until.Sub(c.now())
		if left <= 0 {
			return
		}
		if ttl <= 0 || left < ttl {
			ttl = left
		}
	}
	c.cache.SetWithTTL(key, rec.Value, 1, ttl)
}

// Wait bloqueia até os Set pendentes serem aplicados (ristretto é assíncrono).
func (c *CachedBanStore) Wait() { c.cache.Wait() }

func (c *CachedBanStore) Close() { c.cache.Close() }
