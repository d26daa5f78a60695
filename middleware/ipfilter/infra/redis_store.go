package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"

	"github.com/redis/go-redis/v9"
)

// RedisBanStore guarda os bans como inteiros: -1 (permanente) ou epoch em ms
// (temporário, com PX igual à duração do ban).
//
// Aceita redis.UniversalClient para funcionar com *redis.Client e *redis.ClusterClient.
type RedisBanStore struct {
	rdb redis.UniversalClient
}

func NewRedisBanStore(rdb redis.UniversalClient) *RedisBanStore {
	return &RedisBanStore{rdb: rdb}
}

func (s *RedisBanStore) Get(ctx context.Context, key string) (domain.Record, error) {
	v, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return domain.Record{}, nil
	}
	if err != nil {
		return domain.Record{}, err
	}
	return domain.Record{Value: v, Present: true}, nil
}

// SetIfAbsent usa SET key value [PX ttl] NX. Sem ttl a chave não expira.
func (s *RedisBanStore) SetIfAbsent(ctx context.Context, key string, rec domain.Record, ttl time.Duration) (bool, error) {
	if !rec.Present {
		return false, fmt.Errorf("ipfilter: refusing to store an absent record under %q", key)
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.SetNX(ctx, key, rec.Value, ttl).Result()
}

// Ping serve para checar a conexão no boot.
func (s *RedisBanStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
