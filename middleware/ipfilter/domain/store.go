package domain

import (
	"context"
	"time"
)

// BanStore é o adapter mínimo sobre o key-value compartilhado (ex: Redis).
//
// Requisitos do backend: escrita condicional atômica (create-only) e expiração
// com precisão de milissegundos. O filtro nunca apaga chaves; o TTL do store é
// o único caminho de volta para "sem ban" em bans temporários.
type BanStore interface {
	// Get retorna Record{Present:false} quando a chave não existe.
	Get(ctx context.Context, key string) (Record, error)
	// SetIfAbsent grava somente se a chave não existir. ttl <= 0 significa sem expiração.
	// Retorna false (sem erro) quando outra escrita chegou antes.
	SetIfAbsent(ctx context.Context, key string, rec Record, ttl time.Duration) (bool, error)
}

// WriteResult indica o destino de uma escrita de ban.
type WriteResult int

const (
	WriteCreated WriteResult = iota + 1
	// WriteRaceLost: outra instância criou a chave antes. Não é erro.
	WriteRaceLost
)

func (w WriteResult) String() string {
	switch w {
	case WriteCreated:
		return "created"
	case WriteRaceLost:
		return "race_lost"
	default:
		return "none"
	}
}
