package domain

import (
	"context"
	"time"
)

// Outcome é o resultado final de um request no filtro, para estatísticas.
type Outcome string

const (
	OutcomeAllowed          Outcome = "allowed"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeBlockedTemporary Outcome = "blocked_temporary"
	OutcomeBlockedPermanent Outcome = "blocked_permanent"
	OutcomeBannedTemporary  Outcome = "banned_temporary"
	OutcomeBannedPermanent  Outcome = "banned_permanent"
	OutcomeStoreError       Outcome = "store_error"
)

// StatsEvent representa um evento de decisão do filtro.
//
// Method/Path são strings genéricas (web, gRPC, etc).
// Cuidado com cardinalidade ao guardar Identity/Path em Redis/Prometheus.
type StatsEvent struct {
	Identity Identity
	Outcome  Outcome

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência das estatísticas.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
