package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"
)

const (
	DefaultPrefix   = "ipFilter"
	DefaultDuration = 24 * time.Hour
)

// Next é o restante do pipeline. Um erro devolvido aqui pode ser um pedido de
// ban (ver domain.SignalTokens.Classify) ou uma falha qualquer, repassada intacta.
type Next func(ctx context.Context) error

// Result descreve o que aconteceu com o request dentro do gate.
type Result struct {
	Decision domain.Decision
	// Passed: o pipeline rodou sem pedir ban; o erro devolvido por Check é o dele.
	Passed bool
	// Banned: o pipeline pediu ban e o registro foi (ou tentou ser) gravado.
	Banned bool
	Write  domain.WriteResult
}

func (r Result) Outcome() domain.Outcome {
	switch {
	case r.Passed:
		return domain.OutcomeAllowed
	case r.Banned && r.Decision.Kind == domain.BlockPermanent:
		return domain.OutcomeBannedPermanent
	case r.Banned:
		return domain.OutcomeBannedTemporary
	case r.Decision.Kind == domain.BlockPermanent:
		return domain.OutcomeBlockedPermanent
	default:
		return domain.OutcomeBlockedTemporary
	}
}

// Gate concentra a regra do filtro: consulta, decisão e escrita do ban.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna um Result.
// O store é emprestado a cada chamada; o ciclo de vida da conexão é de quem injeta.
type Gate struct {
	Store    domain.BanStore
	Prefix   string
	Duration time.Duration
	Tokens   domain.SignalTokens
	Now      func() time.Time
	Logger   *slog.Logger
}

func (g Gate) withDefaults() Gate {
	if g.Prefix == "" {
		g.Prefix = DefaultPrefix
	}
	if g.Duration <= 0 {
		g.Duration = DefaultDuration
	}
	if g.Tokens == (domain.SignalTokens{}) {
		g.Tokens = domain.DefaultSignalTokens()
	}
	if g.Now == nil {
		g.Now = time.Now
	}
	if g.Logger == nil {
		g.Logger = slog.Default()
	}
	return g
}

// Key monta a chave do store: "<prefix>:<identity>".
func (g Gate) Key(id domain.Identity) string {
	g = g.withDefaults()
	return g.Prefix + ":" + string(id)
}

// Check executa o fluxo de um request:
//
//  1. lê o registro; falha de leitura encerra com *domain.StoreError (sem allow por padrão)
//  2. bloqueado: retorna a decisão sem escrever nada (ban vigente não é renovado)
//  3. liberado: chama next; sem pedido de ban, Passed=true e o erro de next volta intacto
//  4. pedido de ban: grava via WriteBan e retorna a decisão de bloqueio
func (g Gate) Check(ctx context.Context, id domain.Identity, next Next) (Result, error) {
	g = g.withDefaults()
	key := g.Key(id)

	rec, err := g.Store.Get(ctx, key)
	if err != nil {
		return Result{}, &domain.StoreError{Op: domain.OpRead, Key: key, Err: err}
	}

	dec := domain.Evaluate(rec, g.Now())
	if !dec.Allowed() {
		return Result{Decision: dec}, nil
	}

	downstreamErr := next(ctx)
	kind := g.Tokens.Classify(downstreamErr)
	if kind == domain.NoBan {
		return Result{Decision: dec, Passed: true}, downstreamErr
	}

	dec, wr, err := g.WriteBan(ctx, id, kind)
	return Result{Decision: dec, Banned: true, Write: wr}, err
}

// WriteBan grava o ban pedido e retorna a decisão correspondente.
//
// A escrita é create-only: perder a corrida para outra instância devolve
// domain.WriteRaceLost sem erro, e o request atual é rejeitado do mesmo jeito.
func (g Gate) WriteBan(ctx context.Context, id domain.Identity, kind domain.BanKind) (domain.Decision, domain.WriteResult, error) {
	g = g.withDefaults()
	key := g.Key(id)
	now := g.Now()

	var (
		rec domain.Record
		ttl time.Duration
	)
	switch kind {
	case domain.BanPermanent:
		rec = domain.PermanentRecord()
	case domain.BanTemporary:
		rec = domain.TemporaryRecord(now.Add(g.Duration))
		ttl = g.Duration
	default:
		return domain.Decision{Kind: domain.Allow}, 0, fmt.Errorf("ipfilter: invalid ban kind %d", kind)
	}

	dec := domain.Evaluate(rec, now)

	created, err := g.Store.SetIfAbsent(ctx, key, rec, ttl)
	if err != nil {
		return dec, 0, &domain.StoreError{Op: domain.OpWrite, Key: key, Err: err}
	}
	if !created {
		g.Logger.Debug("ban race lost", "identity", string(id), "kind", kind.String())
		return dec, domain.WriteRaceLost, nil
	}

	g.Logger.Info("ban written", "identity", string(id), "kind", kind.String(), "ttl", ttl)
	return dec, domain.WriteCreated, nil
}
