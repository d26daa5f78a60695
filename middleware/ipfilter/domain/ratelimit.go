package domain

// Limiter decide se mais uma ação é permitida agora (token bucket, etc).
// Usado pelo estágio de flood, que pede ban temporário quando esgota.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por identidade.
type LimiterStore interface {
	Get(Identity) Limiter
}
