package ipfilter

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"ipfilter-gateway/middleware/ipfilter/application"
	"ipfilter-gateway/middleware/ipfilter/domain"
)

const (
	DefaultPermanentMessage  = "Permanently blacklisted"
	DefaultRetryMessage      = "Blacklisted, retry in "
	DefaultRetryHeader       = "X-Retry-After"
	DefaultStoreErrorMessage = "ERROR_DATABASE_ERROR"
)

var (
	ErrStoreRequired   = errors.New("ipfilter: store is required")
	ErrInvalidDuration = errors.New("ipfilter: duration must be > 0")
	ErrInvalidTokens   = errors.New("ipfilter: ban tokens must be distinct")
)

// Options é resolvido uma vez em New e só lido depois disso.
//
// Os booleanos são negativos (Omit*, Expose*) para que o valor zero mantenha o
// comportamento padrão: tempo no body, header de retry e erro de store mascarado.
type Options struct {
	// Store é obrigatório. O filtro só empresta o handle; fechar a conexão é de quem criou.
	Store  domain.BanStore
	Stats  domain.StatsStore
	Logger *slog.Logger

	// IdentityFn tem prioridade sobre KeyHeader/TrustXForwardedFor/SkipPrefixes.
	IdentityFn         IdentityFunc
	KeyHeader          string
	TrustXForwardedFor bool
	SkipPrefixes       []netip.Prefix

	Prefix   string        // padrão "ipFilter"
	Duration time.Duration // padrão 24h

	PermanentStatus  int    // padrão 403
	PermanentMessage string // padrão "Permanently blacklisted"
	TemporaryStatus  int    // padrão 401
	RetryMessage     string // padrão "Blacklisted, retry in "
	OmitRetryTime    bool
	RetryHeader      string // padrão "X-Retry-After"
	OmitRetryHeader  bool

	TemporaryToken string // padrão "IP_FILTER_BLACKLIST"
	PermanentToken string // padrão "IP_FILTER_BLACKLIST_PERMANENT"

	// Throw devolve o bloqueio como *Error para a camada externa em vez de escrever a resposta.
	Throw bool

	StoreErrorMessage string // padrão "ERROR_DATABASE_ERROR"
	ExposeStoreErrors bool

	// OnBlock é chamado em todo bloqueio com a mensagem base (permanente ou prefixo de retry).
	OnBlock func(r *http.Request, msg string)

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.IdentityFn == nil {
		o.IdentityFn = DefaultIdentityFunc(o.KeyHeader, o.TrustXForwardedFor, o.SkipPrefixes...)
	}
	if o.Prefix == "" {
		o.Prefix = application.DefaultPrefix
	}
	if o.Duration == 0 {
		o.Duration = application.DefaultDuration
	}
	if o.PermanentStatus == 0 {
		o.PermanentStatus = http.StatusForbidden
	}
	if o.PermanentMessage == "" {
		o.PermanentMessage = DefaultPermanentMessage
	}
	if o.TemporaryStatus == 0 {
		o.TemporaryStatus = http.StatusUnauthorized
	}
	if o.RetryMessage == "" {
		o.RetryMessage = DefaultRetryMessage
	}
	if o.RetryHeader == "" {
		o.RetryHeader = DefaultRetryHeader
	}
	if o.TemporaryToken == "" {
		o.TemporaryToken = domain.DefaultTemporaryToken
	}
	if o.PermanentToken == "" {
		o.PermanentToken = domain.DefaultPermanentToken
	}
	if o.StoreErrorMessage == "" {
		o.StoreErrorMessage = DefaultStoreErrorMessage
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) validate() error {
	if o.Store == nil {
		return ErrStoreRequired
	}
	if o.Duration <= 0 {
		return ErrInvalidDuration
	}
	if o.TemporaryToken == o.PermanentToken {
		return ErrInvalidTokens
	}
	return nil
}
