package ipfilter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"ipfilter-gateway/middleware/ipfilter/application"
	"ipfilter-gateway/middleware/ipfilter/domain"
)

// Filter é o controlador do filtro para HTTP. Seguro para uso concorrente.
type Filter struct {
	opts     Options
	gate     application.Gate
	renderer Renderer
}

func New(opts Options) (*Filter, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	return &Filter{
		opts: opts,
		gate: application.Gate{
			Store:    opts.Store,
			Prefix:   opts.Prefix,
			Duration: opts.Duration,
			Tokens:   domain.SignalTokens{Temporary: opts.TemporaryToken, Permanent: opts.PermanentToken},
			Now:      opts.Now,
			Logger:   opts.Logger,
		},
		renderer: newRenderer(opts),
	}, nil
}

// Middleware monta o filtro em volta de um http.Handler comum. Falhas de store
// são escritas como 500. Para o pipeline poder pedir ban, use Wrap.
func Middleware(opts Options) (func(next http.Handler) http.Handler, error) {
	f, err := New(opts)
	if err != nil {
		return nil, err
	}
	return func(next http.Handler) http.Handler {
		return Handle(f.Wrap(Adapt(next)))
	}, nil
}

func (f *Filter) Renderer() Renderer { return f.renderer }

// Wrap aplica o filtro em volta de next.
//
// Sem pedido de ban, o resultado de next volta sem alteração (inclusive erros
// que o filtro não reconhece).
func (f *Filter) Wrap(next HandlerFunc) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, ok := f.opts.IdentityFn(r)
		if !ok {
			f.record(r, "", domain.OutcomeSkipped)
			return next(w, r)
		}
		ident := domain.Identity(id)

		res, err := f.gate.Check(r.Context(), ident, func(context.Context) error {
			return next(w, r)
		})
		if res.Passed {
			f.record(r, ident, domain.OutcomeAllowed)
			return err
		}
		if err != nil {
			f.record(r, ident, domain.OutcomeStoreError)
			return f.storeFailure(r, ident, err)
		}

		f.record(r, ident, res.Outcome())
		return f.block(w, r, ident, res.Decision)
	}
}

func (f *Filter) block(w http.ResponseWriter, r *http.Request, id domain.Identity, dec domain.Decision) error {
	resp := f.renderer.Render(dec)

	msg := f.opts.RetryMessage
	if dec.Kind == domain.BlockPermanent {
		msg = f.opts.PermanentMessage
	}
	f.opts.Logger.Info("request blocked",
		"identity", string(id),
		"decision", dec.Kind.String(),
		"retry_after_ms", dec.RetryAfterMillis(),
		"method", r.Method,
		"path", r.URL.Path,
	)
	if f.opts.OnBlock != nil {
		f.opts.OnBlock(r, msg)
	}

	if f.opts.Throw {
		return newError(resp, nil)
	}
	writeResponse(w, resp)
	return nil
}

func (f *Filter) storeFailure(r *http.Request, id domain.Identity, err error) error {
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	f.opts.Logger.Log(r.Context(), level, "store error", "identity", string(id), "error", err)
	return newError(f.renderer.RenderStoreError(err), err)
}

func (f *Filter) record(r *http.Request, id domain.Identity, outcome domain.Outcome) {
	if f.opts.Stats == nil {
		return
	}
	_ = f.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Identity: id,
		Outcome:  outcome,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       time.Now(),
	})
}
