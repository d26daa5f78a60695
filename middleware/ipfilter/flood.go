package ipfilter

import (
	"net/http"

	"ipfilter-gateway/middleware/ipfilter/application"
	"ipfilter-gateway/middleware/ipfilter/domain"
)

type FloodOptions struct {
	Limiters   domain.LimiterStore
	IdentityFn IdentityFunc
	// Kind é o ban pedido ao esgotar o bucket. Padrão: temporário.
	Kind domain.BanKind
}

// FloodSignal é um estágio para colocar depois do filtro: quem esgota o token
// bucket não chega em next e o filtro recebe o pedido de ban.
func FloodSignal(opts FloodOptions) func(next HandlerFunc) HandlerFunc {
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc("", false)
	}
	svc := application.FloodService{Limiters: opts.Limiters, Kind: opts.Kind}

	return func(next HandlerFunc) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			if id, ok := opts.IdentityFn(r); ok {
				if err := svc.Check(domain.Identity(id)); err != nil {
					return err
				}
			}
			return next(w, r)
		}
	}
}
