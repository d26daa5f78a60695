package application

import "ipfilter-gateway/middleware/ipfilter/domain"

// FloodService transforma o esgotamento de um limiter em pedido de ban.
//
// Fica depois do Gate no pipeline: o Gate não conta requests, só reage ao sinal.
type FloodService struct {
	Limiters domain.LimiterStore
	// Kind é o ban pedido quando o limiter nega. Padrão: BanTemporary.
	Kind domain.BanKind
}

// Check retorna nil se a identidade ainda tem saldo, ou um domain.BanSignal.
func (s FloodService) Check(id domain.Identity) error {
	if s.Limiters == nil {
		return nil
	}

	lim := s.Limiters.Get(id)
	if lim == nil || lim.Allow() {
		return nil
	}

	kind := s.Kind
	if kind == domain.NoBan {
		kind = domain.BanTemporary
	}
	return domain.BanSignal{Kind: kind}
}
