package domain

import "errors"

const (
	DefaultTemporaryToken = "IP_FILTER_BLACKLIST"
	DefaultPermanentToken = "IP_FILTER_BLACKLIST_PERMANENT"
)

// BanKind é o pedido de ban que o pipeline pode devolver.
type BanKind int

const (
	NoBan BanKind = iota
	BanTemporary
	BanPermanent
)

func (k BanKind) String() string {
	switch k {
	case NoBan:
		return "none"
	case BanTemporary:
		return "temporary"
	case BanPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// BanSignal é o contrato estreito entre o pipeline e o filtro: um handler
// devolve BanSignal (ou algo que o embrulhe) para pedir o ban do cliente atual.
type BanSignal struct {
	Kind BanKind
}

func (s BanSignal) Error() string {
	return "ipfilter: " + s.Kind.String() + " ban requested"
}

var (
	ErrBanTemporary error = BanSignal{Kind: BanTemporary}
	ErrBanPermanent error = BanSignal{Kind: BanPermanent}
)

// SignalTokens são as mensagens que, comparadas por igualdade com err.Error(),
// também pedem ban. Permite sinalizar sem importar este pacote (ex: header do upstream).
type SignalTokens struct {
	Temporary string
	Permanent string
}

func DefaultSignalTokens() SignalTokens {
	return SignalTokens{Temporary: DefaultTemporaryToken, Permanent: DefaultPermanentToken}
}

// Classify inspeciona o resultado do pipeline.
// Qualquer erro que não seja BanSignal nem bata com um dos tokens vira NoBan
// e deve ser repassado sem alteração pelo chamador.
func (t SignalTokens) Classify(err error) BanKind {
	if err == nil {
		return NoBan
	}

	var sig BanSignal
	if errors.As(err, &sig) {
		return sig.Kind
	}

	switch msg := err.Error(); {
	case t.Permanent != "" && msg == t.Permanent:
		return BanPermanent
	case t.Temporary != "" && msg == t.Temporary:
		return BanTemporary
	}
	return NoBan
}
