package domain

import "time"

// Identity é a chave do cliente (ex: IP). O domínio trata como opaca.
type Identity string

// PermanentMarker é o valor gravado no store para ban permanente.
const PermanentMarker int64 = -1

// Record é o valor guardado em "<prefix>:<identity>".
//
//   - Present=false: sem ban
//   - Value < 0: ban permanente
//   - Value >= 0: ban temporário até Value (ms desde epoch); o TTL do store remove a chave
type Record struct {
	Value   int64
	Present bool
}

func PermanentRecord() Record { return Record{Value: PermanentMarker, Present: true} }

// TemporaryRecord cria um registro válido até `until` (precisão de milissegundos).
func TemporaryRecord(until time.Time) Record {
	return Record{Value: until.UnixMilli(), Present: true}
}

func (r Record) Permanent() bool { return r.Present && r.Value < 0 }

// ExpiresAt retorna o instante de expiração de um ban temporário.
// Para registro ausente ou permanente retorna (zero, false).
func (r Record) ExpiresAt() (time.Time, bool) {
	if !r.Present || r.Value < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(r.Value), true
}

type DecisionKind int

const (
	Allow DecisionKind = iota
	BlockTemporary
	BlockPermanent
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case BlockTemporary:
		return "block_temporary"
	case BlockPermanent:
		return "block_permanent"
	default:
		return "unknown"
	}
}

// Decision é derivada a cada request, nunca persistida.
type Decision struct {
	Kind DecisionKind
	// RetryAfter só faz sentido em BlockTemporary. Pode ser zero ou negativo
	// quando o store ainda devolve um registro já vencido (atraso de TTL, relógio).
	RetryAfter time.Duration
}

func (d Decision) Allowed() bool { return d.Kind == Allow }

func (d Decision) RetryAfterMillis() int64 { return d.RetryAfter.Milliseconds() }

// Evaluate traduz o registro do store em decisão. Função pura.
//
// Não aplica piso no tempo restante: um registro temporário vencido que o store
// ainda não removeu continua bloqueando, com RetryAfter <= 0.
func Evaluate(rec Record, now time.Time) Decision {
	if !rec.Present {
		return Decision{Kind: Allow}
	}
	if rec.Value < 0 {
		return Decision{Kind: BlockPermanent}
	}
	left := rec.Value - now.UnixMilli()
	return Decision{Kind: BlockTemporary, RetryAfter: time.Duration(left) * time.Millisecond}
}
