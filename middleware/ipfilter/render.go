package ipfilter

import (
	"math"
	"net/http"
	"strings"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"

	"github.com/dustin/go-humanize"
)

// Response é a forma de saída de um bloqueio ou falha de store.
type Response struct {
	Status int
	Body   string
	Header http.Header
}

// Renderer traduz a decisão para status/body/headers. Não escreve nada.
type Renderer struct {
	PermanentStatus  int
	PermanentMessage string
	TemporaryStatus  int
	RetryMessage     string
	AppendRetryTime  bool
	RetryHeader      string
	SetRetryHeader   bool

	StoreErrorMessage string
	MaskStoreErrors   bool
}

func newRenderer(o Options) Renderer {
	return Renderer{
		PermanentStatus:   o.PermanentStatus,
		PermanentMessage:  o.PermanentMessage,
		TemporaryStatus:   o.TemporaryStatus,
		RetryMessage:      o.RetryMessage,
		AppendRetryTime:   !o.OmitRetryTime,
		RetryHeader:       o.RetryHeader,
		SetRetryHeader:    !o.OmitRetryHeader,
		StoreErrorMessage: o.StoreErrorMessage,
		MaskStoreErrors:   !o.ExposeStoreErrors,
	}
}

// Render retorna Response{} (Status 0) para Allow: o request segue sem resposta própria.
func (rd Renderer) Render(dec domain.Decision) Response {
	switch dec.Kind {
	case domain.BlockPermanent:
		return Response{Status: rd.PermanentStatus, Body: rd.PermanentMessage, Header: http.Header{}}

	case domain.BlockTemporary:
		resp := Response{Status: rd.TemporaryStatus, Body: rd.RetryMessage, Header: http.Header{}}
		if rd.AppendRetryTime {
			resp.Body += HumanizeRetry(dec.RetryAfter)
		}
		if rd.SetRetryHeader && rd.RetryHeader != "" {
			resp.Header.Set(rd.RetryHeader, formatMillis(dec.RetryAfterMillis()))
		}
		return resp
	}
	return Response{}
}

// RenderStoreError monta a resposta 500 de falha de store, mascarada ou não.
func (rd Renderer) RenderStoreError(err error) Response {
	msg := rd.StoreErrorMessage
	if !rd.MaskStoreErrors && err != nil {
		msg = err.Error()
	}
	return Response{Status: http.StatusInternalServerError, Body: msg, Header: http.Header{}}
}

// retryMagnitudes segue o formato longo "1 second", "23 hours", "2 days".
var retryMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "%d ms", DivBy: time.Millisecond},
	{D: 2 * time.Second, Format: "1 second", DivBy: time.Second},
	{D: time.Minute, Format: "%d seconds", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute", DivBy: time.Minute},
	{D: time.Hour, Format: "%d minutes", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour", DivBy: time.Hour},
	{D: humanize.Day, Format: "%d hours", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day", DivBy: humanize.Day},
	{D: math.MaxInt64, Format: "%d days", DivBy: humanize.Day},
}

// HumanizeRetry formata o tempo restante para o body ("23 hours", "500 ms").
// Valores negativos (registro vencido ainda no store) aparecem com sinal.
func HumanizeRetry(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	base := time.Unix(0, 0)
	return sign + strings.TrimSpace(humanize.CustomRelTime(base, base.Add(d), "", "", retryMagnitudes))
}
