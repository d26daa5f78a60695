package ipfilter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
)

const DefaultSignalHeader = "X-IP-Filter"

type upstreamSlotKey struct{}

// UpstreamSignal é o erro gerado quando o upstream responde com o header de sinal.
// A mensagem é o valor do header, comparado com os tokens pelo filtro.
type UpstreamSignal string

func (s UpstreamSignal) Error() string { return string(s) }

// Upstream transforma um reverse proxy em HandlerFunc capaz de pedir ban.
//
// Se a resposta do upstream trouxer `header` (ex: "X-IP-Filter: IP_FILTER_BLACKLIST"),
// a resposta é descartada, o header não chega ao cliente e o valor volta como
// UpstreamSignal para o filtro decidir. Demais erros do proxy viram 502.
//
// Ajusta ModifyResponse/ErrorHandler do proxy; chame uma vez por proxy.
func Upstream(proxy *httputil.ReverseProxy, header string, logger *slog.Logger) HandlerFunc {
	if header == "" {
		header = DefaultSignalHeader
	}
	if logger == nil {
		logger = slog.Default()
	}

	modify := proxy.ModifyResponse
	proxy.ModifyResponse = func(resp *http.Response) error {
		if modify != nil {
			if err := modify(resp); err != nil {
				return err
			}
		}
		token := strings.TrimSpace(resp.Header.Get(header))
		resp.Header.Del(header)
		if token == "" {
			return nil
		}
		return UpstreamSignal(token)
	}

	onError := proxy.ErrorHandler
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		var sig UpstreamSignal
		if errors.As(err, &sig) {
			if slot, ok := r.Context().Value(upstreamSlotKey{}).(*error); ok {
				*slot = sig
				return
			}
		}
		if onError != nil {
			onError(w, r, err)
			return
		}
		logger.Error("proxy error", "error", err, "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	return func(w http.ResponseWriter, r *http.Request) error {
		var signal error
		ctx := context.WithValue(r.Context(), upstreamSlotKey{}, &signal)
		proxy.ServeHTTP(w, r.WithContext(ctx))
		return signal
	}
}
