package ipfilter

import (
	"errors"
	"net/http"
)

// HandlerFunc é um handler que pode falhar. Devolver domain.BanSignal (ou um
// erro cuja mensagem seja um dos tokens) pede ban do cliente ao filtro.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Error é a falha levantada pelo filtro para a camada externa: falha de store
// (sempre) e bloqueio (quando Options.Throw).
type Error struct {
	Status  int
	Message string
	Header  http.Header
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func newError(resp Response, cause error) *Error {
	return &Error{Status: resp.Status, Message: resp.Body, Header: resp.Header, Err: cause}
}

// Adapt encaixa um http.Handler comum na cadeia. Ele nunca pede ban.
func Adapt(h http.Handler) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

// Handle é a borda: converte a cadeia em http.Handler.
// *Error é escrito com status/headers/mensagem; qualquer outro erro vira 500.
func Handle(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, err)
		}
	})
}

func WriteError(w http.ResponseWriter, err error) {
	var fe *Error
	if errors.As(err, &fe) {
		writeResponse(w, Response{Status: fe.Status, Body: fe.Message, Header: fe.Header})
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}
