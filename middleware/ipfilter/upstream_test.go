package ipfilter

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"testing"

	"ipfilter-gateway/middleware/ipfilter/infra"
)

func newUpstream(t *testing.T, token *string) *httputil.ReverseProxy {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if *token != "" {
			w.Header().Set(DefaultSignalHeader, *token)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "wrong password")
			return
		}
		_, _ = io.WriteString(w, "upstream ok")
	}))
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return httputil.NewSingleHostReverseProxy(target)
}

func TestUpstream_SignalHeaderBansClient(t *testing.T) {
	token := ""
	proxy := newUpstream(t, &token)

	f := newFilter(t, Options{Store: infra.NewMemoryBanStore()})
	h := Handle(f.Wrap(Upstream(proxy, "", discardLogger)))

	w := serve(t, h)
	if w.Code != http.StatusOK || w.Body.String() != "upstream ok" {
		t.Fatalf("expected proxied response, got %d %q", w.Code, w.Body.String())
	}

	token = "IP_FILTER_BLACKLIST_PERMANENT"
	w = serve(t, h)
	if w.Code != http.StatusForbidden || w.Body.String() != "Permanently blacklisted" {
		t.Fatalf("expected permanent ban, got %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get(DefaultSignalHeader); got != "" {
		t.Fatalf("signal header must not leak, got %q", got)
	}

	token = ""
	if w = serve(t, h); w.Code != http.StatusForbidden {
		t.Fatalf("expected ban to stick, got %d", w.Code)
	}
}

func TestUpstream_UnknownTokenIsForwardedAsError(t *testing.T) {
	token := "SOMETHING_ELSE"
	proxy := newUpstream(t, &token)

	store := infra.NewMemoryBanStore()
	f := newFilter(t, Options{Store: store})

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "127.0.0.1:1234"
	err := f.Wrap(Upstream(proxy, "", discardLogger))(httptest.NewRecorder(), r)
	if err == nil || err.Error() != "SOMETHING_ELSE" {
		t.Fatalf("expected upstream signal to be forwarded, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("unknown token must not write a ban")
	}
}

func TestUpstream_ProxyErrorIsBadGateway(t *testing.T) {
	target, _ := url.Parse("http://127.0.0.1:1")
	proxy := httputil.NewSingleHostReverseProxy(target)

	h := Handle(Upstream(proxy, "", discardLogger))
	if w := serve(t, h); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}
