package ipfilter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ipfilter-gateway/middleware/ipfilter/domain"
	"ipfilter-gateway/middleware/ipfilter/infra"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingStore struct {
	domain.BanStore
	gets int
	sets int
}

func (s *countingStore) Get(ctx context.Context, key string) (domain.Record, error) {
	s.gets++
	return s.BanStore.Get(ctx, key)
}

func (s *countingStore) SetIfAbsent(ctx context.Context, key string, rec domain.Record, ttl time.Duration) (bool, error) {
	s.sets++
	return s.BanStore.SetIfAbsent(ctx, key, rec, ttl)
}

type brokenStore struct{ err error }

func (s brokenStore) Get(context.Context, string) (domain.Record, error) { return domain.Record{}, s.err }

func (s brokenStore) SetIfAbsent(context.Context, string, domain.Record, time.Duration) (bool, error) {
	return false, s.err
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func fixedIdentity(id string) IdentityFunc {
	return func(*http.Request) (string, bool) { return id, true }
}

// downstream controlado pelo teste: devolve *signal (se houver) ou responde 200.
func signalingHandler(signal *error, calls *int) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		*calls++
		if *signal != nil {
			return *signal
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "Not blocked!")
		return nil
	}
}

func serve(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "127.0.0.1:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func newFilter(t *testing.T, opts Options) *Filter {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestMiddleware_TemporaryBanLifecycle(t *testing.T) {
	clock := &manualClock{now: time.UnixMilli(1_700_000_000_000)}
	store := infra.NewMemoryBanStore(infra.WithClock(clock.Now))

	f := newFilter(t, Options{
		Store:         store,
		Duration:      1000 * time.Millisecond,
		RetryMessage:  "Blacklisted, non-permanent",
		OmitRetryTime: true,
		IdentityFn:    fixedIdentity("A"),
		Now:           clock.Now,
	})

	var signal error
	calls := 0
	h := Handle(f.Wrap(signalingHandler(&signal, &calls)))

	// 1) sem registro: segue para o downstream
	w := serve(t, h)
	if w.Code != http.StatusOK || w.Body.String() != "Not blocked!" {
		t.Fatalf("expected 200 pass-through, got %d %q", w.Code, w.Body.String())
	}

	// 2) downstream pede ban temporário
	signal = errors.New("IP_FILTER_BLACKLIST")
	w = serve(t, h)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Body.String(); got != "Blacklisted, non-permanent" {
		t.Fatalf("unexpected body %q", got)
	}
	if got := w.Header().Get("X-Retry-After"); got != "1000" {
		t.Fatalf("expected X-Retry-After=1000, got %q", got)
	}

	// 3) T0+500ms: continua bloqueado, sem chamar o downstream
	signal = nil
	clock.Advance(500 * time.Millisecond)
	before := calls
	w = serve(t, h)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 while banned, got %d", w.Code)
	}
	if got := w.Header().Get("X-Retry-After"); got != "500" {
		t.Fatalf("expected X-Retry-After=500, got %q", got)
	}
	if calls != before {
		t.Fatalf("downstream must not run for a banned identity")
	}

	// 4) T0+1500ms: liberado de novo
	clock.Advance(time.Second)
	w = serve(t, h)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after ban expiry, got %d", w.Code)
	}
}

func TestMiddleware_PermanentBanNeverExpires(t *testing.T) {
	clock := &manualClock{now: time.UnixMilli(1_700_000_000_000)}
	store := infra.NewMemoryBanStore(infra.WithClock(clock.Now))

	f := newFilter(t, Options{
		Store:      store,
		Duration:   time.Second,
		IdentityFn: fixedIdentity("B"),
		Now:        clock.Now,
	})

	signal := error(domain.ErrBanPermanent)
	calls := 0
	h := Handle(f.Wrap(signalingHandler(&signal, &calls)))

	w := serve(t, h)
	if w.Code != http.StatusForbidden || w.Body.String() != "Permanently blacklisted" {
		t.Fatalf("expected 403 permanent, got %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Retry-After"); got != "" {
		t.Fatalf("permanent ban must not set retry header, got %q", got)
	}

	signal = nil
	for _, wait := range []time.Duration{1500 * time.Millisecond, 48 * time.Hour} {
		clock.Advance(wait)
		w = serve(t, h)
		if w.Code != http.StatusForbidden || w.Body.String() != "Permanently blacklisted" {
			t.Fatalf("expected permanent ban after %s, got %d %q", wait, w.Code, w.Body.String())
		}
	}
}

func TestMiddleware_DefaultBodyAppendsHumanizedRetry(t *testing.T) {
	store := infra.NewMemoryBanStore()
	now := time.Now()
	_, _ = store.SetIfAbsent(context.Background(), "ipFilter:127.0.0.1", domain.TemporaryRecord(now.Add(24*time.Hour)), 24*time.Hour)

	f := newFilter(t, Options{Store: store, Now: func() time.Time { return now }})
	h := Handle(f.Wrap(Adapt(http.NotFoundHandler())))

	w := serve(t, h)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Body.String(); got != "Blacklisted, retry in 1 day" {
		t.Fatalf("unexpected body %q", got)
	}
	if got := w.Header().Get("X-Retry-After"); got != "86400000" {
		t.Fatalf("unexpected header %q", got)
	}
}

func TestMiddleware_SkipIdentityDoesNotReadStore(t *testing.T) {
	inner := infra.NewMemoryBanStore()
	_, _ = inner.SetIfAbsent(context.Background(), "ipFilter:", domain.PermanentRecord(), 0)
	store := &countingStore{BanStore: inner}

	f := newFilter(t, Options{
		Store:      store,
		IdentityFn: func(*http.Request) (string, bool) { return "", false },
	})

	signal := error(domain.ErrBanPermanent)
	calls := 0
	h := Handle(f.Wrap(signalingHandler(&signal, &calls)))

	// o ban pedido por um request ignorado também não é gravado: o erro volta intacto
	w := serve(t, h)
	if store.gets != 0 || store.sets != 0 {
		t.Fatalf("expected no store access, got gets=%d sets=%d", store.gets, store.sets)
	}
	if calls != 1 {
		t.Fatalf("expected downstream to run once, got %d", calls)
	}
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected forwarded error to reach the boundary, got %d", w.Code)
	}

	signal = nil
	if w = serve(t, h); w.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", w.Code)
	}
}

func TestMiddleware_UnrelatedErrorForwardedWithoutWrite(t *testing.T) {
	store := &countingStore{BanStore: infra.NewMemoryBanStore()}
	f := newFilter(t, Options{Store: store})

	boom := errors.New("boom")
	next := func(http.ResponseWriter, *http.Request) error { return boom }

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	err := f.Wrap(next)(httptest.NewRecorder(), r)
	if err != boom {
		t.Fatalf("expected the same error value, got %v", err)
	}
	if store.sets != 0 {
		t.Fatalf("expected no write, got %d", store.sets)
	}
}

func TestMiddleware_StoreErrorMaskedByDefault(t *testing.T) {
	f := newFilter(t, Options{Store: brokenStore{err: errors.New("dial tcp 10.0.0.5:6379: connection refused")}})

	calls := 0
	var signal error
	h := f.Wrap(signalingHandler(&signal, &calls))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	err := h(httptest.NewRecorder(), r)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Status != http.StatusInternalServerError || fe.Message != "ERROR_DATABASE_ERROR" {
		t.Fatalf("expected masked 500, got %d %q", fe.Status, fe.Message)
	}
	if !errors.Is(err, domain.ErrStoreRead) {
		t.Fatalf("expected cause to be a store read error")
	}
	if calls != 0 {
		t.Fatalf("downstream must not run when the store read fails")
	}
}

func TestMiddleware_StoreErrorExposed(t *testing.T) {
	f := newFilter(t, Options{
		Store:             brokenStore{err: errors.New("connection refused")},
		ExposeStoreErrors: true,
	})
	h := Handle(f.Wrap(Adapt(http.NotFoundHandler())))

	w := serve(t, h)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := w.Body.String(); got == "ERROR_DATABASE_ERROR" || got == "" {
		t.Fatalf("expected raw store error in body, got %q", got)
	}
}

type writeFailStore struct {
	domain.BanStore
	err error
}

func (s writeFailStore) SetIfAbsent(context.Context, string, domain.Record, time.Duration) (bool, error) {
	return false, s.err
}

func TestMiddleware_WriteErrorIsInternalError(t *testing.T) {
	f := newFilter(t, Options{Store: writeFailStore{BanStore: infra.NewMemoryBanStore(), err: errors.New("READONLY")}})

	signal := error(domain.ErrBanTemporary)
	calls := 0
	h := Handle(f.Wrap(signalingHandler(&signal, &calls)))

	w := serve(t, h)
	if w.Code != http.StatusInternalServerError || w.Body.String() != "ERROR_DATABASE_ERROR" {
		t.Fatalf("expected masked 500, got %d %q", w.Code, w.Body.String())
	}
}

func TestMiddleware_ThrowRaisesBlockAsError(t *testing.T) {
	store := infra.NewMemoryBanStore()
	now := time.Now()
	_, _ = store.SetIfAbsent(context.Background(), "ipFilter:127.0.0.1", domain.TemporaryRecord(now.Add(time.Minute)), time.Minute)

	f := newFilter(t, Options{Store: store, Throw: true, Now: func() time.Time { return now }})

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "127.0.0.1:1234"
	w := httptest.NewRecorder()
	err := f.Wrap(Adapt(http.NotFoundHandler()))(w, r)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Status != http.StatusUnauthorized || fe.Header.Get("X-Retry-After") != "60000" {
		t.Fatalf("unexpected error %d %v", fe.Status, fe.Header)
	}
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Fatalf("throw mode must not write the response directly")
	}

	// na borda o erro vira a mesma resposta
	w = httptest.NewRecorder()
	WriteError(w, err)
	if w.Code != http.StatusUnauthorized || w.Header().Get("X-Retry-After") != "60000" {
		t.Fatalf("boundary should render the raised block, got %d", w.Code)
	}
}

func TestMiddleware_OnBlockHookAndStats(t *testing.T) {
	store := infra.NewMemoryBanStore()
	stats := infra.NewMemoryStatsStore()

	var hooked []string
	f := newFilter(t, Options{
		Store:   store,
		Stats:   stats,
		OnBlock: func(_ *http.Request, msg string) { hooked = append(hooked, msg) },
	})

	signal := error(domain.ErrBanPermanent)
	calls := 0
	h := Handle(f.Wrap(signalingHandler(&signal, &calls)))

	serve(t, h)
	serve(t, h)

	if len(hooked) != 2 || hooked[0] != DefaultPermanentMessage {
		t.Fatalf("expected hook on each block, got %v", hooked)
	}
	total := stats.Total()
	if total[domain.OutcomeBannedPermanent] != 1 || total[domain.OutcomeBlockedPermanent] != 1 {
		t.Fatalf("unexpected stats %v", total)
	}
}

func TestMiddleware_PlainHandler(t *testing.T) {
	store := infra.NewMemoryBanStore()
	_, _ = store.SetIfAbsent(context.Background(), "ipFilter:10.0.0.9", domain.PermanentRecord(), 0)

	mw, err := Middleware(Options{Store: store, Logger: discardLogger})
	if err != nil {
		t.Fatalf("Middleware: %v", err)
	}
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	if w = serve(t, h); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for other identity, got %d", w.Code)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
	if _, err := New(Options{Store: infra.NewMemoryBanStore(), Duration: -time.Second}); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := New(Options{Store: infra.NewMemoryBanStore(), TemporaryToken: "X", PermanentToken: "X"}); !errors.Is(err, ErrInvalidTokens) {
		t.Fatalf("expected ErrInvalidTokens, got %v", err)
	}
}
