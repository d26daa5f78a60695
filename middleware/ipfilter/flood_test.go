package ipfilter

import (
	"net/http"
	"testing"

	"ipfilter-gateway/middleware/ipfilter/infra"
)

func TestFloodSignal_ExhaustedBucketBansClient(t *testing.T) {
	store := infra.NewMemoryBanStore()
	f := newFilter(t, Options{Store: store})

	flood := FloodSignal(FloodOptions{Limiters: infra.NewLimiterStore(0.02, 2)})

	calls := 0
	next := func(w http.ResponseWriter, r *http.Request) error {
		calls++
		w.WriteHeader(http.StatusOK)
		return nil
	}
	h := Handle(f.Wrap(flood(next)))

	for i := 0; i < 2; i++ {
		if w := serve(t, h); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, w.Code)
		}
	}

	w := serve(t, h)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected temporary ban after burst, got %d", w.Code)
	}
	if w.Header().Get("X-Retry-After") == "" {
		t.Fatalf("expected retry header")
	}
	if calls != 2 {
		t.Fatalf("expected next to run only within burst, got %d", calls)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one ban record, got %d", store.Len())
	}
}
