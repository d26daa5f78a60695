package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ipfilter-gateway/middleware/ipfilter"
	"ipfilter-gateway/middleware/ipfilter/domain"
	"ipfilter-gateway/middleware/ipfilter/infra"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
)

const maxLoginFailures = 3

// routeFunc é um handler do httprouter que pode devolver erro para o filtro.
type routeFunc func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error

// loginGuard conta falhas de login por identidade e pede ban temporário
// quando passa do limite.
type loginGuard struct {
	mu       sync.Mutex
	failures map[string]int
	password string
}

func (g *loginGuard) handle(identity ipfilter.IdentityFunc) routeFunc {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
		id, _ := identity(r)
		pass := r.FormValue("password")

		g.mu.Lock()
		defer g.mu.Unlock()

		if g.password != "" && subtle.ConstantTimeCompare([]byte(pass), []byte(g.password)) == 1 {
			delete(g.failures, id)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("welcome\n"))
			return nil
		}

		g.failures[id]++
		if g.failures[id] >= maxLoginFailures {
			delete(g.failures, id)
			return domain.ErrBanTemporary
		}
		return &ipfilter.Error{Status: http.StatusUnauthorized, Message: "invalid credentials"}
	}
}

func main() {
	// Exemplo: o filtro embutido direto no webserver (sem proxy), store em memória.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryBanStore()
	store.StartJanitor(ctx)
	limiters := infra.NewLimiterStore(5, 10)
	limiters.StartJanitor(ctx)
	stats := infra.NewMemoryStatsStore(infra.WithTrackIdentities(true))

	identity := ipfilter.DefaultIdentityFunc("", true)
	filter, err := ipfilter.New(ipfilter.Options{
		Store:              store,
		Stats:              stats,
		Logger:             logger,
		TrustXForwardedFor: true,
		Duration:           10 * time.Minute,
	})
	if err != nil {
		logger.Error("ipfilter error", "error", err)
		os.Exit(1)
	}
	flood := ipfilter.FloodSignal(ipfilter.FloodOptions{Limiters: limiters, IdentityFn: identity})

	route := func(fn routeFunc) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			h := flood(func(w http.ResponseWriter, r *http.Request) error { return fn(w, r, ps) })
			ipfilter.Handle(filter.Wrap(h)).ServeHTTP(w, r)
		}
	}

	guard := &loginGuard{failures: make(map[string]int), password: os.Getenv("EXAMPLE_PASSWORD")}

	router := httprouter.New()
	router.GET("/", route(func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) error {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return nil
	}))
	router.POST("/login", route(guard.handle(identity)))
	// Armadilha: só scanners pedem isso.
	router.GET("/wp-login.php", route(func(http.ResponseWriter, *http.Request, httprouter.Params) error {
		return domain.ErrBanPermanent
	}))
	router.GET("/stats", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for outcome, n := range stats.Total() {
			_, _ = w.Write([]byte(string(outcome) + " " + humanize.Comma(n) + "\n"))
		}
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
