package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ipfilter-gateway/middleware/ipfilter"
	"ipfilter-gateway/middleware/ipfilter/application"
	"ipfilter-gateway/middleware/ipfilter/domain"
	"ipfilter-gateway/middleware/ipfilter/infra"

	phuslog "github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	configPath string
	listenAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Reverse proxy with a shared IP blacklist",
		Long:  "Reverse proxy that rejects blacklisted clients and bans clients on request of the upstream, using Redis as shared state.",
		RunE:  run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file (env IPFILTER_CONFIG)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address, overrides LISTEN_ADDR")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg logConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(phuslog.SlogNewJSONHandler(os.Stderr, opts))
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	skip, err := ipfilter.ParsePrefixes(cfg.SkipCIDRs)
	if err != nil {
		return fmt.Errorf("invalid IPFILTER_SKIP_CIDRS: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	redisStore := infra.NewRedisBanStore(rdb)
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err = redisStore.Ping(pingCtx)
	pingCancel()
	if err != nil {
		return fmt.Errorf("redis ping error: %w", err)
	}

	var store domain.BanStore = redisStore
	if cfg.Cache.Enabled {
		cached, err := infra.NewCachedBanStore(store, infra.WithCacheMaxTTL(cfg.Cache.MaxTTL.Duration))
		if err != nil {
			return fmt.Errorf("cache error: %w", err)
		}
		defer cached.Close()
		store = cached
	}
	if cfg.Store.MaxInflight > 0 {
		store = application.BoundedStore{
			Store:          store,
			Pool:           infra.NewSlotPool(cfg.Store.MaxInflight),
			AcquireTimeout: cfg.Store.AcquireTimeout.Duration,
		}
	}

	var stats infra.MultiStats
	if cfg.MetricsAddr != "" {
		stats = append(stats, infra.NewPrometheusStatsStore(prometheus.DefaultRegisterer))
	}
	if cfg.Stats.Enabled {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL.Duration),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackIdentities(cfg.Stats.TrackKeys),
		))
	}

	opts := ipfilter.Options{
		Store:              store,
		Logger:             logger,
		KeyHeader:          cfg.KeyHeader,
		TrustXForwardedFor: cfg.TrustXFF,
		SkipPrefixes:       skip,
		Prefix:             cfg.Prefix,
		Duration:           cfg.Duration.Duration,
		PermanentStatus:    cfg.StatusPermanent,
		PermanentMessage:   cfg.MsgPermanent,
		TemporaryStatus:    cfg.StatusTemporary,
		RetryMessage:       cfg.MsgRetry,
		OmitRetryTime:      !cfg.AppendRetryTime,
		RetryHeader:        cfg.RetryHeader,
		OmitRetryHeader:    !cfg.SetHeader,
		TemporaryToken:     cfg.TokenTemporary,
		PermanentToken:     cfg.TokenPermanent,
		Throw:              cfg.Throw,
		StoreErrorMessage:  cfg.MsgDB,
		ExposeStoreErrors:  !cfg.MaskDBErrors,
	}
	if len(stats) > 0 {
		opts.Stats = stats
	}

	filter, err := ipfilter.New(opts)
	if err != nil {
		return fmt.Errorf("ipfilter: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	next := ipfilter.Upstream(proxy, cfg.SignalHeader, logger)

	if cfg.Flood.Enabled {
		limiters := infra.NewLimiterStore(cfg.Flood.RPS, cfg.Flood.Burst)
		limiters.StartJanitor(ctx)
		next = ipfilter.FloodSignal(ipfilter.FloodOptions{
			Limiters:   limiters,
			IdentityFn: ipfilter.DefaultIdentityFunc(cfg.KeyHeader, cfg.TrustXFF, skip...),
		})(next)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           ipfilter.Handle(filter.Wrap(next)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	logger.Info("gateway listening", "addr", cfg.ListenAddr, "upstream", target.String())
	logger.Info("ipfilter",
		"prefix", cfg.Prefix,
		"duration", cfg.Duration.Duration,
		"redis", cfg.Redis.Addr,
		"cache", cfg.Cache.Enabled,
		"store_max_inflight", cfg.Store.MaxInflight,
		"flood", cfg.Flood.Enabled,
		"stats", cfg.Stats.Enabled,
		"metrics_addr", cfg.MetricsAddr,
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
