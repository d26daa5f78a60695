package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// duration aceita "24h", "1500ms" no TOML.
type duration struct{ time.Duration }

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type redisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type storeConfig struct {
	MaxInflight    int      `toml:"max_inflight"`
	AcquireTimeout duration `toml:"acquire_timeout"`
}

type cacheConfig struct {
	Enabled bool     `toml:"enabled"`
	MaxTTL  duration `toml:"max_ttl"`
}

type floodConfig struct {
	Enabled bool    `toml:"enabled"`
	RPS     float64 `toml:"rps"`
	Burst   int     `toml:"burst"`
}

type statsConfig struct {
	Enabled   bool     `toml:"enabled"`
	Prefix    string   `toml:"prefix"`
	TTL       duration `toml:"ttl"`
	Bucket    string   `toml:"bucket"`
	TrackKeys bool     `toml:"track_keys"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type config struct {
	ListenAddr  string `toml:"listen_addr"`
	UpstreamURL string `toml:"upstream_url"`
	MetricsAddr string `toml:"metrics_addr"`

	Redis redisConfig `toml:"redis"`

	Prefix          string   `toml:"prefix"`
	Duration        duration `toml:"duration"`
	MsgPermanent    string   `toml:"msg_permanent"`
	MsgRetry        string   `toml:"msg_retry"`
	AppendRetryTime bool     `toml:"append_retry_time"`
	RetryHeader     string   `toml:"retry_header"`
	SetHeader       bool     `toml:"set_header"`
	TokenTemporary  string   `toml:"token_temporary"`
	TokenPermanent  string   `toml:"token_permanent"`
	Throw           bool     `toml:"throw"`
	MsgDB           string   `toml:"msg_db"`
	MaskDBErrors    bool     `toml:"mask_db_errors"`
	StatusPermanent int      `toml:"status_permanent"`
	StatusTemporary int      `toml:"status_temporary"`
	KeyHeader       string   `toml:"key_header"`
	TrustXFF        bool     `toml:"trust_xff"`
	SkipCIDRs       string   `toml:"skip_cidrs"`
	SignalHeader    string   `toml:"signal_header"`

	Store storeConfig `toml:"store"`
	Cache cacheConfig `toml:"cache"`
	Flood floodConfig `toml:"flood"`
	Stats statsConfig `toml:"stats"`
	Log   logConfig   `toml:"log"`
}

func defaultConfig() config {
	return config{
		ListenAddr:      ":8080",
		Prefix:          "ipFilter",
		Duration:        duration{24 * time.Hour},
		MsgPermanent:    "Permanently blacklisted",
		MsgRetry:        "Blacklisted, retry in ",
		AppendRetryTime: true,
		RetryHeader:     "X-Retry-After",
		SetHeader:       true,
		TokenTemporary:  "IP_FILTER_BLACKLIST",
		TokenPermanent:  "IP_FILTER_BLACKLIST_PERMANENT",
		MsgDB:           "ERROR_DATABASE_ERROR",
		MaskDBErrors:    true,
		StatusPermanent: 403,
		StatusTemporary: 401,
		SignalHeader:    "X-IP-Filter",
		Cache:           cacheConfig{MaxTTL: duration{time.Minute}},
		Flood:           floodConfig{RPS: 10, Burst: 20},
		Stats: statsConfig{
			Prefix: "ipfilter:stats",
			TTL:    duration{24 * time.Hour},
			Bucket: "minute",
		},
		Log: logConfig{Level: "info", Format: "json"},
	}
}

// readConfig monta a config na ordem: padrão < arquivo TOML < variáveis de ambiente.
// Flags da linha de comando são aplicadas depois, em main.
func readConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv("IPFILTER_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Prefix = getenvDefault("IPFILTER_PREFIX", cfg.Prefix)
	cfg.Duration.Duration = getenvDurationDefault("IPFILTER_DURATION", cfg.Duration.Duration)
	cfg.MsgPermanent = getenvDefault("IPFILTER_MSG_PERMANENT", cfg.MsgPermanent)
	cfg.MsgRetry = getenvDefault("IPFILTER_MSG_RETRY", cfg.MsgRetry)
	cfg.AppendRetryTime = getenvBoolDefault("IPFILTER_APPEND_RETRY_TIME", cfg.AppendRetryTime)
	cfg.RetryHeader = getenvDefault("IPFILTER_RETRY_HEADER", cfg.RetryHeader)
	cfg.SetHeader = getenvBoolDefault("IPFILTER_SET_HEADER", cfg.SetHeader)
	cfg.TokenTemporary = getenvDefault("IPFILTER_TOKEN_TEMPORARY", cfg.TokenTemporary)
	cfg.TokenPermanent = getenvDefault("IPFILTER_TOKEN_PERMANENT", cfg.TokenPermanent)
	cfg.Throw = getenvBoolDefault("IPFILTER_THROW", cfg.Throw)
	cfg.MsgDB = getenvDefault("IPFILTER_MSG_DB", cfg.MsgDB)
	cfg.MaskDBErrors = getenvBoolDefault("IPFILTER_MASK_DB_ERRORS", cfg.MaskDBErrors)
	cfg.StatusPermanent = getenvIntDefault("IPFILTER_STATUS_PERMANENT", cfg.StatusPermanent)
	cfg.StatusTemporary = getenvIntDefault("IPFILTER_STATUS_TEMPORARY", cfg.StatusTemporary)
	cfg.KeyHeader = getenvDefault("IPFILTER_KEY_HEADER", cfg.KeyHeader)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.TrustXFF)
	cfg.SkipCIDRs = getenvDefault("IPFILTER_SKIP_CIDRS", cfg.SkipCIDRs)
	cfg.SignalHeader = getenvDefault("IPFILTER_SIGNAL_HEADER", cfg.SignalHeader)

	cfg.Store.MaxInflight = getenvIntDefault("STORE_MAX_INFLIGHT", cfg.Store.MaxInflight)
	cfg.Store.AcquireTimeout.Duration = getenvDurationDefault("STORE_ACQUIRE_TIMEOUT", cfg.Store.AcquireTimeout.Duration)

	cfg.Cache.Enabled = getenvBoolDefault("CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.MaxTTL.Duration = getenvDurationDefault("CACHE_MAX_TTL", cfg.Cache.MaxTTL.Duration)

	cfg.Flood.Enabled = getenvBoolDefault("FLOOD_ENABLED", cfg.Flood.Enabled)
	cfg.Flood.RPS = getenvFloatDefault("FLOOD_RPS", cfg.Flood.RPS)
	cfg.Flood.Burst = getenvIntDefault("FLOOD_BURST", cfg.Flood.Burst)

	cfg.Stats.Enabled = getenvBoolDefault("STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.Prefix = getenvDefault("STATS_PREFIX", cfg.Stats.Prefix)
	cfg.Stats.TTL.Duration = getenvDurationDefault("STATS_TTL", cfg.Stats.TTL.Duration)
	cfg.Stats.Bucket = getenvDefault("STATS_BUCKET", cfg.Stats.Bucket)
	cfg.Stats.TrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", cfg.Stats.TrackKeys)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

func (cfg config) validate() error {
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if cfg.Duration.Duration <= 0 {
		return errors.New("IPFILTER_DURATION must be > 0")
	}
	if cfg.TokenTemporary == cfg.TokenPermanent {
		return errors.New("IPFILTER_TOKEN_TEMPORARY and IPFILTER_TOKEN_PERMANENT must differ")
	}
	if cfg.Store.MaxInflight < 0 {
		return errors.New("STORE_MAX_INFLIGHT must be >= 0")
	}
	if cfg.Flood.Enabled && (cfg.Flood.RPS <= 0 || cfg.Flood.Burst <= 0) {
		return errors.New("FLOOD_RPS and FLOOD_BURST must be > 0")
	}
	return nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
