package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kenjobs/jobsync/internal/adapter"
	"github.com/kenjobs/jobsync/internal/filter"
	"github.com/kenjobs/jobsync/internal/ratelimit"
)

// EnvConfigPath names the environment variable that overrides the default
// config file location.
const EnvConfigPath = "JOBSYNC_CONFIG"

// DefaultPath is used when neither a flag nor JOBSYNC_CONFIG is set.
const DefaultPath = "config.yaml"

// Config is the root configuration for jobsync.
type Config struct {
	DefaultLocation string
	Search          SearchConfig
	Cache           CacheConfig
	Store           StoreConfig
	RateLimit       RateLimitConfig
	Retry           RetryConfig
	Sources         []SourceConfig
	WarmQueries     []WarmQuery
	WarmSchedule    string
	Server          ServerConfig
}

// SearchConfig controls the live fan-out.
type SearchConfig struct {
	SourceTimeout  time.Duration
	PagesPerSource int
	DefaultLimit   int
}

// CacheConfig selects and tunes the result cache.
type CacheConfig struct {
	Backend        string // memory, sqlite or redis
	TTL            time.Duration
	RefreshAhead   time.Duration
	StaleRetention time.Duration
	SQLitePath     string
	RedisURL       string
	SweepSchedule  string
}

// StoreConfig selects the backend for internal and saved jobs.
type StoreConfig struct {
	Backend     string // none, sqlite or postgres
	SQLitePath  string
	DatabaseURL string
}

// RateLimitConfig holds the default policy and per-source overrides.
type RateLimitConfig struct {
	Default ratelimit.Policy
	Sources map[string]ratelimit.Policy
}

// PolicyFor returns the configured policy for the given source, falling back
// to Default.
func (r RateLimitConfig) PolicyFor(source string) ratelimit.Policy {
	if p, ok := r.Sources[source]; ok {
		return p
	}
	return r.Default
}

// RetryConfig controls retries of transient source failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// SourceConfig describes one external job provider.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	AppID   string `yaml:"app_id"`
	Host    string `yaml:"host"`
	Country string `yaml:"country"`
}

// Settings converts the source entry into adapter settings.
func (s SourceConfig) Settings() adapter.Settings {
	return adapter.Settings{
		BaseURL: s.BaseURL,
		APIKey:  s.APIKey,
		AppID:   s.AppID,
		Host:    s.Host,
		Country: s.Country,
	}
}

// WarmQuery is a search the scheduler keeps fresh.
type WarmQuery struct {
	Query      string `yaml:"query"`
	Location   string `yaml:"location"`
	RemoteOnly bool   `yaml:"remote_only"`
	DatePosted string `yaml:"date_posted"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EnabledSources returns the enabled source entries in configured order.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	DefaultLocation string             `yaml:"default_location"`
	Search          rawSearchConfig    `yaml:"search"`
	Cache           rawCacheConfig     `yaml:"cache"`
	Store           rawStoreConfig     `yaml:"store"`
	RateLimit       rawRateLimitConfig `yaml:"rate_limit"`
	Retry           rawRetryConfig     `yaml:"retry"`
	Sources         []SourceConfig     `yaml:"sources"`
	WarmQueries     []WarmQuery        `yaml:"warm_queries"`
	WarmSchedule    string             `yaml:"warm_schedule"`
	Server          ServerConfig       `yaml:"server"`
}

type rawSearchConfig struct {
	SourceTimeout  string `yaml:"source_timeout"`
	PagesPerSource int    `yaml:"pages_per_source"`
	DefaultLimit   int    `yaml:"default_limit"`
}

type rawCacheConfig struct {
	Backend        string `yaml:"backend"`
	TTL            string `yaml:"ttl"`
	RefreshAhead   string `yaml:"refresh_ahead"`
	StaleRetention string `yaml:"stale_retention"`
	SQLitePath     string `yaml:"sqlite_path"`
	RedisURL       string `yaml:"redis_url"`
	SweepSchedule  string `yaml:"sweep_schedule"`
}

type rawStoreConfig struct {
	Backend     string `yaml:"backend"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
}

type rawPolicy struct {
	MaxRequests *int   `yaml:"max_requests"`
	Window      string `yaml:"window"`
	MinInterval string `yaml:"min_interval"`
	Block       *bool  `yaml:"block"`
}

type rawRateLimitConfig struct {
	Default rawPolicy            `yaml:"default"`
	Sources map[string]rawPolicy `yaml:"sources"`
}

type rawRetryConfig struct {
	MaxRetries *int   `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

var defaultPolicy = ratelimit.Policy{
	MaxRequests: 30,
	Window:      time.Hour,
	MinInterval: 2 * time.Second,
}

// ResolvePath picks the config file: the flag value if set, then
// JOBSYNC_CONFIG, then ./config.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load reads and parses the YAML config file at path, validates it, and
// returns Config. A .env file next to the config is loaded first so that
// ${VAR} references can be satisfied from it; variables already set in the
// environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := build(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(raw rawConfig) (*Config, error) {
	var err error
	cfg := &Config{
		DefaultLocation: orDefault(raw.DefaultLocation, "Kenya"),
		Search: SearchConfig{
			PagesPerSource: orDefaultInt(raw.Search.PagesPerSource, 1),
			DefaultLimit:   orDefaultInt(raw.Search.DefaultLimit, 10),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(orDefault(raw.Cache.Backend, "sqlite")),
			SQLitePath:    orDefault(raw.Cache.SQLitePath, "jobsync.db"),
			RedisURL:      raw.Cache.RedisURL,
			SweepSchedule: orDefault(raw.Cache.SweepSchedule, "@every 1h"),
		},
		Store: StoreConfig{
			Backend:     strings.ToLower(orDefault(raw.Store.Backend, "none")),
			DatabaseURL: raw.Store.DatabaseURL,
		},
		Sources:      raw.Sources,
		WarmQueries:  raw.WarmQueries,
		WarmSchedule: orDefault(raw.WarmSchedule, "@every 12h"),
		Server:       ServerConfig{Addr: orDefault(raw.Server.Addr, ":8080")},
	}
	cfg.Store.SQLitePath = orDefault(raw.Store.SQLitePath, cfg.Cache.SQLitePath)

	if cfg.Search.SourceTimeout, err = parseDuration("search.source_timeout", raw.Search.SourceTimeout, 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.Cache.TTL, err = parseDuration("cache.ttl", raw.Cache.TTL, 48*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Cache.RefreshAhead, err = parseDuration("cache.refresh_ahead", raw.Cache.RefreshAhead, 36*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Cache.StaleRetention, err = parseDuration("cache.stale_retention", raw.Cache.StaleRetention, 7*24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.RateLimit.Default, err = parsePolicy("rate_limit.default", raw.RateLimit.Default, defaultPolicy); err != nil {
		return nil, err
	}
	cfg.RateLimit.Sources = make(map[string]ratelimit.Policy)
	for name, rp := range raw.RateLimit.Sources {
		p, err := parsePolicy(fmt.Sprintf("rate_limit.sources[%q]", name), rp, cfg.RateLimit.Default)
		if err != nil {
			return nil, err
		}
		cfg.RateLimit.Sources[name] = p
	}

	cfg.Retry.MaxRetries = 2
	if raw.Retry.MaxRetries != nil {
		cfg.Retry.MaxRetries = *raw.Retry.MaxRetries
	}
	if cfg.Retry.BaseDelay, err = parseDuration("retry.base_delay", raw.Retry.BaseDelay, 500*time.Millisecond); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parsePolicy fills unset fields from base.
func parsePolicy(field string, rp rawPolicy, base ratelimit.Policy) (ratelimit.Policy, error) {
	p := base
	if rp.MaxRequests != nil {
		p.MaxRequests = *rp.MaxRequests
	}
	if rp.Block != nil {
		p.Block = *rp.Block
	}
	var err error
	if p.Window, err = parseDuration(field+".window", rp.Window, base.Window); err != nil {
		return p, err
	}
	if p.MinInterval, err = parseDuration(field+".min_interval", rp.MinInterval, base.MinInterval); err != nil {
		return p, err
	}
	return p, nil
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.RefreshAhead < 0 || cfg.Cache.RefreshAhead >= cfg.Cache.TTL {
		return fmt.Errorf("cache.refresh_ahead must be between 0 and cache.ttl (%v), got %v", cfg.Cache.TTL, cfg.Cache.RefreshAhead)
	}
	if cfg.Cache.StaleRetention < 0 {
		return fmt.Errorf("cache.stale_retention must not be negative, got %v", cfg.Cache.StaleRetention)
	}
	if cfg.Search.SourceTimeout <= 0 {
		return fmt.Errorf("search.source_timeout must be positive, got %v", cfg.Search.SourceTimeout)
	}
	if cfg.Search.PagesPerSource < 1 {
		return fmt.Errorf("search.pages_per_source must be at least 1, got %d", cfg.Search.PagesPerSource)
	}
	if cfg.Search.DefaultLimit < 1 || cfg.Search.DefaultLimit > 100 {
		return fmt.Errorf("search.default_limit must be between 1 and 100, got %d", cfg.Search.DefaultLimit)
	}

	switch cfg.Cache.Backend {
	case "memory", "sqlite":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache.backend is \"redis\"")
		}
	default:
		return fmt.Errorf("cache.backend must be memory, sqlite or redis, got %q", cfg.Cache.Backend)
	}

	switch cfg.Store.Backend {
	case "none", "sqlite":
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required when store.backend is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.backend must be none, sqlite or postgres, got %q", cfg.Store.Backend)
	}

	for name, p := range cfg.RateLimit.Sources {
		if !adapter.Known(name) {
			return fmt.Errorf("rate_limit.sources: unknown source %q", name)
		}
		if err := validatePolicy("rate_limit.sources."+name, p); err != nil {
			return err
		}
	}
	if err := validatePolicy("rate_limit.default", cfg.RateLimit.Default); err != nil {
		return err
	}

	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", cfg.Retry.MaxRetries)
	}

	seen := make(map[string]bool)
	enabled := 0
	for _, s := range cfg.Sources {
		if seen[s.Name] {
			return fmt.Errorf("sources: %q listed more than once", s.Name)
		}
		seen[s.Name] = true
		if !adapter.Known(s.Name) {
			return fmt.Errorf("sources: unknown source %q (known: %v)", s.Name, adapter.Names())
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	for i, w := range cfg.WarmQueries {
		if strings.TrimSpace(w.Query) == "" {
			return fmt.Errorf("warm_queries[%d].query is required", i)
		}
		if w.DatePosted != "" && !slices.Contains(filter.DatePostedValues, w.DatePosted) {
			return fmt.Errorf("warm_queries[%d].date_posted must be one of %v, got %q", i, filter.DatePostedValues, w.DatePosted)
		}
	}

	return nil
}

func validatePolicy(field string, p ratelimit.Policy) error {
	if p.MaxRequests < 0 {
		return fmt.Errorf("%s.max_requests must not be negative, got %d", field, p.MaxRequests)
	}
	if p.MaxRequests > 0 && p.Window <= 0 {
		return fmt.Errorf("%s.window must be positive when max_requests is set", field)
	}
	if p.MinInterval < 0 {
		return fmt.Errorf("%s.min_interval must not be negative, got %v", field, p.MinInterval)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
