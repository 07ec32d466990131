// Package config loads engine tunables from a TOML file with environment
// overrides. File values override defaults; KINNECT_* variables override the
// file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures every tunable the engine and dev tooling read.
type Config struct {
	// BaseURL is the backend's base URL.
	BaseURL string `env:"KINNECT_BASE_URL"`
	// Actor is the local actor identity.
	Actor string `env:"KINNECT_ACTOR"`

	// CacheStaleness is the age at which a snapshot stops being fresh.
	CacheStaleness time.Duration `env:"KINNECT_CACHE_STALENESS"`
	// CacheExpiry is the age at which a snapshot stops being servable.
	CacheExpiry time.Duration `env:"KINNECT_CACHE_EXPIRY"`

	// RemoteTimeout bounds every remote mutation and fetch call.
	RemoteTimeout time.Duration `env:"KINNECT_REMOTE_TIMEOUT"`

	// FeedBackoffMin and FeedBackoffMax bound the change-feed redial delay.
	FeedBackoffMin time.Duration `env:"KINNECT_FEED_BACKOFF_MIN"`
	FeedBackoffMax time.Duration `env:"KINNECT_FEED_BACKOFF_MAX"`

	// PageSize is the fetch page size.
	PageSize int `env:"KINNECT_PAGE_SIZE"`

	// MediaRefreshWindow enables the proactive locator re-hydration sweep:
	// locators expiring within the window are re-resolved. Zero disables the
	// sweep (cache is served silently while aging).
	MediaRefreshWindow time.Duration `env:"KINNECT_MEDIA_REFRESH_WINDOW"`

	// ListenAddr is the local dev server's bind address.
	ListenAddr string `env:"KINNECT_LISTEN_ADDR"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:            "http://127.0.0.1:8790",
		Actor:              "local",
		CacheStaleness:     5 * time.Minute,
		CacheExpiry:        45 * time.Minute,
		RemoteTimeout:      10 * time.Second,
		FeedBackoffMin:     time.Second,
		FeedBackoffMax:     30 * time.Second,
		PageSize:           24,
		MediaRefreshWindow: 0,
		ListenAddr:         "127.0.0.1:8790",
	}
}

// rawFile is the TOML shape. Durations are strings ("5m", "45m") parsed with
// time.ParseDuration.
type rawFile struct {
	BaseURL            string `toml:"base_url"`
	Actor              string `toml:"actor"`
	CacheStaleness     string `toml:"cache_staleness"`
	CacheExpiry        string `toml:"cache_expiry"`
	RemoteTimeout      string `toml:"remote_timeout"`
	FeedBackoffMin     string `toml:"feed_backoff_min"`
	FeedBackoffMax     string `toml:"feed_backoff_max"`
	PageSize           int    `toml:"page_size"`
	MediaRefreshWindow string `toml:"media_refresh_window"`
	ListenAddr         string `toml:"listen_addr"`
}

// Load builds the effective configuration: defaults, then the TOML file at
// path (a missing file is fine when path is empty), then environment
// overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s does not exist", path)
		}
		return fmt.Errorf("read config: %w", err)
	}

	var raw rawFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if raw.BaseURL != "" {
		cfg.BaseURL = raw.BaseURL
	}
	if raw.Actor != "" {
		cfg.Actor = raw.Actor
	}
	if raw.PageSize > 0 {
		cfg.PageSize = raw.PageSize
	}
	if raw.ListenAddr != "" {
		cfg.ListenAddr = raw.ListenAddr
	}

	durations := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"cache_staleness", raw.CacheStaleness, &cfg.CacheStaleness},
		{"cache_expiry", raw.CacheExpiry, &cfg.CacheExpiry},
		{"remote_timeout", raw.RemoteTimeout, &cfg.RemoteTimeout},
		{"feed_backoff_min", raw.FeedBackoffMin, &cfg.FeedBackoffMin},
		{"feed_backoff_max", raw.FeedBackoffMax, &cfg.FeedBackoffMax},
		{"media_refresh_window", raw.MediaRefreshWindow, &cfg.MediaRefreshWindow},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.in) == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.in)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.out = parsed
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	if strings.TrimSpace(c.Actor) == "" {
		return fmt.Errorf("actor is required")
	}
	if c.CacheStaleness <= 0 {
		return fmt.Errorf("cache_staleness must be positive, got %s", c.CacheStaleness)
	}
	if c.CacheExpiry <= c.CacheStaleness {
		return fmt.Errorf("cache_expiry (%s) must exceed cache_staleness (%s)", c.CacheExpiry, c.CacheStaleness)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("remote_timeout must be positive, got %s", c.RemoteTimeout)
	}
	if c.FeedBackoffMin <= 0 || c.FeedBackoffMax < c.FeedBackoffMin {
		return fmt.Errorf("feed backoff bounds invalid: min=%s max=%s", c.FeedBackoffMin, c.FeedBackoffMax)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.MediaRefreshWindow < 0 {
		return fmt.Errorf("media_refresh_window must not be negative, got %s", c.MediaRefreshWindow)
	}
	return nil
}
