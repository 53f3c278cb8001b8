// Gatewarden - Authentication Abuse Detection and Mitigation Engine
// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatewarden/gatewarden

// Package config defines the Gatewarden configuration surface and loads it
// with layered precedence: built-in defaults, then an optional YAML file,
// then GATEWARDEN_-prefixed environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the engine and its surrounding server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Geo      GeoConfig      `koanf:"geo"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	API      APIConfig      `koanf:"api"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the database file location. ":memory:" keeps the store
	// in-process only, which is what the tests use.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = DuckDB default
}

// GeoConfig configures the geolocation collaborator client and its cache.
type GeoConfig struct {
	Enabled       bool          `koanf:"enabled"`
	ProviderURL   string        `koanf:"provider_url"`
	Timeout       time.Duration `koanf:"timeout"`
	CachePath     string        `koanf:"cache_path"` // empty = in-memory badger
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	RatePerSecond float64       `koanf:"rate_per_second"`
}

// SecurityConfig holds every detection threshold and block duration.
// Nothing here is hardcoded elsewhere; the detectors, lockout manager and
// reconciler all read from this struct.
type SecurityConfig struct {
	// Enabled is the master switch. When false the engine still records
	// events but performs no detection or blocking.
	Enabled bool `koanf:"enabled"`

	// DetectionWindow is the sliding window for the sequential and
	// distributed heuristics.
	DetectionWindow time.Duration `koanf:"detection_window"`

	// VelocityWindow is the narrower window for burst detection.
	VelocityWindow time.Duration `koanf:"velocity_window"`

	// SequentialThreshold is the same-IP failure count that creates a
	// sequential pattern.
	SequentialThreshold int `koanf:"sequential_threshold"`

	// DistributedThreshold is the distinct-IP count against one account
	// that locks the account.
	DistributedThreshold int `koanf:"distributed_threshold"`

	// VelocityThreshold is the same-IP failure count inside the velocity
	// window that requires a CAPTCHA.
	VelocityThreshold int `koanf:"velocity_threshold"`

	// CaptchaThreshold is the same-IP failure count at which callers are
	// told to present a CAPTCHA. Must sit below MaxFailedBeforeLockout.
	CaptchaThreshold int `koanf:"captcha_threshold"`

	// MaxFailedBeforeLockout is the same-IP failure count that escalates
	// straight to a block.
	MaxFailedBeforeLockout int `koanf:"max_failed_before_lockout"`

	// IPBlockDuration is how long a detected IP block lasts.
	IPBlockDuration time.Duration `koanf:"ip_block_duration"`

	// AccountLockoutDuration is how long a detected account lock lasts.
	AccountLockoutDuration time.Duration `koanf:"account_lockout_duration"`

	// BlockCacheTTL bounds the staleness of the cached block projections.
	BlockCacheTTL time.Duration `koanf:"block_cache_ttl"`

	// RetentionPeriod is how long security events are kept before the
	// sweep purges them.
	RetentionPeriod time.Duration `koanf:"retention_period"`

	// SweepInterval is how often the reconciler runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LoggingConfig configures the zerolog wrapper.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// APIConfig configures the HTTP API middleware.
type APIConfig struct {
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8479,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/gatewarden.duckdb",
			MaxMemory: "512MB",
			Threads:   0,
		},
		Geo: GeoConfig{
			Enabled:       false,
			ProviderURL:   "",
			Timeout:       2 * time.Second,
			CachePath:     "",
			CacheTTL:      24 * time.Hour,
			RatePerSecond: 10,
		},
		Security: SecurityConfig{
			Enabled:                true,
			DetectionWindow:        15 * time.Minute,
			VelocityWindow:         90 * time.Second,
			SequentialThreshold:    5,
			DistributedThreshold:   5,
			VelocityThreshold:      8,
			CaptchaThreshold:       7,
			MaxFailedBeforeLockout: 10,
			IPBlockDuration:        30 * time.Minute,
			AccountLockoutDuration: 30 * time.Minute,
			BlockCacheTTL:          time.Minute,
			RetentionPeriod:        30 * 24 * time.Hour,
			SweepInterval:          5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		API: APIConfig{
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{"*"},
		},
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}

	s := c.Security
	if s.DetectionWindow <= 0 {
		return fmt.Errorf("security.detection_window must be positive")
	}
	if s.VelocityWindow <= 0 || s.VelocityWindow > s.DetectionWindow {
		return fmt.Errorf("security.velocity_window must be positive and no longer than the detection window")
	}
	if s.SequentialThreshold <= 0 || s.DistributedThreshold <= 0 || s.VelocityThreshold <= 0 {
		return fmt.Errorf("security detection thresholds must be positive")
	}
	if s.CaptchaThreshold < s.SequentialThreshold {
		return fmt.Errorf("security.captcha_threshold %d must be >= sequential_threshold %d",
			s.CaptchaThreshold, s.SequentialThreshold)
	}
	if s.MaxFailedBeforeLockout <= s.CaptchaThreshold {
		return fmt.Errorf("security.max_failed_before_lockout %d must be > captcha_threshold %d",
			s.MaxFailedBeforeLockout, s.CaptchaThreshold)
	}
	if s.IPBlockDuration <= 0 || s.AccountLockoutDuration <= 0 {
		return fmt.Errorf("security block durations must be positive")
	}
	if s.BlockCacheTTL <= 0 {
		return fmt.Errorf("security.block_cache_ttl must be positive")
	}
	if s.RetentionPeriod < 24*time.Hour {
		return fmt.Errorf("security.retention_period must be at least 24h")
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("security.sweep_interval must be positive")
	}

	if c.Geo.Enabled && c.Geo.ProviderURL == "" {
		return fmt.Errorf("geo.provider_url required when geo.enabled is true")
	}

	if c.API.RateLimitRequests <= 0 || c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("api rate limit settings must be positive")
	}

	return nil
}
