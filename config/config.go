// Package config provides engine configuration with sensible defaults,
// optional loading from environment variables and .env files via viper, and
// production-readiness validation.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Defaults for a freshly constructed engine.
const (
	DefaultCacheMaxSize      = 10_000
	DefaultCacheTTL          = 300 * time.Second
	DefaultCompilerCacheSize = 1_000
	DefaultMaxNestingDepth   = 10
)

// Config holds the construction-time options of an evaluation service.
// Configuration priority: explicit options > environment variables > .env
// file > defaults.
type Config struct {
	CacheMaxSize      int           // Evaluation cache entry cap
	CacheTTL          time.Duration // Evaluation cache entry lifetime (0 disables TTL expiry)
	CompilerCacheSize int           // Compiled rule-set cache entry cap
	EnableMetrics     bool          // Record evaluation metrics
	MaxNestingDepth   int           // Rule-group nesting limit enforced at compile and eval time
	BatchWorkers      int           // Batch evaluation goroutine cap (0 = GOMAXPROCS)
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		CacheMaxSize:      DefaultCacheMaxSize,
		CacheTTL:          DefaultCacheTTL,
		CompilerCacheSize: DefaultCompilerCacheSize,
		EnableMetrics:     true,
		MaxNestingDepth:   DefaultMaxNestingDepth,
	}
}

// Load reads configuration from TARGETKIT_* environment variables and an
// optional .env file. Environment variables take precedence over .env
// values. Durations accept Go syntax ("300s", "5m").
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env") // Optional; silently ignored if the file doesn't exist
	_ = v.ReadInConfig()
	v.SetEnvPrefix("TARGETKIT")
	v.AutomaticEnv()

	v.SetDefault("CACHE_MAX_SIZE", DefaultCacheMaxSize)
	v.SetDefault("CACHE_TTL", DefaultCacheTTL)
	v.SetDefault("COMPILER_CACHE_SIZE", DefaultCompilerCacheSize)
	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("MAX_NESTING_DEPTH", DefaultMaxNestingDepth)
	v.SetDefault("BATCH_WORKERS", 0)

	cfg := Config{
		CacheMaxSize:      v.GetInt("CACHE_MAX_SIZE"),
		CacheTTL:          v.GetDuration("CACHE_TTL"),
		CompilerCacheSize: v.GetInt("COMPILER_CACHE_SIZE"),
		EnableMetrics:     v.GetBool("ENABLE_METRICS"),
		MaxNestingDepth:   v.GetInt("MAX_NESTING_DEPTH"),
		BatchWorkers:      v.GetInt("BATCH_WORKERS"),
	}
	return cfg, cfg.Validate()
}

// ValidationError represents a configuration validation error with details
// about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks that the configuration can back a working engine. It is
// called by the service constructor; callers layering options over Default()
// only hit it when an option pushed a field out of range.
func (c Config) Validate() error {
	if c.CacheMaxSize <= 0 {
		return ValidationError{Field: "CACHE_MAX_SIZE", Message: fmt.Sprintf("must be positive, got %d", c.CacheMaxSize)}
	}
	if c.CacheTTL < 0 {
		return ValidationError{Field: "CACHE_TTL", Message: fmt.Sprintf("must not be negative, got %s", c.CacheTTL)}
	}
	if c.CompilerCacheSize <= 0 {
		return ValidationError{Field: "COMPILER_CACHE_SIZE", Message: fmt.Sprintf("must be positive, got %d", c.CompilerCacheSize)}
	}
	if c.MaxNestingDepth < 1 {
		return ValidationError{Field: "MAX_NESTING_DEPTH", Message: fmt.Sprintf("must be at least 1, got %d", c.MaxNestingDepth)}
	}
	if c.BatchWorkers < 0 {
		return ValidationError{Field: "BATCH_WORKERS", Message: fmt.Sprintf("must not be negative, got %d", c.BatchWorkers)}
	}
	return nil
}
