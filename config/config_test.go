package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultCacheMaxSize, cfg.CacheMaxSize)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultCompilerCacheSize, cfg.CompilerCacheSize)
	assert.Equal(t, DefaultMaxNestingDepth, cfg.MaxNestingDepth)
	assert.True(t, cfg.EnableMetrics)
	assert.Zero(t, cfg.BatchWorkers)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TARGETKIT_CACHE_MAX_SIZE", "500")
	t.Setenv("TARGETKIT_CACHE_TTL", "30s")
	t.Setenv("TARGETKIT_COMPILER_CACHE_SIZE", "50")
	t.Setenv("TARGETKIT_ENABLE_METRICS", "false")
	t.Setenv("TARGETKIT_MAX_NESTING_DEPTH", "4")
	t.Setenv("TARGETKIT_BATCH_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.CacheMaxSize)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 50, cfg.CompilerCacheSize)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, 4, cfg.MaxNestingDepth)
	assert.Equal(t, 8, cfg.BatchWorkers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "zero cache size", mutate: func(c *Config) { c.CacheMaxSize = 0 }, wantField: "CACHE_MAX_SIZE"},
		{name: "negative ttl", mutate: func(c *Config) { c.CacheTTL = -time.Second }, wantField: "CACHE_TTL"},
		{name: "zero compiler cache", mutate: func(c *Config) { c.CompilerCacheSize = 0 }, wantField: "COMPILER_CACHE_SIZE"},
		{name: "zero depth", mutate: func(c *Config) { c.MaxNestingDepth = 0 }, wantField: "MAX_NESTING_DEPTH"},
		{name: "negative workers", mutate: func(c *Config) { c.BatchWorkers = -1 }, wantField: "BATCH_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}
