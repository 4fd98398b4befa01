package targetkit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/targetkit/targetkit/config"
)

type options struct {
	cfg        config.Config
	logger     zerolog.Logger
	registerer prometheus.Registerer
}

func defaultOptions() options {
	return options{
		cfg:    config.Default(),
		logger: zerolog.Nop(),
	}
}

// Option customizes Service construction.
type Option func(*options)

// WithConfig replaces the whole configuration, e.g. one produced by
// config.Load().
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithCacheMaxSize caps the evaluation result cache entry count.
func WithCacheMaxSize(size int) Option {
	return func(o *options) { o.cfg.CacheMaxSize = size }
}

// WithCacheTTL sets the evaluation result cache entry lifetime. Zero
// disables time expiry. The cache honors whole seconds: sub-second TTLs
// are rounded up to one second.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.cfg.CacheTTL = ttl }
}

// WithCompilerCacheSize caps the compiled rule-set cache entry count.
func WithCompilerCacheSize(size int) Option {
	return func(o *options) { o.cfg.CompilerCacheSize = size }
}

// WithMetricsEnabled toggles metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(o *options) { o.cfg.EnableMetrics = enabled }
}

// WithMaxNestingDepth sets the rule-group nesting limit.
func WithMaxNestingDepth(depth int) Option {
	return func(o *options) { o.cfg.MaxNestingDepth = depth }
}

// WithBatchWorkers caps the BatchEvaluate worker pool. Zero means
// GOMAXPROCS.
func WithBatchWorkers(workers int) Option {
	return func(o *options) { o.cfg.BatchWorkers = workers }
}

// WithLogger injects a structured logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPrometheus registers the engine's Prometheus instruments on the given
// registerer. Without this option no instruments are registered.
func WithPrometheus(registerer prometheus.Registerer) Option {
	return func(o *options) { o.registerer = registerer }
}

type evalOptions struct {
	skipCache bool
}

// EvalOption customizes a single Evaluate call.
type EvalOption func(*evalOptions)

// WithSkipCache bypasses the evaluation cache for this call: no lookup, no
// store. Compilation still goes through the compiler cache.
func WithSkipCache() EvalOption {
	return func(o *evalOptions) { o.skipCache = true }
}
