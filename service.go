// Package targetkit is a targeting rules evaluation engine for feature-flag
// and experimentation platforms. Given a rule document and a user context it
// decides whether a rule matches and which rollout bucket applies, sharing a
// compiled-rule cache and an evaluation-result cache across concurrent
// callers and recording latency and hit-rate metrics.
//
// The engine performs no I/O: rule storage, transport, and authentication
// belong to the caller.
package targetkit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/targetkit/targetkit/cache"
	"github.com/targetkit/targetkit/config"
	"github.com/targetkit/targetkit/engine"
	"github.com/targetkit/targetkit/rules"
	"github.com/targetkit/targetkit/telemetry"
)

// Service orchestrates compilation, evaluation, caching, and metrics. It is
// safe for concurrent use; construct one per independent configuration.
type Service struct {
	cfg      config.Config
	logger   zerolog.Logger
	compiler *cache.CompilerCache
	results  *cache.EvaluationCache
	metrics  *telemetry.Collector
}

// New constructs a Service from Default() configuration layered with the
// given options.
func New(opts ...Option) (*Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	compiler, err := cache.NewCompilerCache(o.cfg.CompilerCacheSize)
	if err != nil {
		return nil, err
	}
	results, err := cache.NewEvaluationCache(o.cfg.CacheMaxSize, o.cfg.CacheTTL, o.logger)
	if err != nil {
		compiler.Close()
		return nil, err
	}

	metrics := telemetry.Nop()
	if o.cfg.EnableMetrics {
		metrics = telemetry.New(telemetry.DefaultSampleSize, o.registerer)
	}

	return &Service{
		cfg:      o.cfg,
		logger:   o.logger,
		compiler: compiler,
		results:  results,
		metrics:  metrics,
	}, nil
}

// Evaluate decides whether any rule in the document matches the context.
//
// The evaluation cache is consulted first unless WithSkipCache is given; on
// a miss the document is compiled (once per fingerprint, cached) and
// evaluated, and the result is cached for subsequent calls. Cache hits come
// back with Cached=true and are otherwise equal to a cold evaluation.
//
// A compile failure returns the validation error alongside a result whose
// Error field is set; per-condition type errors never fail the call and are
// reported under the result's metadata instead.
func (s *Service) Evaluate(ctx context.Context, rs rules.TargetingRules, userContext map[string]any, opts ...EvalOption) (engine.EvaluationResult, error) {
	var eo evalOptions
	for _, opt := range opts {
		opt(&eo)
	}

	start := time.Now()
	if err := ctx.Err(); err != nil {
		return engine.EvaluationResult{Error: err.Error()}, err
	}

	rulesFP := rs.Fingerprint()
	key := cache.Key(rulesFP, rules.ContextFingerprint(userContext))

	if !eo.skipCache {
		if result, ok := s.results.Get(key); ok {
			result.Cached = true
			s.metrics.Record(elapsedMS(start), true, false)
			return result, nil
		}
	}

	compiled, err := s.compile(rulesFP, rs)
	if err != nil {
		result := engine.EvaluationResult{Error: err.Error(), EvaluationTimeMS: elapsedMS(start)}
		s.metrics.Record(result.EvaluationTimeMS, false, true)
		return result, err
	}

	result := engine.Evaluate(compiled, userContext)
	result.EvaluationTimeMS = elapsedMS(start)
	if !eo.skipCache {
		s.results.Set(key, result, engine.UserID(userContext))
	}
	s.metrics.Record(result.EvaluationTimeMS, false, false)
	return result, nil
}

// BatchEvaluate evaluates one rule document against many contexts, compiling
// it exactly once and fanning evaluation out over a bounded worker pool.
// Results are returned in input order. Individual contexts share the
// evaluation cache and the metrics collector with single Evaluate calls.
func (s *Service) BatchEvaluate(ctx context.Context, rs rules.TargetingRules, contexts []map[string]any) ([]engine.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		return []engine.EvaluationResult{}, nil
	}

	rulesFP := rs.Fingerprint()
	compiled, err := s.compile(rulesFP, rs)
	if err != nil {
		return nil, err
	}

	mapper := iter.Mapper[map[string]any, engine.EvaluationResult]{MaxGoroutines: s.cfg.BatchWorkers}
	results := mapper.Map(contexts, func(userContext *map[string]any) engine.EvaluationResult {
		start := time.Now()
		key := cache.Key(rulesFP, rules.ContextFingerprint(*userContext))

		if result, ok := s.results.Get(key); ok {
			result.Cached = true
			s.metrics.Record(elapsedMS(start), true, false)
			return result
		}

		result := engine.Evaluate(compiled, *userContext)
		result.EvaluationTimeMS = elapsedMS(start)
		s.results.Set(key, result, engine.UserID(*userContext))
		s.metrics.Record(result.EvaluationTimeMS, false, false)
		return result
	})
	return results, nil
}

// compile fetches the compiled form through the compiler cache, logging
// statically detected contradictions when a fresh compile surfaces them.
func (s *Service) compile(fingerprint string, rs rules.TargetingRules) (*engine.CompiledRule, error) {
	return s.compiler.GetOrCompile(fingerprint, func() (*engine.CompiledRule, error) {
		compiled, err := engine.Compile(rs, engine.CompileOptions{MaxNestingDepth: s.cfg.MaxNestingDepth})
		if err != nil {
			s.logger.Debug().Err(err).Str("fingerprint", fingerprint).Msg("rule compilation failed")
			return nil, err
		}
		for _, c := range compiled.Metadata.Contradictions {
			s.logger.Warn().
				Str("rule_id", c.RuleID).
				Str("attribute", c.Attribute).
				Str("detail", c.Detail).
				Msg("contradictory conditions in rule")
		}
		return compiled, nil
	})
}

// InvalidateRuleCache removes every cached result that references the given
// rule id.
func (s *Service) InvalidateRuleCache(ruleID string) {
	s.results.InvalidateRule(ruleID)
}

// InvalidateUserCache removes every cached result for the given user id.
func (s *Service) InvalidateUserCache(userID string) {
	s.results.InvalidateUser(userID)
}

// Metrics returns a snapshot of the evaluation counters and latency
// percentiles.
func (s *Service) Metrics() telemetry.Metrics {
	return s.metrics.Snapshot()
}

// ResetMetrics clears all counters and the latency sample.
func (s *Service) ResetMetrics() {
	s.metrics.Reset()
}

// Close releases the caches' background resources. The Service must not be
// used afterwards.
func (s *Service) Close() {
	s.compiler.Close()
	s.results.Close()
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
