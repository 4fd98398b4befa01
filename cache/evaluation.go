package cache

import (
	"time"

	"github.com/maypok86/otter"
	"github.com/rs/zerolog"

	"github.com/targetkit/targetkit/engine"
)

// entry wraps a cached result with the identities needed for targeted
// invalidation sweeps.
type entry struct {
	result engine.EvaluationResult
	ruleID string
	userID string
}

// EvaluationCache maps (rule-set fingerprint, context fingerprint) pairs to
// evaluation results. Entries expire by TTL and by capacity (S3-FIFO via
// otter). Reads are virtually lock-free, so many concurrent evaluators never
// block each other.
type EvaluationCache struct {
	store  otter.Cache[string, entry]
	logger zerolog.Logger
}

// NewEvaluationCache initializes the result cache with strict limits.
// capacity caps the entry count to prevent OOM; ttl bounds staleness when
// callers forget to invalidate. ttl <= 0 disables time expiry; otter rounds
// positive TTLs up to whole seconds.
func NewEvaluationCache(capacity int, ttl time.Duration, logger zerolog.Logger) (*EvaluationCache, error) {
	builder := otter.MustBuilder[string, entry](capacity)
	var store otter.Cache[string, entry]
	var err error
	if ttl > 0 {
		store, err = builder.WithTTL(ttl).Build()
	} else {
		store, err = builder.Build()
	}
	if err != nil {
		return nil, err
	}
	return &EvaluationCache{store: store, logger: logger}, nil
}

// Key builds the composite cache key for a rule-set and context fingerprint.
func Key(rulesFingerprint, contextFingerprint string) string {
	return rulesFingerprint + ":" + contextFingerprint
}

// Get returns a copy of the cached result. The copy's Cached flag is left
// false; the orchestrating service marks hits.
func (c *EvaluationCache) Get(key string) (engine.EvaluationResult, bool) {
	e, ok := c.store.Get(key)
	if !ok {
		return engine.EvaluationResult{}, false
	}
	return copyResult(e.result), true
}

// Set stores a copy of the result together with the rule and user identities
// it was produced for.
func (c *EvaluationCache) Set(key string, result engine.EvaluationResult, userID string) {
	stored := copyResult(result)
	stored.Cached = false
	c.store.Set(key, entry{result: stored, ruleID: result.MatchedRuleID, userID: userID})
}

// InvalidateRule removes every entry whose cached result references the rule
// id. Returns the number of entries removed.
func (c *EvaluationCache) InvalidateRule(ruleID string) int {
	return c.sweep(func(e entry) bool { return e.ruleID == ruleID })
}

// InvalidateUser removes every entry cached for the given user id. Returns
// the number of entries removed.
func (c *EvaluationCache) InvalidateUser(userID string) int {
	return c.sweep(func(e entry) bool { return e.userID == userID })
}

// sweep collects matching keys under the cache's internal read path, then
// deletes them. Deleting an already-evicted key is a no-op, so the
// collect-then-delete race is harmless.
func (c *EvaluationCache) sweep(match func(entry) bool) int {
	var keys []string
	c.store.Range(func(key string, e entry) bool {
		if match(e) {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		c.store.Delete(key)
	}
	if len(keys) > 0 {
		c.logger.Debug().Int("entries", len(keys)).Msg("evaluation cache invalidation sweep")
	}
	return len(keys)
}

// Purge drops every cached result.
func (c *EvaluationCache) Purge() {
	c.store.Clear()
}

// Len returns the current number of cached results.
func (c *EvaluationCache) Len() int {
	return c.store.Size()
}

// Close shuts down the cache and its background maintenance goroutines.
func (c *EvaluationCache) Close() {
	c.store.Close()
}

// copyResult clones a result deeply enough that callers mutating the
// returned Metadata cannot corrupt the cached copy.
func copyResult(r engine.EvaluationResult) engine.EvaluationResult {
	out := r
	if r.Metadata != nil {
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			if errs, ok := v.(map[string]string); ok {
				errsCopy := make(map[string]string, len(errs))
				for ek, ev := range errs {
					errsCopy[ek] = ev
				}
				meta[k] = errsCopy
				continue
			}
			if ids, ok := v.([]string); ok {
				meta[k] = append([]string(nil), ids...)
				continue
			}
			meta[k] = v
		}
		out.Metadata = meta
	}
	return out
}
