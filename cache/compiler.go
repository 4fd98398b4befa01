package cache

import (
	"github.com/maypok86/otter"
	"golang.org/x/sync/singleflight"

	"github.com/targetkit/targetkit/engine"
)

// CompilerCache memoizes compiled rule sets by content fingerprint. Rule-set
// content is immutable, so entries carry no TTL and are only
// capacity-evicted. Concurrent first compiles of the same fingerprint
// coalesce through singleflight so exactly one compile executes per
// fingerprint and unrelated fingerprints never serialize on each other.
type CompilerCache struct {
	store otter.Cache[string, *engine.CompiledRule]
	group singleflight.Group
}

// NewCompilerCache initializes the compile cache with a hard entry cap.
func NewCompilerCache(capacity int) (*CompilerCache, error) {
	store, err := otter.MustBuilder[string, *engine.CompiledRule](capacity).Build()
	if err != nil {
		return nil, err
	}
	return &CompilerCache{store: store}, nil
}

// GetOrCompile returns the compiled form for a fingerprint, invoking compile
// at most once per fingerprint under concurrent first access. Compile
// failures are not cached: rulesets are immutable, so a failing document
// fails identically on retry and callers should treat the error as a
// configuration bug, not retry it.
func (c *CompilerCache) GetOrCompile(fingerprint string, compile func() (*engine.CompiledRule, error)) (*engine.CompiledRule, error) {
	if compiled, ok := c.store.Get(fingerprint); ok {
		return compiled, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// Double-check: another caller may have populated the entry
		// between our miss and acquiring the flight.
		if compiled, ok := c.store.Get(fingerprint); ok {
			return compiled, nil
		}
		compiled, err := compile()
		if err != nil {
			return nil, err
		}
		c.store.Set(fingerprint, compiled)
		return compiled, nil
	})
	if err != nil {
		return nil, err
	}

	compiled, ok := v.(*engine.CompiledRule)
	if !ok {
		return nil, &CacheError{Op: "compile", Message: "singleflight returned a non-compiled value"}
	}
	return compiled, nil
}

// Len returns the current number of cached compilations.
func (c *CompilerCache) Len() int {
	return c.store.Size()
}

// Close shuts down the cache and its background maintenance goroutines.
func (c *CompilerCache) Close() {
	c.store.Close()
}
