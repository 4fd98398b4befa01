// Package cache holds the two engine caches: the compiler cache (bounded,
// compile-once per fingerprint) and the evaluation result cache (bounded,
// TTL-expiring, with targeted invalidation). Both serve concurrent readers
// without blocking each other.
package cache

import (
	"errors"
	"fmt"
)

// ErrCache is the sentinel wrapped by every CacheError.
var ErrCache = errors.New("cache error")

// CacheError reports an internal cache invariant violation, e.g. a
// singleflight result of an unexpected type.
type CacheError struct {
	Op      string // "compile", "get", "set"
	Message string
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %s", e.Op, e.Message)
}

// Unwrap lets errors.Is(err, ErrCache) match.
func (e *CacheError) Unwrap() error { return ErrCache }
