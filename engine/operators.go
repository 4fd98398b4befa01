package engine

import (
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/targetkit/targetkit/rules"
)

// OperatorHandler evaluates one condition operator against a context value.
// Handlers are pure: the same inputs always produce the same result. A
// returned error is always a *TypeError; structural problems with the
// condition itself are rejected earlier, at compile time.
type OperatorHandler interface {
	Check(contextValue any, cond rules.Condition) (bool, error)
}

var operatorHandlers = map[rules.Operator]OperatorHandler{
	rules.OpEq:          equalsHandler{},
	rules.OpNeq:         notEqualsHandler{},
	rules.OpGt:          numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	rules.OpGte:         numericCompareHandler{cmp: func(a, b float64) bool { return a >= b }},
	rules.OpLt:          numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	rules.OpLte:         numericCompareHandler{cmp: func(a, b float64) bool { return a <= b }},
	rules.OpBetween:     betweenHandler{},
	rules.OpIn:          inHandler{},
	rules.OpNotIn:       notInHandler{},
	rules.OpContainsAll: containsAllHandler{},
	rules.OpContainsAny: containsAnyHandler{},
	rules.OpArrayLength: arrayLengthHandler{},
	rules.OpContains:    substringHandler{match: strings.Contains},
	rules.OpNotContains: substringHandler{match: strings.Contains, negate: true},
	rules.OpStartsWith:  substringHandler{match: strings.HasPrefix},
	rules.OpEndsWith:    substringHandler{match: strings.HasSuffix},
	rules.OpMatchRegex:  regexHandler{},
	rules.OpSemVer:      semverHandler{},
	rules.OpGeoDistance: geoDistanceHandler{},
	rules.OpTimeWindow:  timeWindowHandler{},
	rules.OpBefore:      timeCompareHandler{before: true},
	rules.OpAfter:       timeCompareHandler{before: false},
}

// regexCache keeps compiled regex by pattern for the hot evaluation path.
// Expected value type is *regexp.Regexp.
var regexCache sync.Map

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	h, ok := operatorHandlers[rules.Normalize(op)]
	return h, ok
}

type equalsHandler struct{}

// Check performs deep equality with numeric widening. A type mismatch is a
// non-match, not an error.
func (equalsHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	return looseEqual(contextValue, cond.Value), nil
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	return !looseEqual(contextValue, cond.Value), nil
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	user, ok := toFloat64(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not numeric", contextValue)
	}
	bound, ok := toFloat64(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not numeric", cond.Value)
	}
	return h.cmp(user, bound), nil
}

type betweenHandler struct{}

// Check tests inclusive range membership. Bounds may be numeric or
// timestamps (ISO-8601 strings or epoch seconds); numeric is tried first.
func (betweenHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	if lo, ok := toFloat64(cond.Value); ok {
		hi, ok := toFloat64(cond.AdditionalValue)
		if !ok {
			return false, newTypeError(cond, "upper bound %v is not numeric", cond.AdditionalValue)
		}
		v, ok := toFloat64(contextValue)
		if !ok {
			return false, newTypeError(cond, "context value %v is not numeric", contextValue)
		}
		return lo <= v && v <= hi, nil
	}

	lo, ok := toTime(cond.Value)
	if !ok {
		return false, newTypeError(cond, "lower bound %v is neither numeric nor a timestamp", cond.Value)
	}
	hi, ok := toTime(cond.AdditionalValue)
	if !ok {
		return false, newTypeError(cond, "upper bound %v is not a timestamp", cond.AdditionalValue)
	}
	v, ok := toTime(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a timestamp", contextValue)
	}
	return !v.Before(lo) && !v.After(hi), nil
}

type inHandler struct{}

func (inHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	list, ok := toAnySlice(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a list", cond.Value)
	}
	for _, item := range list {
		if looseEqual(contextValue, item) {
			return true, nil
		}
	}
	return false, nil
}

type notInHandler struct{}

func (notInHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	match, err := inHandler{}.Check(contextValue, cond)
	if err != nil {
		return false, err
	}
	return !match, nil
}

type containsAllHandler struct{}

// Check tests that the context array contains every element of the rule list.
func (containsAllHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	haystack, ok := toAnySlice(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not an array", contextValue)
	}
	wanted, ok := toAnySlice(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a list", cond.Value)
	}
	for _, w := range wanted {
		if !sliceContains(haystack, w) {
			return false, nil
		}
	}
	return true, nil
}

type containsAnyHandler struct{}

// Check tests that the context array and the rule list intersect.
func (containsAnyHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	haystack, ok := toAnySlice(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not an array", contextValue)
	}
	wanted, ok := toAnySlice(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a list", cond.Value)
	}
	for _, w := range wanted {
		if sliceContains(haystack, w) {
			return true, nil
		}
	}
	return false, nil
}

type arrayLengthHandler struct{}

func (arrayLengthHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	haystack, ok := toAnySlice(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not an array", contextValue)
	}
	want, ok := toFloat64(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not numeric", cond.Value)
	}
	return float64(len(haystack)) == want, nil
}

type substringHandler struct {
	match  func(s, substr string) bool
	negate bool
}

// Check performs case-sensitive substring tests (contains, prefix, suffix).
func (h substringHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	user, ok := toString(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a string", contextValue)
	}
	needle, ok := toString(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a string", cond.Value)
	}
	matched := h.match(user, needle)
	if h.negate {
		matched = !matched
	}
	return matched, nil
}

type regexHandler struct{}

func (regexHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	user, ok := toString(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a string", contextValue)
	}
	pattern, ok := toString(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a string pattern", cond.Value)
	}
	rx, err := getCompiledRegex(pattern)
	if err != nil {
		// The compiler rejects invalid patterns; reaching this means the
		// condition bypassed compilation.
		return false, newTypeError(cond, "invalid pattern %q", pattern)
	}
	return rx.MatchString(user), nil
}

// Semantic version comparison modes accepted in AdditionalValue.
var semverModes = map[string]func(a, b *semver.Version) bool{
	"eq":  func(a, b *semver.Version) bool { return a.Equal(b) },
	"gt":  func(a, b *semver.Version) bool { return a.GreaterThan(b) },
	"gte": func(a, b *semver.Version) bool { return !a.LessThan(b) },
	"lt":  func(a, b *semver.Version) bool { return a.LessThan(b) },
	"lte": func(a, b *semver.Version) bool { return !a.GreaterThan(b) },
}

type semverHandler struct{}

// Check compares the context value against the rule version using the mode
// from AdditionalValue (eq when absent). Pre-release precedence follows
// semver 2.0 ordering: 1.0.0-rc.1 < 1.0.0.
func (semverHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	userStr, ok := toString(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a version string", contextValue)
	}
	ruleStr, ok := toString(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a version string", cond.Value)
	}
	userVer, err := semver.NewVersion(userStr)
	if err != nil {
		return false, newTypeError(cond, "unparsable version %q", userStr)
	}
	ruleVer, err := semver.NewVersion(ruleStr)
	if err != nil {
		return false, newTypeError(cond, "unparsable rule version %q", ruleStr)
	}
	mode := semverMode(cond.AdditionalValue)
	cmp, ok := semverModes[mode]
	if !ok {
		return false, newTypeError(cond, "unknown comparison mode %q", mode)
	}
	return cmp(userVer, ruleVer), nil
}

func semverMode(v any) string {
	s, ok := toString(v)
	if !ok || s == "" {
		return "eq"
	}
	return strings.ToLower(s)
}

type geoDistanceHandler struct{}

// Check matches when the great-circle distance between the context [lat,lon]
// and the rule [lat,lon] is within the radius (km) from AdditionalValue.
func (geoDistanceHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	userLat, userLon, ok := toLatLon(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a [lat, lon] pair", contextValue)
	}
	ruleLat, ruleLon, ok := toLatLon(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a [lat, lon] pair", cond.Value)
	}
	radius, ok := toFloat64(cond.AdditionalValue)
	if !ok {
		return false, newTypeError(cond, "radius %v is not numeric", cond.AdditionalValue)
	}
	return haversineKM(userLat, userLon, ruleLat, ruleLon) <= radius, nil
}

type timeWindowHandler struct{}

// Check tests that the context timestamp falls inside [value.start,
// value.end], inclusive on both ends.
func (timeWindowHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	window, ok := cond.Value.(map[string]any)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a {start, end} window", cond.Value)
	}
	start, ok := toTime(window["start"])
	if !ok {
		return false, newTypeError(cond, "window start %v is not a timestamp", window["start"])
	}
	end, ok := toTime(window["end"])
	if !ok {
		return false, newTypeError(cond, "window end %v is not a timestamp", window["end"])
	}
	v, ok := toTime(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a timestamp", contextValue)
	}
	return !v.Before(start) && !v.After(end), nil
}

type timeCompareHandler struct {
	before bool
}

// Check tests strict before/after ordering against the rule timestamp.
func (h timeCompareHandler) Check(contextValue any, cond rules.Condition) (bool, error) {
	v, ok := toTime(contextValue)
	if !ok {
		return false, newTypeError(cond, "context value %v is not a timestamp", contextValue)
	}
	bound, ok := toTime(cond.Value)
	if !ok {
		return false, newTypeError(cond, "rule value %v is not a timestamp", cond.Value)
	}
	if h.before {
		return v.Before(bound), nil
	}
	return v.After(bound), nil
}

func sliceContains(haystack []any, needle any) bool {
	for _, item := range haystack {
		if looseEqual(item, needle) {
			return true
		}
	}
	return false
}

func getCompiledRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, rx)
	return rx, nil
}
