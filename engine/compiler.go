// Package engine implements the compile → evaluate pipeline for targeting
// rules: per-operator condition checks, rule-set compilation with static
// validation and contradiction detection, and the depth-first evaluator.
package engine

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/targetkit/targetkit/rules"
)

// DefaultMaxNestingDepth bounds recursive evaluation cost and guards against
// pathological rule documents.
const DefaultMaxNestingDepth = 10

// CompileOptions configures a single compilation.
type CompileOptions struct {
	// MaxNestingDepth is the maximum allowed rule-group nesting depth.
	// Zero means DefaultMaxNestingDepth.
	MaxNestingDepth int
}

// CompiledMetadata is the static analysis extracted during compilation.
type CompiledMetadata struct {
	// Attributes is the sorted set of context attributes the rule set reads.
	Attributes []string `json:"attributes"`
	// Operators is the sorted set of operators the rule set uses.
	Operators []rules.Operator `json:"operators"`
	// MaxDepth is the deepest rule-group nesting across all rules.
	MaxDepth int `json:"max_depth"`
	// Contradictions lists sibling conditions that can never hold together.
	// Flagged rules still compile; callers decide whether to reject upstream.
	Contradictions []Contradiction `json:"contradictions,omitempty"`
}

// CompiledRule is the validated, metadata-annotated form of a rule set.
// It is immutable after Compile returns and safe to share across goroutines.
type CompiledRule struct {
	Fingerprint string                `json:"fingerprint"`
	Rules       []rules.TargetingRule `json:"rules"`
	Metadata    CompiledMetadata      `json:"metadata"`

	depthLimit int
}

// Compile validates a rule set and produces its cache-ready compiled form.
// Rules are re-sorted by ascending priority (stable, so document order breaks
// ties). Compilation is pure and idempotent: compiling the same document
// twice yields equivalent artifacts.
func Compile(rs rules.TargetingRules, opts CompileOptions) (*CompiledRule, error) {
	maxDepth := opts.MaxNestingDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxNestingDepth
	}

	attrs := make(map[string]struct{})
	ops := make(map[rules.Operator]struct{})
	seenIDs := make(map[string]struct{}, len(rs.Rules))
	deepest := 0
	var contradictions []Contradiction

	for i, rule := range rs.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if rule.ID == "" {
			return nil, rules.NewValidationError(field+".id", "rule id must not be empty")
		}
		if _, dup := seenIDs[rule.ID]; dup {
			return nil, rules.NewValidationError(field+".id", "duplicate rule id %q", rule.ID)
		}
		seenIDs[rule.ID] = struct{}{}

		if rule.RolloutPercentage < 0 || rule.RolloutPercentage > 100 {
			return nil, rules.NewValidationError(field+".rollout_percentage",
				"must be between 0 and 100, got %d", rule.RolloutPercentage)
		}

		depth, err := validateGroup(rule.Rule, field+".rule", 1, maxDepth, attrs, ops)
		if err != nil {
			return nil, err
		}
		if depth > deepest {
			deepest = depth
		}

		contradictions = append(contradictions, detectContradictions(rule.ID, rule.Rule)...)
	}

	sorted := make([]rules.TargetingRule, len(rs.Rules))
	copy(sorted, rs.Rules)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Priority < sorted[b].Priority
	})

	return &CompiledRule{
		Fingerprint: rs.Fingerprint(),
		Rules:       sorted,
		Metadata: CompiledMetadata{
			Attributes:     sortedAttributes(attrs),
			Operators:      sortedOperators(ops),
			MaxDepth:       deepest,
			Contradictions: contradictions,
		},
		depthLimit: maxDepth,
	}, nil
}

// validateGroup walks one rule group recursively, enforcing the depth limit
// and per-condition operand shapes while collecting attribute and operator
// sets. Returns the deepest nesting level reached.
func validateGroup(g rules.RuleGroup, field string, depth, maxDepth int, attrs map[string]struct{}, ops map[rules.Operator]struct{}) (int, error) {
	if depth > maxDepth {
		return 0, rules.NewValidationError(field, "nesting depth exceeds limit of %d", maxDepth)
	}

	op := rules.NormalizeGroup(g.Operator)
	if op != rules.GroupAnd && op != rules.GroupOr && op != rules.GroupNot {
		return 0, rules.NewValidationError(field+".operator", "unknown group operator %q", g.Operator)
	}

	for i, cond := range g.Conditions {
		condField := fmt.Sprintf("%s.conditions[%d]", field, i)
		if err := validateCondition(cond, condField); err != nil {
			return 0, err
		}
		attrs[cond.Attribute] = struct{}{}
		ops[rules.Normalize(cond.Operator)] = struct{}{}
	}

	deepest := depth
	for i, sub := range g.Groups {
		subField := fmt.Sprintf("%s.groups[%d]", field, i)
		d, err := validateGroup(sub, subField, depth+1, maxDepth, attrs, ops)
		if err != nil {
			return 0, err
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest, nil
}

// validateCondition checks that the condition's operand shapes match its
// operator. It uses explicit type assertions, no reflection.
func validateCondition(cond rules.Condition, field string) error {
	if cond.Attribute == "" {
		return rules.NewValidationError(field+".attribute", "attribute path must not be empty")
	}

	op := rules.Normalize(cond.Operator)
	switch op {
	case rules.OpEq, rules.OpNeq:
		// Deep equality accepts any operand shape.

	case rules.OpGt, rules.OpGte, rules.OpLt, rules.OpLte:
		if _, ok := toFloat64(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a numeric value", op)
		}

	case rules.OpBetween:
		if cond.AdditionalValue == nil {
			return rules.NewValidationError(field+".additional_value", "operator %q requires an upper bound", op)
		}
		_, loNum := toFloat64(cond.Value)
		_, hiNum := toFloat64(cond.AdditionalValue)
		if loNum != hiNum {
			return rules.NewValidationError(field+".value", "between bounds must both be numeric or both be timestamps")
		}
		if !loNum {
			if _, ok := toTime(cond.Value); !ok {
				return rules.NewValidationError(field+".value", "lower bound is neither numeric nor a timestamp")
			}
			if _, ok := toTime(cond.AdditionalValue); !ok {
				return rules.NewValidationError(field+".additional_value", "upper bound is neither numeric nor a timestamp")
			}
		}

	case rules.OpIn, rules.OpNotIn, rules.OpContainsAll, rules.OpContainsAny:
		if _, ok := toAnySlice(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a list value", op)
		}

	case rules.OpArrayLength:
		if _, ok := toFloat64(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a numeric value", op)
		}

	case rules.OpContains, rules.OpNotContains, rules.OpStartsWith, rules.OpEndsWith:
		if _, ok := toString(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a string value", op)
		}

	case rules.OpMatchRegex:
		pattern, ok := toString(cond.Value)
		if !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a string pattern", op)
		}
		// Compiling here both validates the pattern and warms the shared
		// regex cache for evaluation.
		if _, err := getCompiledRegex(pattern); err != nil {
			return rules.NewValidationError(field+".value", "invalid regex pattern: %v", err)
		}

	case rules.OpSemVer:
		if err := validateSemVerCondition(cond, field); err != nil {
			return err
		}

	case rules.OpGeoDistance:
		if _, _, ok := toLatLon(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a [lat, lon] pair with lat in [-90,90] and lon in [-180,180]", op)
		}
		radius, ok := toFloat64(cond.AdditionalValue)
		if !ok {
			return rules.NewValidationError(field+".additional_value", "operator %q requires a numeric radius in km", op)
		}
		if radius < 0 {
			return rules.NewValidationError(field+".additional_value", "radius must not be negative")
		}

	case rules.OpTimeWindow:
		window, ok := cond.Value.(map[string]any)
		if !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a {start, end} window", op)
		}
		if _, ok := toTime(window["start"]); !ok {
			return rules.NewValidationError(field+".value", "window start is not a timestamp")
		}
		if _, ok := toTime(window["end"]); !ok {
			return rules.NewValidationError(field+".value", "window end is not a timestamp")
		}

	case rules.OpBefore, rules.OpAfter:
		if _, ok := toTime(cond.Value); !ok {
			return rules.NewValidationError(field+".value", "operator %q requires a timestamp value", op)
		}

	default:
		return rules.NewValidationError(field+".operator", "operator %q is not supported", cond.Operator)
	}
	return nil
}

func validateSemVerCondition(cond rules.Condition, field string) error {
	version, ok := toString(cond.Value)
	if !ok {
		return rules.NewValidationError(field+".value", "operator %q requires a version string", rules.OpSemVer)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return rules.NewValidationError(field+".value", "invalid version %q: %v", version, err)
	}
	mode := semverMode(cond.AdditionalValue)
	if _, ok := semverModes[mode]; !ok {
		return rules.NewValidationError(field+".additional_value", "unknown comparison mode %q (want eq, gt, gte, lt, or lte)", mode)
	}
	return nil
}

func sortedAttributes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func sortedOperators(set map[rules.Operator]struct{}) []rules.Operator {
	out := make([]rules.Operator, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
