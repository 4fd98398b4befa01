package engine

import (
	"strings"
	"time"

	"github.com/targetkit/targetkit/rollout"
	"github.com/targetkit/targetkit/rules"
)

// EvaluationResult is the deterministic output of Evaluate.
type EvaluationResult struct {
	Matched          bool           `json:"matched"`
	MatchedRuleID    string         `json:"matched_rule_id,omitempty"`
	Error            string         `json:"error,omitempty"`
	Cached           bool           `json:"cached"`
	EvaluationTimeMS float64        `json:"evaluation_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Metadata keys populated by the evaluator.
const (
	// MetaErrors maps attribute paths to contained per-condition error
	// messages (type mismatches downgraded to false).
	MetaErrors = "errors"
	// MetaBucketedOut lists rule ids whose group matched but whose rollout
	// bucket excluded the user.
	MetaBucketedOut = "bucketed_out"
)

// UserID extracts the rollout identity from a context map, preferring
// "user_id" over "id".
func UserID(context map[string]any) string {
	if v, ok := context["user_id"]; ok {
		if s, ok := toString(v); ok {
			return s
		}
	}
	if v, ok := context["id"]; ok {
		if s, ok := toString(v); ok {
			return s
		}
	}
	return ""
}

// Evaluate walks the compiled rules in ascending priority order against a
// context map. The first rule whose group matches and whose rollout bucket
// includes the user wins. Evaluation is read-only against the compiled rule
// and freely parallelizable.
func Evaluate(compiled *CompiledRule, context map[string]any) EvaluationResult {
	start := time.Now()
	result := EvaluationResult{Metadata: map[string]any{}}
	errs := map[string]string{}
	userID := UserID(context)

	var bucketedOut []string
	for _, rule := range compiled.Rules {
		if !evalGroup(rule.Rule, context, 1, compiled.depthLimit, errs) {
			continue
		}
		if !rollout.Included(rule.ID, userID, rule.RolloutPercentage) {
			bucketedOut = append(bucketedOut, rule.ID)
			continue
		}
		result.Matched = true
		result.MatchedRuleID = rule.ID
		break
	}

	if len(errs) > 0 {
		result.Metadata[MetaErrors] = errs
	}
	if len(bucketedOut) > 0 {
		result.Metadata[MetaBucketedOut] = bucketedOut
	}
	result.EvaluationTimeMS = float64(time.Since(start)) / float64(time.Millisecond)
	return result
}

// evalGroup evaluates one rule group depth-first with left-to-right
// short-circuiting: AND stops at the first false child, OR at the first true
// child. NOT inverts the AND of its direct children. The depth limit is
// enforced again here so adversarial nesting cannot blow the stack even if a
// document bypassed compilation.
func evalGroup(g rules.RuleGroup, context map[string]any, depth, maxDepth int, errs map[string]string) bool {
	if depth > maxDepth {
		return false
	}

	switch rules.NormalizeGroup(g.Operator) {
	case rules.GroupAnd:
		return evalAll(g, context, depth, maxDepth, errs)
	case rules.GroupOr:
		for _, cond := range g.Conditions {
			if evalCondition(cond, context, errs) {
				return true
			}
		}
		for _, sub := range g.Groups {
			if evalGroup(sub, context, depth+1, maxDepth, errs) {
				return true
			}
		}
		return false
	case rules.GroupNot:
		return !evalAll(g, context, depth, maxDepth, errs)
	default:
		return false
	}
}

// evalAll is the boolean AND over a group's direct children; an empty group
// is vacuously true.
func evalAll(g rules.RuleGroup, context map[string]any, depth, maxDepth int, errs map[string]string) bool {
	for _, cond := range g.Conditions {
		if !evalCondition(cond, context, errs) {
			return false
		}
	}
	for _, sub := range g.Groups {
		if !evalGroup(sub, context, depth+1, maxDepth, errs) {
			return false
		}
	}
	return true
}

// evalCondition resolves the attribute and applies the operator handler.
// Type errors are contained: the condition becomes false and the error is
// recorded under the attribute path.
func evalCondition(cond rules.Condition, context map[string]any, errs map[string]string) bool {
	op := rules.Normalize(cond.Operator)
	value, present := lookupAttribute(context, cond.Attribute)
	if !present {
		// A value absent from the context is vacuously not in any list.
		return op == rules.OpNotIn
	}

	handler, ok := getOperatorHandler(op)
	if !ok {
		errs[cond.Attribute] = "unknown operator " + string(cond.Operator)
		return false
	}

	matched, err := handler.Check(value, cond)
	if err != nil {
		errs[cond.Attribute] = err.Error()
		return false
	}
	return matched
}

// lookupAttribute resolves an attribute path in the context map. A literal
// key match wins; otherwise dots descend into nested maps
// ("device.os.version").
func lookupAttribute(context map[string]any, path string) (any, bool) {
	if v, ok := context[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var current any = context
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
