// Package testutil provides compact builders for rule documents and user
// contexts used across the engine's tests.
package testutil

import "github.com/targetkit/targetkit/rules"

// Cond builds a condition without a secondary operand.
func Cond(attribute string, op rules.Operator, value any) rules.Condition {
	return rules.Condition{Attribute: attribute, Operator: op, Value: value}
}

// CondWith builds a condition with a secondary operand (between upper bound,
// geo radius, semver mode).
func CondWith(attribute string, op rules.Operator, value, additional any) rules.Condition {
	return rules.Condition{Attribute: attribute, Operator: op, Value: value, AdditionalValue: additional}
}

// And groups conditions with AND semantics.
func And(conditions ...rules.Condition) rules.RuleGroup {
	return rules.RuleGroup{Operator: rules.GroupAnd, Conditions: conditions}
}

// Or groups conditions with OR semantics.
func Or(conditions ...rules.Condition) rules.RuleGroup {
	return rules.RuleGroup{Operator: rules.GroupOr, Conditions: conditions}
}

// Not groups conditions with NOT semantics (inverted AND).
func Not(conditions ...rules.Condition) rules.RuleGroup {
	return rules.RuleGroup{Operator: rules.GroupNot, Conditions: conditions}
}

// Nested attaches sub-groups to a group.
func Nested(op rules.GroupOperator, groups ...rules.RuleGroup) rules.RuleGroup {
	return rules.RuleGroup{Operator: op, Groups: groups}
}

// Rule builds a full-rollout rule with priority 0.
func Rule(id string, group rules.RuleGroup) rules.TargetingRule {
	return rules.TargetingRule{ID: id, Rule: group, RolloutPercentage: 100}
}

// RuleAt builds a rule with an explicit priority and rollout percentage.
func RuleAt(id string, priority, rollout int, group rules.RuleGroup) rules.TargetingRule {
	return rules.TargetingRule{ID: id, Rule: group, Priority: priority, RolloutPercentage: rollout}
}

// RuleSet wraps rules into a document.
func RuleSet(trs ...rules.TargetingRule) rules.TargetingRules {
	return rules.TargetingRules{Rules: trs}
}

// Context builds a user context with an id and extra attributes.
func Context(userID string, attrs map[string]any) map[string]any {
	ctx := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		ctx[k] = v
	}
	if userID != "" {
		ctx["user_id"] = userID
	}
	return ctx
}
