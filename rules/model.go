// Package rules defines the targeting rule model: conditions, boolean rule
// groups, prioritized targeting rules, and rule-set fingerprinting.
// All types are immutable value types once constructed and safe to share
// across goroutines without locking.
package rules

import "strings"

// Operator represents a comparison operator used in targeting conditions.
type Operator string

// Supported targeting operators (string values for clean JSON serialization).
const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpBetween     Operator = "between"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContainsAll Operator = "contains_all"
	OpContainsAny Operator = "contains_any"
	OpArrayLength Operator = "array_length"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpMatchRegex  Operator = "match_regex"
	OpSemVer      Operator = "semantic_version"
	OpGeoDistance Operator = "geo_distance"
	OpTimeWindow  Operator = "time_window"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
)

// Normalize maps operator aliases (symbols, legacy names) to their canonical
// form. Unknown operators pass through unchanged so the compiler can report
// them by their original spelling.
func Normalize(op Operator) Operator {
	switch strings.ToLower(string(op)) {
	case "==", "eq", "equals":
		return OpEq
	case "!=", "neq", "not_equals":
		return OpNeq
	case ">", "gt":
		return OpGt
	case ">=", "gte":
		return OpGte
	case "<", "lt":
		return OpLt
	case "<=", "lte":
		return OpLte
	case "between":
		return OpBetween
	case "in", "in_list":
		return OpIn
	case "not_in", "not_in_list", "nin":
		return OpNotIn
	case "contains_all":
		return OpContainsAll
	case "contains_any":
		return OpContainsAny
	case "array_length":
		return OpArrayLength
	case "contains":
		return OpContains
	case "not_contains":
		return OpNotContains
	case "starts_with", "startswith":
		return OpStartsWith
	case "ends_with", "endswith":
		return OpEndsWith
	case "regex", "matches", "match_regex":
		return OpMatchRegex
	case "semver", "semantic_version":
		return OpSemVer
	case "geo_distance":
		return OpGeoDistance
	case "time_window":
		return OpTimeWindow
	case "before":
		return OpBefore
	case "after":
		return OpAfter
	default:
		return op
	}
}

// GroupOperator is the boolean combinator of a RuleGroup.
type GroupOperator string

// Boolean combinators. A NOT group inverts the boolean AND of its direct
// children.
const (
	GroupAnd GroupOperator = "and"
	GroupOr  GroupOperator = "or"
	GroupNot GroupOperator = "not"
)

// NormalizeGroup maps combinator aliases ("AND", "&&", ...) to canonical form.
func NormalizeGroup(op GroupOperator) GroupOperator {
	switch strings.ToLower(string(op)) {
	case "and", "&&", "":
		return GroupAnd
	case "or", "||":
		return GroupOr
	case "not", "!":
		return GroupNot
	default:
		return op
	}
}

// Condition represents a single targeting predicate against one context
// attribute. Value is the primary operand; AdditionalValue carries the
// operator-specific secondary operand (upper bound for between, radius for
// geo_distance, comparison mode for semantic_version).
type Condition struct {
	Attribute       string   `json:"attribute"`
	Operator        Operator `json:"operator"`
	Value           any      `json:"value,omitempty"`
	AdditionalValue any      `json:"additional_value,omitempty"`
}

// RuleGroup combines conditions and nested groups with a boolean operator.
// Conditions and Groups are evaluated in order, conditions first, with
// left-to-right short-circuiting.
type RuleGroup struct {
	Operator   GroupOperator `json:"operator"`
	Conditions []Condition   `json:"conditions,omitempty"`
	Groups     []RuleGroup   `json:"groups,omitempty"`
}

// TargetingRule is a named rule with a priority and a rollout percentage.
// Rules with lower Priority are evaluated first; the first rule whose group
// matches and whose rollout bucket includes the user wins.
type TargetingRule struct {
	ID                string    `json:"id"`
	Rule              RuleGroup `json:"rule"`
	Priority          int       `json:"priority"`
	RolloutPercentage int       `json:"rollout_percentage"`
}

// TargetingRules is an ordered collection of targeting rules, identified by
// the content fingerprint of its canonical serialization.
type TargetingRules struct {
	Rules []TargetingRule `json:"rules"`
}
