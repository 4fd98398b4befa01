package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/targetkit/targetkit/rules"
)

// Contradiction flags sibling conditions on the same attribute inside an AND
// group whose ranges cannot simultaneously hold, e.g. age > 18 AND age < 10.
type Contradiction struct {
	RuleID    string `json:"rule_id"`
	Attribute string `json:"attribute"`
	Detail    string `json:"detail"`
}

// detectContradictions runs a best-effort static pass over one rule's group
// tree. Only the numeric comparison operators take part (gt, gte, lt, lte,
// between, eq, neq); every AND group, nested or not, is analyzed over its
// direct conditions.
func detectContradictions(ruleID string, g rules.RuleGroup) []Contradiction {
	var found []Contradiction
	walkGroups(g, func(group rules.RuleGroup) {
		if rules.NormalizeGroup(group.Operator) != rules.GroupAnd {
			return
		}
		found = append(found, analyzeSiblings(ruleID, group.Conditions)...)
	})
	return found
}

func walkGroups(g rules.RuleGroup, visit func(rules.RuleGroup)) {
	visit(g)
	for _, sub := range g.Groups {
		walkGroups(sub, visit)
	}
}

// interval is a numeric range with inclusive/exclusive bounds, used for
// overlap analysis of comparison conditions.
type interval struct {
	lo, hi         float64
	loIncl, hiIncl bool
}

func fullInterval() interval {
	return interval{lo: math.Inf(-1), hi: math.Inf(1), loIncl: true, hiIncl: true}
}

// intersect narrows the receiver by another interval and reports whether the
// result is still satisfiable.
func (iv interval) intersect(other interval) (interval, bool) {
	out := iv
	if other.lo > out.lo || (other.lo == out.lo && !other.loIncl) {
		out.lo, out.loIncl = other.lo, other.loIncl
	}
	if other.hi < out.hi || (other.hi == out.hi && !other.hiIncl) {
		out.hi, out.hiIncl = other.hi, other.hiIncl
	}
	if out.lo > out.hi {
		return out, false
	}
	if out.lo == out.hi && (!out.loIncl || !out.hiIncl) {
		return out, false
	}
	return out, true
}

// conditionInterval converts a comparison condition into an interval.
// Returns ok=false for operators or operand types outside the analysis.
func conditionInterval(cond rules.Condition) (interval, bool) {
	iv := fullInterval()
	switch rules.Normalize(cond.Operator) {
	case rules.OpGt:
		v, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		iv.lo, iv.loIncl = v, false
	case rules.OpGte:
		v, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		iv.lo, iv.loIncl = v, true
	case rules.OpLt:
		v, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		iv.hi, iv.hiIncl = v, false
	case rules.OpLte:
		v, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		iv.hi, iv.hiIncl = v, true
	case rules.OpEq:
		v, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		iv.lo, iv.hi, iv.loIncl, iv.hiIncl = v, v, true, true
	case rules.OpBetween:
		lo, ok := toFloat64(cond.Value)
		if !ok {
			return iv, false
		}
		hi, ok := toFloat64(cond.AdditionalValue)
		if !ok {
			return iv, false
		}
		iv.lo, iv.hi, iv.loIncl, iv.hiIncl = lo, hi, true, true
	default:
		return iv, false
	}
	return iv, true
}

// analyzeSiblings intersects the intervals of all comparison conditions that
// share one attribute, and cross-checks eq against neq exclusions.
func analyzeSiblings(ruleID string, conditions []rules.Condition) []Contradiction {
	byAttr := make(map[string][]rules.Condition)
	for _, cond := range conditions {
		byAttr[cond.Attribute] = append(byAttr[cond.Attribute], cond)
	}
	// Analyze attributes in sorted order so compiled metadata is stable
	// across compiles of the same document.
	attrs := make([]string, 0, len(byAttr))
	for attr := range byAttr {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	var found []Contradiction
	for _, attr := range attrs {
		conds := byAttr[attr]
		if len(conds) < 2 {
			continue
		}

		iv := fullInterval()
		narrowed := 0
		satisfiable := true
		for _, cond := range conds {
			ci, ok := conditionInterval(cond)
			if !ok {
				continue
			}
			narrowed++
			iv, ok = iv.intersect(ci)
			if !ok {
				satisfiable = false
				break
			}
		}
		if narrowed >= 2 && !satisfiable {
			found = append(found, Contradiction{
				RuleID:    ruleID,
				Attribute: attr,
				Detail:    "comparison conditions define an empty range",
			})
			continue
		}

		// eq X together with neq X can never hold.
		for _, eqCond := range conds {
			if rules.Normalize(eqCond.Operator) != rules.OpEq {
				continue
			}
			for _, neqCond := range conds {
				if rules.Normalize(neqCond.Operator) != rules.OpNeq {
					continue
				}
				if looseEqual(eqCond.Value, neqCond.Value) {
					found = append(found, Contradiction{
						RuleID:    ruleID,
						Attribute: attr,
						Detail:    fmt.Sprintf("eq and neq on the same value %v", eqCond.Value),
					})
				}
			}
		}
	}
	return found
}
