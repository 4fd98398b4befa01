package engine

import (
	"fmt"
	"testing"

	"github.com/targetkit/targetkit/rollout"
	"github.com/targetkit/targetkit/rules"
	"github.com/targetkit/targetkit/testutil"
)

func mustCompile(t *testing.T, rs rules.TargetingRules) *CompiledRule {
	t.Helper()
	compiled, err := Compile(rs, CompileOptions{})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	return compiled
}

func TestEvaluateBasicMatch(t *testing.T) {
	compiled := mustCompile(t, testutil.RuleSet(testutil.Rule("us-adults", testutil.And(
		testutil.Cond("country", rules.OpEq, "US"),
		testutil.Cond("age", rules.OpGt, 18),
	))))

	result := Evaluate(compiled, testutil.Context("user-1", map[string]any{"country": "US", "age": 25}))
	if !result.Matched || result.MatchedRuleID != "us-adults" {
		t.Fatalf("result = %+v, want match on us-adults", result)
	}

	result = Evaluate(compiled, testutil.Context("user-1", map[string]any{"country": "DE", "age": 25}))
	if result.Matched {
		t.Fatalf("result = %+v, want no match", result)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	compiled := mustCompile(t, testutil.RuleSet(
		testutil.RuleAt("half", 0, 50, testutil.And(testutil.Cond("plan", rules.OpEq, "pro"))),
	))
	ctx := testutil.Context("user-42", map[string]any{"plan": "pro"})

	first := Evaluate(compiled, ctx)
	for i := 0; i < 50; i++ {
		got := Evaluate(compiled, ctx)
		if got.Matched != first.Matched || got.MatchedRuleID != first.MatchedRuleID {
			t.Fatalf("evaluation not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestBooleanCombinators(t *testing.T) {
	ctx := testutil.Context("u", map[string]any{"t": true, "f": false})
	tTrue := testutil.Cond("t", rules.OpEq, true)
	tFalse := testutil.Cond("f", rules.OpEq, true)

	tests := []struct {
		name  string
		group rules.RuleGroup
		want  bool
	}{
		{name: "and true true", group: testutil.And(tTrue, tTrue), want: true},
		{name: "and true false", group: testutil.And(tTrue, tFalse), want: false},
		{name: "or false false", group: testutil.Or(tFalse, tFalse), want: false},
		{name: "or false true", group: testutil.Or(tFalse, tTrue), want: true},
		{name: "not inverts false", group: testutil.Not(tFalse), want: true},
		{name: "not inverts true", group: testutil.Not(tTrue), want: false},
		{name: "empty and vacuously true", group: rules.RuleGroup{Operator: rules.GroupAnd}, want: true},
		{name: "empty or vacuously false", group: rules.RuleGroup{Operator: rules.GroupOr}, want: false},
		{
			name:  "double negation",
			group: rules.RuleGroup{Operator: rules.GroupNot, Groups: []rules.RuleGroup{testutil.Not(tTrue)}},
			want:  true,
		},
		{
			name: "not over multiple children is inverted and",
			// NOT(true AND false) == true
			group: testutil.Not(tTrue, tFalse),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled := mustCompile(t, testutil.RuleSet(rules.TargetingRule{ID: "r", Rule: tt.group, RolloutPercentage: 100}))
			result := Evaluate(compiled, ctx)
			if result.Matched != tt.want {
				t.Errorf("matched = %v, want %v", result.Matched, tt.want)
			}
		})
	}
}

func TestEvaluatePriorityOrder(t *testing.T) {
	// Both rules match; the lower priority number must win regardless of
	// document order.
	compiled := mustCompile(t, testutil.RuleSet(
		testutil.RuleAt("second", 5, 100, testutil.And(testutil.Cond("plan", rules.OpEq, "pro"))),
		testutil.RuleAt("first", 1, 100, testutil.And(testutil.Cond("plan", rules.OpEq, "pro"))),
	))

	result := Evaluate(compiled, testutil.Context("u", map[string]any{"plan": "pro"}))
	if result.MatchedRuleID != "first" {
		t.Fatalf("matched %q, want %q", result.MatchedRuleID, "first")
	}
}

func TestEvaluateRolloutGate(t *testing.T) {
	match := testutil.And(testutil.Cond("plan", rules.OpEq, "pro"))
	ctx := testutil.Context("user-9", map[string]any{"plan": "pro"})

	zero := Evaluate(mustCompile(t, testutil.RuleSet(testutil.RuleAt("r", 0, 0, match))), ctx)
	if zero.Matched {
		t.Fatal("0% rollout must never match")
	}
	if got, ok := zero.Metadata[MetaBucketedOut].([]string); !ok || len(got) != 1 || got[0] != "r" {
		t.Fatalf("bucketed_out metadata = %v, want [r]", zero.Metadata[MetaBucketedOut])
	}

	full := Evaluate(mustCompile(t, testutil.RuleSet(testutil.RuleAt("r", 0, 100, match))), ctx)
	if !full.Matched {
		t.Fatal("100% rollout must match when the group matches")
	}

	// A bucketed-out higher-priority rule falls through to the next rule.
	userID := ""
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("user-%d", i)
		if rollout.Bucket("gated", candidate) >= 50 {
			userID = candidate
			break
		}
	}
	compiled := mustCompile(t, testutil.RuleSet(
		testutil.RuleAt("gated", 1, 50, match),
		testutil.RuleAt("fallback", 2, 100, match),
	))
	result := Evaluate(compiled, testutil.Context(userID, map[string]any{"plan": "pro"}))
	if result.MatchedRuleID != "fallback" {
		t.Fatalf("matched %q, want fallback for bucketed-out user", result.MatchedRuleID)
	}
}

func TestEvaluateTypeErrorContainment(t *testing.T) {
	// The first rule hits a type mismatch (string where an array is
	// expected); it must evaluate false and the second rule must still run.
	compiled := mustCompile(t, testutil.RuleSet(
		testutil.RuleAt("tags", 1, 100, testutil.And(testutil.Cond("tags", rules.OpContainsAll, []any{"beta"}))),
		testutil.RuleAt("country", 2, 100, testutil.And(testutil.Cond("country", rules.OpEq, "US"))),
	))

	result := Evaluate(compiled, testutil.Context("u", map[string]any{"tags": "beta", "country": "US"}))
	if !result.Matched || result.MatchedRuleID != "country" {
		t.Fatalf("result = %+v, want match on country", result)
	}
	errs, ok := result.Metadata[MetaErrors].(map[string]string)
	if !ok || errs["tags"] == "" {
		t.Fatalf("metadata errors = %v, want contained error for tags", result.Metadata[MetaErrors])
	}
	if result.Error != "" {
		t.Fatalf("request-level error = %q, want empty for contained type errors", result.Error)
	}
}

func TestEvaluateMissingAttribute(t *testing.T) {
	ctx := testutil.Context("u", map[string]any{})

	in := mustCompile(t, testutil.RuleSet(testutil.Rule("r", testutil.And(
		testutil.Cond("country", rules.OpIn, []string{"US"}),
	))))
	if Evaluate(in, ctx).Matched {
		t.Fatal("in on missing attribute must not match")
	}

	notIn := mustCompile(t, testutil.RuleSet(testutil.Rule("r", testutil.And(
		testutil.Cond("country", rules.OpNotIn, []string{"US"}),
	))))
	if !Evaluate(notIn, ctx).Matched {
		t.Fatal("not_in on missing attribute must match vacuously")
	}
}

func TestEvaluateNestedAttributePath(t *testing.T) {
	compiled := mustCompile(t, testutil.RuleSet(testutil.Rule("os-gate", testutil.And(
		testutil.CondWith("device.os.version", rules.OpSemVer, "15.0.0", "gte"),
	))))

	ctx := testutil.Context("u", map[string]any{
		"device": map[string]any{"os": map[string]any{"version": "16.2.0"}},
	})
	if !Evaluate(compiled, ctx).Matched {
		t.Fatal("dotted path should resolve nested maps")
	}

	flat := testutil.Context("u", map[string]any{"device.os.version": "16.2.0"})
	if !Evaluate(compiled, flat).Matched {
		t.Fatal("literal dotted key should win over path traversal")
	}
}

func TestEvaluateNoRules(t *testing.T) {
	compiled := mustCompile(t, rules.TargetingRules{})
	result := Evaluate(compiled, testutil.Context("u", nil))
	if result.Matched || result.MatchedRuleID != "" {
		t.Fatalf("empty rule set evaluated to %+v, want no match", result)
	}
}
