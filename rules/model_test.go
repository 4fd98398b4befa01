package rules

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   Operator
		want Operator
	}{
		{in: "==", want: OpEq},
		{in: "equals", want: OpEq},
		{in: "EQ", want: OpEq},
		{in: "!=", want: OpNeq},
		{in: "not_equals", want: OpNeq},
		{in: ">", want: OpGt},
		{in: ">=", want: OpGte},
		{in: "<", want: OpLt},
		{in: "<=", want: OpLte},
		{in: "in_list", want: OpIn},
		{in: "nin", want: OpNotIn},
		{in: "startswith", want: OpStartsWith},
		{in: "endswith", want: OpEndsWith},
		{in: "regex", want: OpMatchRegex},
		{in: "matches", want: OpMatchRegex},
		{in: "semver", want: OpSemVer},
		{in: "semantic_version", want: OpSemVer},
		{in: "geo_distance", want: OpGeoDistance},
		{in: "time_window", want: OpTimeWindow},
		{in: "bogus_op", want: "bogus_op"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeGroup(t *testing.T) {
	tests := []struct {
		in   GroupOperator
		want GroupOperator
	}{
		{in: "AND", want: GroupAnd},
		{in: "and", want: GroupAnd},
		{in: "&&", want: GroupAnd},
		{in: "", want: GroupAnd},
		{in: "OR", want: GroupOr},
		{in: "||", want: GroupOr},
		{in: "NOT", want: GroupNot},
		{in: "!", want: GroupNot},
		{in: "xor", want: "xor"},
	}

	for _, tt := range tests {
		if got := NormalizeGroup(tt.in); got != tt.want {
			t.Errorf("NormalizeGroup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
