package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleTypes(t *testing.T) {
	tests := []struct {
		name   string
		rule   string
		params map[string]any
		value  any
		want   bool
	}{
		// required
		{"required nil", "required", nil, nil, false},
		{"required empty", "required", nil, "", false},
		{"required zero", "required", nil, 0, true},
		{"required false", "required", nil, false, true},
		{"required space", "required", nil, " ", true},

		// length
		{"min_length pass", "min_length", map[string]any{"min": 3}, "abc", true},
		{"min_length fail", "min_length", map[string]any{"min": 3}, "ab", false},
		{"min_length legacy name", "min_length", map[string]any{"min_length": 3}, "ab", false},
		{"min_length value name", "min_length", map[string]any{"value": 2}, "ab", true},
		{"min_length runes", "min_length", map[string]any{"min": 3}, "éèê", true},
		{"min_length nil", "min_length", map[string]any{"min": 3}, nil, true},
		{"min_length empty", "min_length", map[string]any{"min": 3}, "", true},
		{"min_length number", "min_length", map[string]any{"min": 3}, 12345, true},
		{"max_length pass", "max_length", map[string]any{"max": 3}, "abc", true},
		{"max_length fail", "max_length", map[string]any{"max_length": 3}, "abcd", false},
		{"max_length list", "max_length", map[string]any{"max": 1}, []any{"a", "b"}, false},

		// regex
		{"regex full match", "regex", map[string]any{"pattern": `[A-Z]{3}-\d+`}, "ABC-12", true},
		{"regex partial fails", "regex", map[string]any{"pattern": `[A-Z]{3}`}, "ABCD", false},
		{"regex prefix mode", "regex", map[string]any{"pattern": `[A-Z]{3}`, "mode": "prefix"}, "ABCD", true},
		{"regex search mode", "regex", map[string]any{"pattern": `\d`, "mode": "search"}, "ab1c", true},
		{"regex case flag", "regex", map[string]any{"pattern": `abc`, "flags": "i"}, "ABC", true},
		{"regex number value", "regex", map[string]any{"pattern": `\d{3}`}, 123, true},
		{"regex nil", "regex", map[string]any{"pattern": `x`}, nil, true},

		// enum
		{"enum member", "enum", map[string]any{"values": []any{"new", "used"}}, "new", true},
		{"enum non member", "enum", map[string]any{"values": []any{"new", "used"}}, "NEW", false},
		{"enum case insensitive", "enum", map[string]any{"values": []any{"new"}, "case_sensitive": false}, "NEW", true},
		{"enum numeric", "enum", map[string]any{"values": []any{1, 2}}, "2", true},
		{"enum numeric float", "enum", map[string]any{"values": []any{1, 2}}, 2.0, true},
		{"enum comma string", "enum", map[string]any{"values": "S, M, L"}, "M", true},
		{"enum string values", "enum", map[string]any{"values": []string{"a"}}, "b", false},

		// numeric_range
		{"range inside", "numeric_range", map[string]any{"min": 0, "max": 10}, 5, true},
		{"range min inclusive", "numeric_range", map[string]any{"min": 0, "max": 10}, 0, true},
		{"range max inclusive", "numeric_range", map[string]any{"min": 0, "max": 10}, "10", true},
		{"range below", "numeric_range", map[string]any{"min": 0}, -0.01, false},
		{"range above", "numeric_range", map[string]any{"max": 10}, 10.5, false},
		{"range unbounded", "numeric_range", map[string]any{}, 1e9, true},
		{"range non numeric", "numeric_range", map[string]any{"min": 0}, "abc", false},
		{"range nil", "numeric_range", map[string]any{"min": 0}, nil, true},
		{"range currency text", "numeric_range", map[string]any{"min": 0}, "$5.00", true},

		// numeric / integer
		{"numeric text", "numeric", nil, "12.5", true},
		{"numeric fail", "numeric", nil, "twelve", false},
		{"integer pass", "integer", nil, "12", true},
		{"integer fail", "integer", nil, 1.5, false},
		{"boolean text", "boolean", nil, "yes", true},
		{"boolean fail", "boolean", nil, "maybe", false},

		// dates
		{"date pass", "date", nil, "03/15/2024", true},
		{"date fail", "date", nil, "someday", false},
		{"date_before pass", "date_before", map[string]any{"date": "2025-01-01"}, "2024-12-31", true},
		{"date_before equal", "date_before", map[string]any{"date": "2025-01-01"}, "2025-01-01", false},
		{"date_after pass", "date_after", map[string]any{"date": "2025-01-01"}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"date_after invalid value", "date_after", map[string]any{"date": "2025-01-01"}, "whenever", false},

		// formats
		{"email pass", "email", nil, "buyer@example.com", true},
		{"email fail", "email", nil, "buyer@", false},
		{"url pass", "url", nil, "https://example.com/p/1", true},
		{"url fail", "url", nil, "example", false},
		{"email empty", "email", nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.rule, tt.value, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateUnknown(t *testing.T) {
	_, err := Evaluate("nope", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestRuleMessages(t *testing.T) {
	tests := []struct {
		rule  Rule
		value any
		want  string
	}{
		{Rule{RuleType: "max_length", Params: map[string]any{"max": 2}}, "abc", "Value must not exceed 2 characters"},
		{Rule{RuleType: "regex", Params: map[string]any{"pattern": `\d+`}}, "x", `Value does not match pattern: \d+`},
		{Rule{RuleType: "enum", Params: map[string]any{"values": []any{"a", "b"}}}, "c", "Value must be one of: a, b"},
		{Rule{RuleType: "numeric_range", Params: map[string]any{"max": 9.5}}, 10, "Value must not exceed 9.5"},
		{Rule{RuleType: "date_before", Params: map[string]any{"date": "2020-01-01"}}, "2021-01-01", "Date must be before 2020-01-01"},
	}

	for _, tt := range tests {
		errs, err := Validate(tt.value, []Rule{tt.rule})
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, tt.want, errs[0].Message)
	}
}

func TestRegisterRuleType(t *testing.T) {
	require.NoError(t, RegisterRuleType(RuleType{
		Name: "even_length",
		Compile: func(Params) (Check, error) {
			return func(v any) (bool, string) {
				s, _ := v.(string)
				return len(s)%2 == 0, "Value must have even length"
			}, nil
		},
	}))

	ok, err := Evaluate("even_length", "abcd", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	_, found := LookupRuleType("even_length")
	assert.True(t, found)

	assert.Error(t, RegisterRuleType(RuleType{Name: "Bad Name", Compile: compileRequired}))
	assert.Error(t, RegisterRuleType(RuleType{Name: "no_compile"}))

	names := make([]string, 0)
	for _, rt := range RuleTypes() {
		names = append(names, rt.Name)
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "numeric_range")
}
