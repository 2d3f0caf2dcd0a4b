package transform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		rule string
		want Pipeline
	}{
		{
			name: "single bare step",
			rule: "uppercase",
			want: Pipeline{{Operation: "uppercase"}},
		},
		{
			name: "chained with whitespace",
			rule: "  strip   +uppercase + title_case ",
			want: Pipeline{{Operation: "strip"}, {Operation: "uppercase"}, {Operation: "title_case"}},
		},
		{
			name: "integer parameter",
			rule: "round_decimal|2",
			want: Pipeline{{Operation: "round_decimal", Args: []any{int64(2)}, Raw: []string{"2"}}},
		},
		{
			name: "float and string parameters",
			rule: "clean_numeric_value + multiplication| 2.5 + replace|a | b",
			want: Pipeline{
				{Operation: "clean_numeric_value"},
				{Operation: "multiplication", Args: []any{2.5}, Raw: []string{"2.5"}},
				{Operation: "replace", Args: []any{"a", "b"}, Raw: []string{"a", "b"}},
			},
		},
		{
			name: "escaped delimiters",
			rule: `replace|\+|plus + split|\|`,
			want: Pipeline{
				{Operation: "replace", Args: []any{"+", "plus"}, Raw: []string{"+", "plus"}},
				{Operation: "split", Args: []any{"|"}, Raw: []string{"|"}},
			},
		},
		{
			name: "regex backslashes kept",
			rule: `replace_regex|\d+|#`,
			want: Pipeline{{Operation: "replace_regex", Args: []any{`\d+`, "#"}, Raw: []string{`\d+`, "#"}}},
		},
		{
			name: "empty parameter",
			rule: "replace|-|",
			want: Pipeline{{Operation: "replace", Args: []any{"-", ""}, Raw: []string{"-", ""}}},
		},
		{
			name: "leading zeros keep raw text",
			rule: "set|007",
			want: Pipeline{{Operation: "set", Args: []any{int64(7)}, Raw: []string{"007"}}},
		},
		{
			name: "non finite floats stay strings",
			rule: "set|NaN + set|inf",
			want: Pipeline{
				{Operation: "set", Args: []any{"NaN"}, Raw: []string{"NaN"}},
				{Operation: "set", Args: []any{"inf"}, Raw: []string{"inf"}},
			},
		},
		{
			name: "category qualified name",
			rule: "text.strip",
			want: Pipeline{{Operation: "text.strip"}},
		},
		{
			name: "blank rule",
			rule: "   ",
			want: Pipeline{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.rule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		fragment string
	}{
		{name: "missing operation name", rule: "|2", fragment: "|2"},
		{name: "empty middle step", rule: "strip + + uppercase", fragment: ""},
		{name: "trailing plus", rule: "strip +", fragment: ""},
		{name: "leading plus", rule: "+ strip", fragment: ""},
		{name: "name with spaces", rule: "round decimal|2", fragment: "round decimal|2"},
		{name: "name with symbols", rule: "strip + up-case", fragment: "up-case"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.rule)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrMalformedRule))

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.rule, pe.Rule)
			assert.Equal(t, tt.fragment, pe.Fragment)
		})
	}
}

func TestParseIdempotent(t *testing.T) {
	before := Default().Version()
	rule := "strip + replace|a|b + round_decimal|2 + vlookup_map|x:1,y:2"

	first, err := Parse(rule)
	require.NoError(t, err)
	second, err := Parse(rule)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, Default().Version())
}

func TestParseDoesNotCheckRegistry(t *testing.T) {
	p, err := Parse("definitely_not_registered|1")
	require.NoError(t, err)
	assert.Len(t, p, 1)
}

func TestPipelineString(t *testing.T) {
	rule := `strip + replace|\+|plus + round_decimal|2`
	p := MustParse(rule)
	assert.Equal(t, rule, p.String())

	again := MustParse(p.String())
	assert.Equal(t, p, again)
}
