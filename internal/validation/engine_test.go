package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiredEmpty(t *testing.T) {
	errs, err := Validate("", []Rule{{RuleType: "required", FieldName: "title", Params: map[string]any{}}})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "title", errs[0].Field)
	assert.Equal(t, "required", errs[0].RuleType)
	assert.Equal(t, "Field is required", errs[0].Message)
}

func TestValidateCollectsInRuleOrder(t *testing.T) {
	rules := []Rule{
		{RuleType: "required", FieldName: "title"},
		{RuleType: "min_length", FieldName: "title", Params: map[string]any{"min": 3}},
	}
	errs, err := Validate("ab", rules)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "min_length", errs[0].RuleType)
	assert.Equal(t, "Value must be at least 3 characters long", errs[0].Message)

	rules = []Rule{
		{RuleType: "max_length", FieldName: "code", Params: map[string]any{"max": 2}},
		{RuleType: "regex", FieldName: "code", Params: map[string]any{"pattern": `\d+`}},
		{RuleType: "enum", FieldName: "code", Params: map[string]any{"values": []any{"A", "B"}}},
	}
	errs, err = Validate("abc", rules)
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.Equal(t, []string{"max_length", "regex", "enum"}, []string{errs[0].RuleType, errs[1].RuleType, errs[2].RuleType})
}

func TestValidateNoFailuresReturnsEmpty(t *testing.T) {
	errs, err := Validate("hello", []Rule{{RuleType: "required"}, {RuleType: "max_length", Params: map[string]any{"max": 10}}})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateUnknownRule(t *testing.T) {
	_, err := Validate("x", []Rule{{RuleType: "required"}, {RuleType: "no_such_rule", FieldName: "sku"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRule))

	var ue *UnknownRuleError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "no_such_rule", ue.RuleType)
	assert.Equal(t, "sku", ue.Field)
}

func TestValidateBadParams(t *testing.T) {
	for _, r := range []Rule{
		{RuleType: "min_length"},
		{RuleType: "min_length", Params: map[string]any{"min": "three"}},
		{RuleType: "regex", Params: map[string]any{"pattern": "("}},
		{RuleType: "regex", Params: map[string]any{"pattern": "a", "flags": "x"}},
		{RuleType: "enum", Params: map[string]any{"values": []any{}}},
		{RuleType: "numeric_range", Params: map[string]any{"min": 10, "max": 1}},
		{RuleType: "date_before", Params: map[string]any{"date": "soon"}},
	} {
		_, err := Validate("x", []Rule{r})
		assert.ErrorIs(t, err, ErrInvalidRule, "%+v", r)
	}
}

func TestValidateCustomMessage(t *testing.T) {
	errs, err := Validate("", []Rule{{RuleType: "required", FieldName: "sku", Message: "SKU is mandatory"}})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "SKU is mandatory", errs[0].Message)
}

func productRules() map[string][]Rule {
	return map[string][]Rule{
		"sku":   {{RuleType: "required"}},
		"title": {{RuleType: "required"}, {RuleType: "min_length", Params: map[string]any{"min": 3}}},
		"price": {{RuleType: "numeric_range", Params: map[string]any{"min": 0}}},
	}
}

func TestValidateRow(t *testing.T) {
	report, err := ValidateRow(map[string]any{"sku": "A-1", "title": "Product", "price": 9.99}, productRules())
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.True(t, report.Valid())

	report, err = ValidateRow(map[string]any{"sku": "", "title": "P", "price": -10}, productRules())
	require.NoError(t, err)
	assert.Len(t, report, 3)
	assert.Equal(t, 3, report.Count())
	assert.Equal(t, "required", report["sku"][0].RuleType)
	assert.Equal(t, "min_length", report["title"][0].RuleType)
	assert.Equal(t, "title", report["title"][0].Field)
	assert.Equal(t, "Value must be at least 0", report["price"][0].Message)
}

func TestValidateRowMissingField(t *testing.T) {
	report, err := ValidateRow(map[string]any{"title": "Product"}, productRules())
	require.NoError(t, err)
	assert.Equal(t, RowReport{"sku": {{Field: "sku", RuleType: "required", Message: "Field is required"}}}, report)
}

func TestValidateBatch(t *testing.T) {
	rows := []map[string]any{
		{"sku": "A", "title": "Good one", "price": 1},
		{"sku": "", "title": "Good two", "price": 2},
		{"sku": "C", "title": "Good three", "price": "3.50"},
		{"sku": "D", "title": "no", "price": "abc"},
	}

	report, err := ValidateBatch(rows, productRules())
	require.NoError(t, err)
	assert.Len(t, report, 2)
	assert.Contains(t, report, "row_1")
	assert.Contains(t, report, "row_3")
	assert.Len(t, report["row_3"], 2)
	assert.Equal(t, "Value must be numeric", report["row_3"]["price"][0].Message)

	v, err := NewValidator(productRules())
	require.NoError(t, err)
	_, sum := v.ValidateBatch(rows)
	assert.Equal(t, Summary{Total: 4, Valid: 2, Invalid: 2, Errors: 3}, sum)
	assert.Equal(t, []string{"price", "sku", "title"}, v.Fields())
}

func TestValidatorCompileFailure(t *testing.T) {
	_, err := NewValidator(map[string][]Rule{"a": {{RuleType: "bogus"}}})
	var ue *UnknownRuleError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "a", ue.Field)
}

func TestRowKey(t *testing.T) {
	assert.Equal(t, "row_0", RowKey(0))
	assert.Equal(t, "row_12", RowKey(12))
}
