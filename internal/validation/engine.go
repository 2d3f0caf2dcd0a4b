package validation

import "sort"

type compiledRule struct {
	ruleType string
	field    string
	check    Check
}

func compileRules(field string, rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, len(rules))
	for i, r := range rules {
		if field != "" {
			r.FieldName = field
		}
		check, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		out[i] = compiledRule{ruleType: r.RuleType, field: r.FieldName, check: check}
	}
	return out, nil
}

func run(v any, rules []compiledRule) []Error {
	var errs []Error
	for _, r := range rules {
		if ok, msg := r.check(v); !ok {
			errs = append(errs, Error{Field: r.field, RuleType: r.ruleType, Message: msg})
		}
	}
	return errs
}

// Validate evaluates every rule against v, in order, and returns the
// failures. It never stops at the first failure. Each Error carries the
// rule's FieldName.
func Validate(v any, rules []Rule) ([]Error, error) {
	compiled, err := compileRules("", rules)
	if err != nil {
		return nil, err
	}
	return run(v, compiled), nil
}

// Validator holds compiled rules for a fixed set of fields.
// It is immutable and safe for concurrent use.
type Validator struct {
	fields []string
	rules  map[string][]compiledRule
}

// NewValidator compiles fieldRules. Rules take their field name from the
// map key. Unknown rule types and bad parameters fail here.
func NewValidator(fieldRules map[string][]Rule) (*Validator, error) {
	v := &Validator{rules: make(map[string][]compiledRule, len(fieldRules))}
	for field, rules := range fieldRules {
		compiled, err := compileRules(field, rules)
		if err != nil {
			return nil, err
		}
		v.fields = append(v.fields, field)
		v.rules[field] = compiled
	}
	sort.Strings(v.fields)
	return v, nil
}

// Fields returns the fields with rules, sorted.
func (v *Validator) Fields() []string {
	return append([]string(nil), v.fields...)
}

// ValidateField checks one value against the rules configured for field.
func (v *Validator) ValidateField(field string, value any) []Error {
	return run(value, v.rules[field])
}

// ValidateRow checks every configured field. A field missing from row is
// validated as nil.
func (v *Validator) ValidateRow(row map[string]any) RowReport {
	report := RowReport{}
	for _, field := range v.fields {
		if errs := run(row[field], v.rules[field]); len(errs) > 0 {
			report[field] = errs
		}
	}
	return report
}

// ValidateBatch checks rows in order. Keys are "row_<index>".
func (v *Validator) ValidateBatch(rows []map[string]any) (BatchReport, Summary) {
	report := BatchReport{}
	sum := Summary{Total: len(rows)}
	for i, row := range rows {
		rr := v.ValidateRow(row)
		if rr.Valid() {
			sum.Valid++
			continue
		}
		sum.Invalid++
		sum.Errors += rr.Count()
		report[RowKey(i)] = rr
	}
	return report, sum
}

// ValidateRow compiles fieldRules and checks a single row.
func ValidateRow(row map[string]any, fieldRules map[string][]Rule) (RowReport, error) {
	v, err := NewValidator(fieldRules)
	if err != nil {
		return nil, err
	}
	return v.ValidateRow(row), nil
}

// ValidateBatch compiles fieldRules and checks rows in order.
func ValidateBatch(rows []map[string]any, fieldRules map[string][]Rule) (BatchReport, error) {
	v, err := NewValidator(fieldRules)
	if err != nil {
		return nil, err
	}
	report, _ := v.ValidateBatch(rows)
	return report, nil
}
