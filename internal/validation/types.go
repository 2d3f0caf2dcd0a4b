// Package validation evaluates declarative rules against field values and
// aggregates the failures into row and batch reports.
//
// A failed rule is data, not an error: it becomes an Error entry in the
// report. Go errors are reserved for rules that cannot be evaluated at all,
// such as an unknown rule type or unusable parameters.
package validation

import (
	"fmt"
	"strconv"
)

// Rule is one declarative check against a single field.
type Rule struct {
	RuleType  string         `json:"rule_type" yaml:"rule_type" toml:"rule_type"`
	FieldName string         `json:"field_name,omitempty" yaml:"field_name,omitempty" toml:"field_name"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty" toml:"params"`

	// Message replaces the rule type's default failure message.
	Message string `json:"error_message,omitempty" yaml:"error_message,omitempty" toml:"error_message"`
}

// Error is a single rule failure for a field.
type Error struct {
	Field    string `json:"field"`
	RuleType string `json:"rule_type"`
	Message  string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.RuleType)
}

// RowReport maps a field name to its failures, in rule order.
// Only fields with at least one failure are present.
type RowReport map[string][]Error

// Valid reports whether the row passed every rule.
func (r RowReport) Valid() bool { return len(r) == 0 }

// Count returns the number of failures across all fields.
func (r RowReport) Count() int {
	n := 0
	for _, errs := range r {
		n += len(errs)
	}
	return n
}

// BatchReport maps "row_<index>" to that row's report.
// Only rows with at least one failure are present.
type BatchReport map[string]RowReport

// RowKey returns the batch report key for a zero-based row index.
func RowKey(index int) string {
	return "row_" + strconv.Itoa(index)
}

// Summary counts the outcome of a batch.
type Summary struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Errors  int `json:"errors"`
}
