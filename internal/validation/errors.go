package validation

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRule = errors.New("unknown validation rule")
	ErrInvalidRule = errors.New("invalid validation rule")
)

// UnknownRuleError reports a rule type that is not registered.
type UnknownRuleError struct {
	RuleType string
	Field    string
}

func (e *UnknownRuleError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unknown validation rule %q", e.RuleType)
	}
	return fmt.Sprintf("field %q: unknown validation rule %q", e.Field, e.RuleType)
}

func (e *UnknownRuleError) Unwrap() error { return ErrUnknownRule }

// RuleError reports rule parameters that cannot be used.
type RuleError struct {
	RuleType string
	Field    string
	Reason   string
}

func (e *RuleError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.RuleType, e.Reason)
	if e.Field != "" {
		msg = fmt.Sprintf("field %q: %s", e.Field, msg)
	}
	return msg
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }
