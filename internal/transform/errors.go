package transform

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrConversion       = errors.New("conversion failed")
	ErrMalformedRule    = errors.New("malformed rule")
	ErrInvalidParam     = errors.New("invalid parameter")
	ErrLengthMismatch   = errors.New("values and rules length mismatch")

	// ErrRejectRow is returned by the rejects operation. It asks the caller
	// to drop the whole row rather than reporting a field failure.
	ErrRejectRow = errors.New("row rejected")
)

// LookupError reports an operation name that is not registered.
// Step is the zero-based pipeline index, or -1 for a direct lookup.
type LookupError struct {
	Name string
	Step int
}

func (e *LookupError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("unknown operation %q", e.Name)
	}
	return fmt.Sprintf("step %d: unknown operation %q", e.Step, e.Name)
}

func (e *LookupError) Unwrap() error { return ErrUnknownOperation }

// ConversionError reports a value an operation could not coerce.
type ConversionError struct {
	Operation string
	Step      int
	Value     any
	Reason    string
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s: cannot convert %#v", e.Operation, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Step >= 0 {
		msg = fmt.Sprintf("step %d: %s", e.Step, msg)
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// ParseError reports a rule string that violates the grammar.
// Fragment is the offending part of the rule and Offset its byte position.
type ParseError struct {
	Rule     string
	Fragment string
	Offset   int
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed rule %q at offset %d (%q): %s", e.Rule, e.Offset, e.Fragment, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformedRule }

// ParamError reports an argument that does not fit an operation's parameters.
type ParamError struct {
	Operation string
	Param     string
	Step      int
	Reason    string
}

func (e *ParamError) Error() string {
	msg := e.Operation
	if e.Param != "" {
		msg += "." + e.Param
	}
	msg += ": " + e.Reason
	if e.Step >= 0 {
		msg = fmt.Sprintf("step %d: %s", e.Step, msg)
	}
	return msg
}

func (e *ParamError) Unwrap() error { return ErrInvalidParam }

// convErr is the error operations return for values they cannot handle.
// The engine fills in the operation name and step index.
func convErr(v any, format string, args ...any) error {
	return &ConversionError{Value: v, Step: -1, Reason: fmt.Sprintf(format, args...)}
}

// IsLookup reports whether err is an unknown operation failure.
func IsLookup(err error) bool { return errors.Is(err, ErrUnknownOperation) }

// IsConversion reports whether err is a conversion failure.
func IsConversion(err error) bool { return errors.Is(err, ErrConversion) }
