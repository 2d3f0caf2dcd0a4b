// Package transform implements the field-level transformation engine.
//
// A transformation is described by a rule string such as
//
//	strip + uppercase
//	clean_numeric_value + round_decimal|2
//	replace|-|_ + prefix|SKU-
//
// Steps are separated by "+" and parameters by "|". Parse turns a rule string
// into a Pipeline, Compile binds each step to a registered Operation and its
// typed arguments, and the resulting Program folds the steps over a value from
// left to right.
//
// Failures are never swallowed here. An unknown operation surfaces as a
// *LookupError, a value that cannot be coerced surfaces as a *ConversionError
// and a malformed rule as a *ParseError. Whether a failed field falls back to
// its original value is decided by the caller.
//
// Operations live in a Registry. The package-level functions use a default
// registry populated with the built-in catalogue at init time.
package transform
