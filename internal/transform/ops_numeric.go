package transform

import (
	"math"
	"strconv"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

func asNumber(v any) (float64, error) {
	f, ok := convert.ToFloat(v)
	if !ok {
		return 0, convErr(v, "not a number")
	}
	return f, nil
}

// numericOp lifts a float function to an operation.
func numericOp(fn func(f float64, args Args) (any, error)) Func {
	return func(v any, args Args) (any, error) {
		f, err := asNumber(v)
		if err != nil {
			return nil, err
		}
		return fn(f, args)
	}
}

func floatOp(fn func(f float64, args Args) float64) Func {
	return numericOp(func(f float64, args Args) (any, error) { return fn(f, args), nil })
}

// cleanNumericValue keeps digits, one leading minus and the first decimal
// point, then parses the result. Accounting negatives "(12.50)" are honored.
func cleanNumericValue(v any, _ Args) (any, error) {
	if convert.IsNumber(v) {
		return asNumber(v)
	}
	s, err := asText(v)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(s)
	negative := strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")")

	var (
		b        strings.Builder
		digits   bool
		decimal  bool
		signSeen bool
	)
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits = true
		case r == '.' && !decimal:
			b.WriteRune(r)
			decimal = true
		case r == '-' && !digits && !decimal && !signSeen:
			negative = true
			signSeen = true
		}
	}
	if !digits {
		return nil, convErr(v, "no digits")
	}

	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil, convErr(v, "%v", err)
	}
	if negative {
		f = -f
	}
	return f, nil
}

// maxDecimals is the most places round_decimal accepts.
const maxDecimals = 15

// roundDecimal rounds the exact binary value of f to the nearest
// representable decimal, ties to even.
func roundDecimal(f float64, args Args) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, convErr(f, "not a finite number")
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'f', args.Int("decimals"), 64), 64)
	if err != nil {
		return nil, convErr(f, "%v", err)
	}
	return r, nil
}

func prepareDecimals(a Args) (Args, error) {
	if n := a.Int("decimals"); n < 0 || n > maxDecimals {
		return a, paramErr("decimals", "must be between 0 and %d, got %d", maxDecimals, n)
	}
	return a, nil
}

// toInt64 converts an integral float, failing outside the int64 range.
func toInt64(f float64) (int64, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, convErr(f, "out of integer range")
	}
	return int64(f), nil
}

// pyMod matches the sign convention of floored division.
func pyMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func nonZero(name string) func(Args) (Args, error) {
	return func(a Args) (Args, error) {
		if a.Float(name) == 0 {
			return a, paramErr(name, "must not be zero")
		}
		return a, nil
	}
}

func registerNumeric(r *Registry) {
	req := func(name string) Param { return Param{Name: name, Kind: KindFloat, Required: true} }
	opt := func(name string, def float64) Param { return Param{Name: name, Kind: KindFloat, Default: def} }

	for _, op := range []Operation{
		{Name: "clean_numeric_value", Description: "Strip everything but digits, one leading minus and one decimal point, then parse", Fn: cleanNumericValue},
		{Name: "to_number", Description: "Parse a formatted number", Fn: floatOp(func(f float64, _ Args) float64 { return f })},
		{Name: "round_decimal", Description: "Round to the given decimal places, ties to even", Params: []Param{{Name: "decimals", Kind: KindInt, Default: 2}},
			Prepare: prepareDecimals, Fn: numericOp(roundDecimal)},
		{Name: "addition", Description: "Add amount", Params: []Param{req("amount")}, Fn: floatOp(func(f float64, a Args) float64 { return f + a.Float("amount") })},
		{Name: "subtraction", Description: "Subtract amount", Params: []Param{req("amount")}, Fn: floatOp(func(f float64, a Args) float64 { return f - a.Float("amount") })},
		{Name: "multiplication", Description: "Multiply by factor", Params: []Param{req("factor")}, Fn: floatOp(func(f float64, a Args) float64 { return f * a.Float("factor") })},
		{Name: "division", Description: "Divide by divisor", Params: []Param{req("divisor")}, Prepare: nonZero("divisor"),
			Fn: floatOp(func(f float64, a Args) float64 { return f / a.Float("divisor") })},
		{Name: "percentage", Description: "Multiply by factor, 100 by default", Params: []Param{opt("factor", 100)}, Fn: floatOp(func(f float64, a Args) float64 { return f * a.Float("factor") })},
		{Name: "adjust_negative_to_zero", Description: "Replace negative numbers with zero", Fn: floatOp(func(f float64, _ Args) float64 { return math.Max(0, f) })},
		{Name: "absolute_value", Description: "Absolute value", Fn: floatOp(func(f float64, _ Args) float64 { return math.Abs(f) })},
		{Name: "ceiling", Description: "Smallest integer not below the value", Fn: numericOp(func(f float64, _ Args) (any, error) { return toInt64(math.Ceil(f)) })},
		{Name: "floor", Description: "Largest integer not above the value", Fn: numericOp(func(f float64, _ Args) (any, error) { return toInt64(math.Floor(f)) })},
		{Name: "square_root", Description: "Square root", Fn: numericOp(func(f float64, _ Args) (any, error) {
			if f < 0 {
				return nil, convErr(f, "square root of negative number")
			}
			return math.Sqrt(f), nil
		})},
		{Name: "power", Description: "Raise to exponent", Params: []Param{opt("exponent", 2)}, Fn: floatOp(func(f float64, a Args) float64 { return math.Pow(f, a.Float("exponent")) })},
		{Name: "modulo", Description: "Remainder of division by divisor", Params: []Param{opt("divisor", 10)}, Prepare: nonZero("divisor"),
			Fn: floatOp(func(f float64, a Args) float64 { return pyMod(f, a.Float("divisor")) })},
		{Name: "clamp", Description: "Limit to [min_val, max_val]", Params: []Param{opt("min_val", 0), opt("max_val", 100)},
			Prepare: func(a Args) (Args, error) {
				if a.Float("min_val") > a.Float("max_val") {
					return a, paramErr("min_val", "greater than max_val")
				}
				return a, nil
			},
			Fn: floatOp(func(f float64, a Args) float64 { return math.Max(a.Float("min_val"), math.Min(f, a.Float("max_val"))) })},
		{Name: "scale", Description: "Multiply by factor, 1 by default", Params: []Param{opt("factor", 1)}, Fn: floatOp(func(f float64, a Args) float64 { return f * a.Float("factor") })},
		{Name: "reciprocal", Description: "One divided by the value", Fn: numericOp(func(f float64, _ Args) (any, error) {
			if f == 0 {
				return nil, convErr(f, "reciprocal of zero")
			}
			return 1 / f, nil
		})},
	} {
		op.Category = CategoryNumeric
		r.MustRegister(op)
	}
}
