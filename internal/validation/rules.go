package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// fieldValidator backs the format rules. It is safe for concurrent use.
var fieldValidator = validator.New()

// present skips non-required rules for absent values: nil or "".
func present(check Check) Check {
	return func(v any) (bool, string) {
		if convert.IsEmpty(v) {
			return true, ""
		}
		return check(v)
	}
}

// length counts runes for text and items for lists.
func length(v any) int {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t)
	case []any:
		return len(t)
	case []string:
		return len(t)
	default:
		return utf8.RuneCountInString(convert.ToString(v))
	}
}

func compileRequired(Params) (Check, error) {
	return func(v any) (bool, string) {
		if convert.IsEmpty(v) {
			return false, "Field is required"
		}
		return true, ""
	}, nil
}

func compileMinLength(p Params) (Check, error) {
	n, ok, err := p.Int("min", "min_length", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("minimum length not specified")
	}
	msg := fmt.Sprintf("Value must be at least %d characters long", n)
	return present(func(v any) (bool, string) {
		if length(v) < n {
			return false, msg
		}
		return true, ""
	}), nil
}

func compileMaxLength(p Params) (Check, error) {
	n, ok, err := p.Int("max", "max_length", "value")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("maximum length not specified")
	}
	msg := fmt.Sprintf("Value must not exceed %d characters", n)
	return present(func(v any) (bool, string) {
		if length(v) > n {
			return false, msg
		}
		return true, ""
	}), nil
}

// compileRegex anchors the pattern according to mode: "full" (default)
// must match the whole value, "prefix" must match at the start, "search"
// may match anywhere. Flags i, m and s map to the RE2 flags of the same name.
func compileRegex(p Params) (Check, error) {
	pattern, ok := p.String("pattern")
	if !ok || pattern == "" {
		return nil, errors.New("regex pattern not specified")
	}

	expr := pattern
	mode, _ := p.String("mode")
	switch mode {
	case "", "full":
		expr = `^(?:` + pattern + `)$`
	case "prefix":
		expr = `^(?:` + pattern + `)`
	case "search":
	default:
		return nil, fmt.Errorf("unknown regex mode %q", mode)
	}

	if flags, _ := p.String("flags"); flags != "" {
		var set strings.Builder
		for _, f := range strings.ToLower(flags) {
			switch f {
			case 'i', 'm', 's':
				if !strings.ContainsRune(set.String(), f) {
					set.WriteRune(f)
				}
			default:
				return nil, fmt.Errorf("unsupported regex flag %q", f)
			}
		}
		expr = "(?" + set.String() + ")" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	msg := "Value does not match pattern: " + pattern
	return present(func(v any) (bool, string) {
		if !re.MatchString(convert.ToString(v)) {
			return false, msg
		}
		return true, ""
	}), nil
}

// compileEnum accepts a value equal to one of values. Numbers compare by
// value, so 1, 1.0 and "1" are the same member.
func compileEnum(p Params) (Check, error) {
	values, ok := p.List("values", "allowed", "options")
	if !ok || len(values) == 0 {
		return nil, errors.New("no allowed values specified")
	}
	caseSensitive, err := p.Bool(true, "case_sensitive")
	if err != nil {
		return nil, err
	}

	key := func(v any) string {
		if f, isNum := convert.ToFloat(v); isNum && (convert.IsNumber(v) || numericText(v)) {
			return "n:" + convert.FormatFloat(f)
		}
		s := convert.ToString(v)
		if !caseSensitive {
			s = strings.ToLower(s)
		}
		return "s:" + s
	}

	allowed := make(map[string]bool, len(values))
	names := make([]string, len(values))
	for i, v := range values {
		allowed[key(v)] = true
		names[i] = convert.ToString(v)
	}
	msg := "Value must be one of: " + strings.Join(names, ", ")

	return present(func(v any) (bool, string) {
		if !allowed[key(v)] {
			return false, msg
		}
		return true, ""
	}), nil
}

var plainNumber = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

func numericText(v any) bool {
	s, ok := v.(string)
	return ok && plainNumber.MatchString(strings.TrimSpace(s))
}

func compileNumericRange(p Params) (Check, error) {
	lo, hasMin, err := p.Float("min", "min_value")
	if err != nil {
		return nil, err
	}
	hi, hasMax, err := p.Float("max", "max_value")
	if err != nil {
		return nil, err
	}
	if hasMin && hasMax && lo > hi {
		return nil, fmt.Errorf("min %v greater than max %v", lo, hi)
	}

	minMsg := "Value must be at least " + convert.FormatFloat(lo)
	maxMsg := "Value must not exceed " + convert.FormatFloat(hi)
	return present(func(v any) (bool, string) {
		f, ok := convert.ToFloat(v)
		if !ok {
			return false, "Value must be numeric"
		}
		if hasMin && f < lo {
			return false, minMsg
		}
		if hasMax && f > hi {
			return false, maxMsg
		}
		return true, ""
	}), nil
}

func compileNumeric(Params) (Check, error) {
	return present(func(v any) (bool, string) {
		if _, ok := convert.ToFloat(v); !ok {
			return false, "Value must be numeric"
		}
		return true, ""
	}), nil
}

func compileInteger(Params) (Check, error) {
	return present(func(v any) (bool, string) {
		if _, ok := convert.ToInt(v); !ok {
			return false, "Value must be an integer"
		}
		return true, ""
	}), nil
}

func compileBoolean(Params) (Check, error) {
	return present(func(v any) (bool, string) {
		if _, ok := convert.ToBool(v); !ok {
			return false, "Value must be a boolean"
		}
		return true, ""
	}), nil
}

func compileDate(Params) (Check, error) {
	return present(func(v any) (bool, string) {
		if _, ok := convert.ToTime(v); !ok {
			return false, "Value must be a valid date"
		}
		return true, ""
	}), nil
}

func compileDateCompare(before bool) func(Params) (Check, error) {
	return func(p Params) (Check, error) {
		raw, ok := p.String("date")
		if !ok {
			return nil, errors.New("comparison date not specified")
		}
		bound, ok := convert.ParseDate(raw)
		if !ok {
			return nil, fmt.Errorf("invalid comparison date: %s", raw)
		}
		msg := "Date must be after " + raw
		if before {
			msg = "Date must be before " + raw
		}
		return present(func(v any) (bool, string) {
			t, ok := convert.ToTime(v)
			if !ok {
				return false, "Value must be a valid date"
			}
			if (before && !t.Before(bound)) || (!before && !t.After(bound)) {
				return false, msg
			}
			return true, ""
		}), nil
	}
}

// compileTag runs a go-playground/validator tag against the textual value.
func compileTag(tag, msg string) func(Params) (Check, error) {
	return func(Params) (Check, error) {
		return present(func(v any) (bool, string) {
			if err := fieldValidator.Var(convert.ToString(v), tag); err != nil {
				return false, msg
			}
			return true, ""
		}), nil
	}
}

func init() {
	for _, rt := range []RuleType{
		{Name: "required", Description: "Value must not be nil or empty text", Compile: compileRequired},
		{Name: "min_length", Description: "Length of at least min characters", Compile: compileMinLength},
		{Name: "max_length", Description: "Length of at most max characters", Compile: compileMaxLength},
		{Name: "regex", Description: "Value matches pattern", Compile: compileRegex},
		{Name: "enum", Description: "Value is one of values", Compile: compileEnum},
		{Name: "numeric_range", Description: "Number within inclusive [min, max]", Compile: compileNumericRange},
		{Name: "numeric", Description: "Value is a number", Compile: compileNumeric},
		{Name: "integer", Description: "Value is a whole number", Compile: compileInteger},
		{Name: "boolean", Description: "Value is a boolean", Compile: compileBoolean},
		{Name: "date", Description: "Value is a date", Compile: compileDate},
		{Name: "date_before", Description: "Date strictly before date", Compile: compileDateCompare(true)},
		{Name: "date_after", Description: "Date strictly after date", Compile: compileDateCompare(false)},
		{Name: "email", Description: "Value is an email address", Compile: compileTag("email", "Value must be a valid email address")},
		{Name: "url", Description: "Value is an absolute URL", Compile: compileTag("url", "Value must be a valid URL")},
	} {
		mustRegisterRuleType(rt)
	}
}
