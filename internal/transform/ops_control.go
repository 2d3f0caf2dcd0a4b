package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

func isBlank(v any) bool {
	if convert.IsEmpty(v) {
		return true
	}
	list, ok := asList(v)
	return ok && len(list) == 0
}

func coalesce(v any, args Args) (any, error) {
	if !isBlank(v) {
		return v, nil
	}
	for _, alt := range args.Rest() {
		if !isBlank(alt) {
			return alt, nil
		}
	}
	return nil, nil
}

var lookupFloatRegex = regexp.MustCompile(`^-?\d+\.\d+$`)

// lookupValue types a mapping value: booleans, decimals and integers.
func lookupValue(s string) any {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if lookupFloatRegex.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// prepareLookup builds the lookup table from "k:v,k2:v2" text, from extra
// positional "k:v" arguments, or from a structured mapping.
func prepareLookup(args Args) (Args, error) {
	table := make(map[string]any)

	addPairs := func(text string) error {
		for _, pair := range strings.Split(text, ",") {
			if strings.TrimSpace(pair) == "" {
				continue
			}
			k, v, ok := strings.Cut(pair, ":")
			if !ok {
				return paramErr("mapping", "pair %q is not key:value", pair)
			}
			table[strings.ToLower(strings.TrimSpace(k))] = lookupValue(v)
		}
		return nil
	}

	switch m := args.Value("mapping").(type) {
	case nil:
	case map[string]any:
		for k, v := range m {
			table[strings.ToLower(strings.TrimSpace(k))] = v
		}
	case map[string]string:
		for k, v := range m {
			table[strings.ToLower(strings.TrimSpace(k))] = v
		}
	default:
		if err := addPairs(convert.ToString(m)); err != nil {
			return args, err
		}
	}
	for _, extra := range args.Rest() {
		if err := addPairs(convert.ToString(extra)); err != nil {
			return args, err
		}
	}
	if len(table) == 0 {
		return args, paramErr("mapping", "empty lookup table")
	}
	return args.With("table", table), nil
}

func vlookup(v any, args Args) (any, error) {
	table, _ := args.Value("table").(map[string]any)
	key := strings.ToLower(strings.TrimSpace(convert.ToString(v)))
	if out, ok := table[key]; ok {
		return out, nil
	}
	return v, nil
}

func setNumber(_ any, args Args) (any, error) {
	return args.Value("value"), nil
}

func registerControl(r *Registry) {
	def := []Param{{Name: "default", Kind: KindAny, Default: ""}}

	for _, op := range []Operation{
		{Name: "if_empty", Category: CategoryConditional, Description: "Replace nil, empty text or an empty list with default", Params: def, HandlesNil: true,
			Fn: func(v any, a Args) (any, error) {
				if isBlank(v) {
					return a.Value("default"), nil
				}
				return v, nil
			}},
		{Name: "if_null", Category: CategoryConditional, Description: "Replace nil with default", Params: def, HandlesNil: true,
			Fn: func(v any, a Args) (any, error) {
				if v == nil {
					return a.Value("default"), nil
				}
				return v, nil
			}},
		{Name: "coalesce", Category: CategoryConditional, Description: "First non-empty of the value and the alternatives", Variadic: true, HandlesNil: true, Fn: coalesce},
		{Name: "to_bool", Category: CategoryConditional, Description: "Parse yes/no, true/false, 1/0", Fn: func(v any, _ Args) (any, error) {
			b, ok := convert.ToBool(v)
			if !ok {
				return nil, convErr(v, "not a boolean")
			}
			return b, nil
		}},
		{Name: "noop", Category: CategoryUtility, Description: "Return the value unchanged", HandlesNil: true, Fn: func(v any, _ Args) (any, error) { return v, nil }},
		{Name: "copy", Category: CategoryUtility, Description: "Return the value unchanged", HandlesNil: true, Fn: func(v any, _ Args) (any, error) { return v, nil }},
		{Name: "set", Category: CategoryUtility, Description: "Replace the value with a constant", Params: []Param{{Name: "value", Kind: KindAny, Required: true}}, HandlesNil: true,
			Fn: func(_ any, a Args) (any, error) { return a.Value("value"), nil }},
		{Name: "set_number", Category: CategoryUtility, Description: "Replace the value with an integer constant", Params: []Param{{Name: "value", Kind: KindInt, Required: true}}, HandlesNil: true, Fn: setNumber},
		{Name: "vlookup_map", Category: CategoryUtility, Description: "Map the value through a key:value table, case-insensitively", Params: []Param{{Name: "mapping", Kind: KindAny}}, Variadic: true,
			Prepare: prepareLookup, Fn: vlookup},
		{Name: "vlookup", Category: CategoryUtility, Description: "Alias of vlookup_map", Params: []Param{{Name: "mapping", Kind: KindAny}}, Variadic: true,
			Prepare: prepareLookup, Fn: vlookup},
		{Name: "rejects", Category: CategoryUtility, Description: "Reject the whole row", HandlesNil: true, Fn: func(_ any, _ Args) (any, error) { return nil, ErrRejectRow }},
	} {
		r.MustRegister(op)
	}
}

// registerBuiltins installs the built-in catalogue into r.
func registerBuiltins(r *Registry) {
	registerText(r)
	registerNumeric(r)
	registerDate(r)
	registerList(r)
	registerControl(r)
}

// Describe renders an operation signature such as "round_decimal(decimals=2)".
func Describe(op Operation) string {
	params := make([]string, 0, len(op.Params)+1)
	for _, p := range op.Params {
		switch {
		case p.Required:
			params = append(params, p.Name)
		case p.Default != nil:
			params = append(params, fmt.Sprintf("%s=%v", p.Name, p.Default))
		default:
			params = append(params, p.Name+"?")
		}
	}
	if op.Variadic {
		params = append(params, "...")
	}
	return op.Name + "(" + strings.Join(params, ", ") + ")"
}
