package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Kind is the type a parameter is coerced to when a step is compiled.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "any"
	}
}

// Param describes one operation parameter.
// A parameter with no Default and Required=false binds to nil when omitted.
type Param struct {
	Name     string
	Kind     Kind
	Default  any
	Required bool
}

// Args holds the bound, typed arguments of one step.
type Args struct {
	values map[string]any
	rest   []any
}

// Value returns the bound value of name, or nil.
func (a Args) Value(name string) any { return a.values[name] }

// Has reports whether name is bound to a non-nil value.
func (a Args) Has(name string) bool { return a.values[name] != nil }

// String returns a KindString parameter.
func (a Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

// Int returns a KindInt parameter.
func (a Args) Int(name string) int {
	n, _ := a.values[name].(int64)
	return int(n)
}

// Float returns a KindFloat parameter.
func (a Args) Float(name string) float64 {
	f, _ := a.values[name].(float64)
	return f
}

// Bool returns a KindBool parameter.
func (a Args) Bool(name string) bool {
	b, _ := a.values[name].(bool)
	return b
}

// With returns a copy of a with name bound to v.
func (a Args) With(name string, v any) Args {
	values := make(map[string]any, len(a.values)+1)
	for k, val := range a.values {
		values[k] = val
	}
	values[name] = v
	return Args{values: values, rest: a.rest}
}

// Rest returns the arguments collected by a variadic operation.
func (a Args) Rest() []any { return a.rest }

// NewArgs builds Args directly. Intended for calling an operation's Fn in tests.
func NewArgs(values map[string]any, rest ...any) Args {
	return Args{values: values, rest: rest}
}

// bind matches a step's positional and named arguments against the
// operation's parameters and coerces each to its declared Kind.
func bind(op *Operation, step Step, index int) (Args, error) {
	args := Args{values: make(map[string]any, len(op.Params))}

	if len(step.Args) > len(op.Params) && !op.Variadic {
		return args, &ParamError{
			Operation: op.Name,
			Step:      index,
			Reason:    fmt.Sprintf("takes at most %d arguments, got %d", len(op.Params), len(step.Args)),
		}
	}

	for i, p := range op.Params {
		var (
			raw   any
			found bool
		)
		if i < len(step.Args) {
			raw, found = step.Args[i], true
			if p.Kind == KindString && i < len(step.Raw) {
				raw = step.Raw[i]
			}
		}
		if v, ok := step.Named[p.Name]; ok {
			if found {
				return args, &ParamError{Operation: op.Name, Param: p.Name, Step: index, Reason: "given both positionally and by name"}
			}
			raw, found = v, true
		}
		if !found {
			if p.Required {
				return args, &ParamError{Operation: op.Name, Param: p.Name, Step: index, Reason: "missing required argument"}
			}
			def, err := coerce(p.Default, p.Kind)
			if err != nil {
				return args, &ParamError{Operation: op.Name, Param: p.Name, Step: index, Reason: "bad default: " + err.Error()}
			}
			args.values[p.Name] = def
			continue
		}

		v, err := coerce(raw, p.Kind)
		if err != nil {
			return args, &ParamError{Operation: op.Name, Param: p.Name, Step: index, Reason: err.Error()}
		}
		args.values[p.Name] = v
	}

	for name := range step.Named {
		if !op.hasParam(name) {
			return args, &ParamError{Operation: op.Name, Param: name, Step: index, Reason: "unknown parameter"}
		}
	}

	if op.Variadic && len(step.Args) > len(op.Params) {
		args.rest = append(args.rest, step.Args[len(op.Params):]...)
	}

	if op.Prepare != nil {
		prepared, err := op.Prepare(args)
		if err != nil {
			var pe *ParamError
			if errors.As(err, &pe) {
				pe.Operation, pe.Step = op.Name, index
				return args, pe
			}
			return args, &ParamError{Operation: op.Name, Step: index, Reason: err.Error()}
		}
		args = prepared
	}
	return args, nil
}

func (op *Operation) hasParam(name string) bool {
	for _, p := range op.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func coerce(v any, kind Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		return convert.ToString(v), nil
	case KindInt:
		n, ok := convert.ToInt(v)
		if !ok {
			return nil, fmt.Errorf("want integer, got %#v", v)
		}
		return n, nil
	case KindFloat:
		f, ok := convert.ToFloat(v)
		if !ok || math.IsInf(f, 0) {
			return nil, fmt.Errorf("want number, got %#v", v)
		}
		return f, nil
	case KindBool:
		b, ok := convert.ToBool(v)
		if !ok {
			return nil, fmt.Errorf("want boolean, got %#v", v)
		}
		return b, nil
	default:
		return v, nil
	}
}

func paramErr(param, format string, args ...any) error {
	return &ParamError{Param: param, Step: -1, Reason: fmt.Sprintf(format, args...)}
}
