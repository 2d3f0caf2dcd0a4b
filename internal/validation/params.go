package validation

import (
	"fmt"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Params gives typed access to a rule's parameter map.
type Params map[string]any

// lookup returns the first of names that is present.
func (p Params) lookup(names ...string) (string, any, bool) {
	for _, name := range names {
		if v, ok := p[name]; ok && v != nil {
			return name, v, true
		}
	}
	return "", nil, false
}

// Float returns the first present of names as a number.
func (p Params) Float(names ...string) (float64, bool, error) {
	name, v, ok := p.lookup(names...)
	if !ok {
		return 0, false, nil
	}
	f, valid := convert.ToFloat(v)
	if !valid {
		return 0, false, fmt.Errorf("parameter %q must be a number, got %#v", name, v)
	}
	return f, true, nil
}

// Int returns the first present of names as a non-negative integer.
func (p Params) Int(names ...string) (int, bool, error) {
	name, v, ok := p.lookup(names...)
	if !ok {
		return 0, false, nil
	}
	n, valid := convert.ToInt(v)
	if !valid || n < 0 {
		return 0, false, fmt.Errorf("parameter %q must be a non-negative integer, got %#v", name, v)
	}
	return int(n), true, nil
}

// String returns the first present of names as text.
func (p Params) String(names ...string) (string, bool) {
	_, v, ok := p.lookup(names...)
	if !ok {
		return "", false
	}
	return convert.ToString(v), true
}

// Bool returns the first present of names as a boolean, or def.
func (p Params) Bool(def bool, names ...string) (bool, error) {
	name, v, ok := p.lookup(names...)
	if !ok {
		return def, nil
	}
	b, valid := convert.ToBool(v)
	if !valid {
		return def, fmt.Errorf("parameter %q must be a boolean, got %#v", name, v)
	}
	return b, nil
}

// List returns the first present of names as a list. Text is split on commas.
func (p Params) List(names ...string) ([]any, bool) {
	_, v, ok := p.lookup(names...)
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case string:
		parts := strings.Split(list, ",")
		out := make([]any, len(parts))
		for i, s := range parts {
			out[i] = strings.TrimSpace(s)
		}
		return out, true
	default:
		return []any{v}, true
	}
}
