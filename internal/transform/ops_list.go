package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func listOp(fn func(list []any, args Args) (any, error)) Func {
	return func(v any, args Args) (any, error) {
		list, ok := asList(v)
		if !ok {
			return nil, convErr(v, "not a list")
		}
		return fn(list, args)
	}
}

// join accepts a list, or text that is first split on whitespace.
func join(v any, args Args) (any, error) {
	list, ok := asList(v)
	if !ok {
		s, err := asText(v)
		if err != nil {
			return nil, err
		}
		for _, f := range strings.Fields(s) {
			list = append(list, f)
		}
	}
	parts := make([]string, len(list))
	for i, item := range list {
		parts[i] = convert.ToString(item)
	}
	return strings.Join(parts, args.String("delimiter")), nil
}

func listLength(v any, _ Args) (any, error) {
	if list, ok := asList(v); ok {
		return int64(len(list)), nil
	}
	return int64(0), nil
}

func listUnique(list []any, _ Args) (any, error) {
	seen := make(map[string]bool, len(list))
	out := make([]any, 0, len(list))
	for _, item := range list {
		key := fmt.Sprintf("%T:%v", item, item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out, nil
}

// listSort orders numerically when every item is a number, else as text.
func listSort(list []any, args Args) (any, error) {
	out := append([]any(nil), list...)
	numeric := true
	for _, item := range out {
		if !convert.IsNumber(item) {
			numeric = false
			break
		}
	}

	less := func(i, j int) bool {
		return convert.ToString(out[i]) < convert.ToString(out[j])
	}
	if numeric {
		less = func(i, j int) bool {
			a, _ := convert.ToFloat(out[i])
			b, _ := convert.ToFloat(out[j])
			return a < b
		}
	}
	if args.Bool("reverse") {
		forward := less
		less = func(i, j int) bool { return forward(j, i) }
	}
	sort.SliceStable(out, less)
	return out, nil
}

func registerList(r *Registry) {
	for _, op := range []Operation{
		{Name: "join", Description: "Join a list with delimiter", Params: []Param{{Name: "delimiter", Kind: KindString, Default: ","}}, Fn: join},
		{Name: "list_length", Description: "Number of items, 0 for non-lists", HandlesNil: true, Fn: listLength},
		{Name: "list_first", Description: "First item", Fn: listOp(func(list []any, _ Args) (any, error) {
			if len(list) == 0 {
				return nil, nil
			}
			return list[0], nil
		})},
		{Name: "list_last", Description: "Last item", Fn: listOp(func(list []any, _ Args) (any, error) {
			if len(list) == 0 {
				return nil, nil
			}
			return list[len(list)-1], nil
		})},
		{Name: "list_unique", Description: "Drop repeated items, keeping first occurrences", Fn: listOp(listUnique)},
		{Name: "list_sort", Description: "Sort items", Params: []Param{{Name: "reverse", Kind: KindBool, Default: false}}, Fn: listOp(listSort)},
	} {
		op.Category = CategoryList
		r.MustRegister(op)
	}
}
