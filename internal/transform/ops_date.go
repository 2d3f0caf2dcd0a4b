package transform

import (
	"strings"
	"time"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

func asTime(v any) (time.Time, error) {
	t, ok := convert.ToTime(v)
	if !ok {
		return time.Time{}, convErr(v, "not a date")
	}
	return t, nil
}

func dateOp(fn func(t time.Time, args Args) any) Func {
	return func(v any, args Args) (any, error) {
		t, err := asTime(v)
		if err != nil {
			return nil, err
		}
		return fn(t, args), nil
	}
}

// dateOnly drops the time of day. Unparseable text keeps its first word.
func dateOnly(v any, _ Args) (any, error) {
	if t, ok := convert.ToTime(v); ok {
		return t.Format(convert.DateLayout), nil
	}
	s, err := asText(v)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if head, _, found := strings.Cut(s, " "); found {
		return head, nil
	}
	return s, nil
}

var strftimeCodes = map[byte]string{
	'Y': "2006", 'y': "06", 'm': "01", 'd': "02", 'e': "_2",
	'H': "15", 'I': "03", 'M': "04", 'S': "05", 'p': "PM",
	'B': "January", 'b': "Jan", 'A': "Monday", 'a': "Mon",
	'j': "002", 'Z': "MST", 'z': "-0700", '%': "%",
}

// goLayout converts a strftime format into a Go time layout.
// Text without % directives is treated as a Go layout already.
func goLayout(format string) (string, error) {
	if !strings.Contains(format, "%") {
		return format, nil
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			b.WriteByte(format[i])
			continue
		}
		if i+1 >= len(format) {
			return "", paramErr("format_string", "dangling %%")
		}
		i++
		code, ok := strftimeCodes[format[i]]
		if !ok {
			return "", paramErr("format_string", "unsupported directive %%%c", format[i])
		}
		b.WriteString(code)
	}
	return b.String(), nil
}

func weekdayIndex(t time.Time) int64 {
	// Monday is 0.
	return int64((t.Weekday() + 6) % 7)
}

func registerDate(r *Registry) {
	days := []Param{{Name: "days", Kind: KindInt, Default: 0}}

	for _, op := range []Operation{
		{Name: "parse_date", Description: "Parse text into a date", Fn: dateOp(func(t time.Time, _ Args) any { return t })},
		{Name: "date_only", Description: "Render as YYYY-MM-DD", Fn: dateOnly},
		{Name: "format_date", Description: "Render with a strftime or Go layout", Params: []Param{{Name: "format_string", Kind: KindString, Default: "%Y-%m-%d"}},
			Prepare: func(a Args) (Args, error) {
				layout, err := goLayout(a.String("format_string"))
				if err != nil {
					return a, err
				}
				return a.With("layout", layout), nil
			},
			Fn: dateOp(func(t time.Time, a Args) any { return t.Format(a.String("layout")) })},
		{Name: "add_days", Description: "Add days", Params: days, Fn: dateOp(func(t time.Time, a Args) any { return t.AddDate(0, 0, a.Int("days")) })},
		{Name: "subtract_days", Description: "Subtract days", Params: days, Fn: dateOp(func(t time.Time, a Args) any { return t.AddDate(0, 0, -a.Int("days")) })},
		{Name: "day_of_week", Description: "Weekday number, Monday is 0", Fn: dateOp(func(t time.Time, _ Args) any { return weekdayIndex(t) })},
		{Name: "day_name", Description: "Weekday name", Fn: dateOp(func(t time.Time, _ Args) any { return t.Weekday().String() })},
		{Name: "month_name", Description: "Month name", Fn: dateOp(func(t time.Time, _ Args) any { return t.Month().String() })},
		{Name: "year", Description: "Year number", Fn: dateOp(func(t time.Time, _ Args) any { return int64(t.Year()) })},
		{Name: "month", Description: "Month number", Fn: dateOp(func(t time.Time, _ Args) any { return int64(t.Month()) })},
		{Name: "day", Description: "Day of month", Fn: dateOp(func(t time.Time, _ Args) any { return int64(t.Day()) })},
	} {
		op.Category = CategoryDate
		r.MustRegister(op)
	}
}
