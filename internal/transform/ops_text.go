package transform

import (
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// asText returns v as a string. Scalars are rendered; lists and maps are not text.
func asText(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []any, []string, map[string]any:
		return "", convErr(v, "not a text value")
	default:
		return convert.ToString(v), nil
	}
}

// textOp lifts a string function to an operation. Lists are mapped element-wise.
func textOp(fn func(s string, args Args) string) Func {
	return func(v any, args Args) (any, error) {
		switch list := v.(type) {
		case []any:
			out := make([]any, len(list))
			for i, item := range list {
				if item == nil {
					continue
				}
				s, err := asText(item)
				if err != nil {
					return nil, err
				}
				out[i] = fn(s, args)
			}
			return out, nil
		case []string:
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = fn(item, args)
			}
			return out, nil
		}
		s, err := asText(v)
		if err != nil {
			return nil, err
		}
		return fn(s, args), nil
	}
}

func simple(fn func(string) string) Func {
	return textOp(func(s string, _ Args) string { return fn(s) })
}

var (
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	nonDigitRegex    = regexp.MustCompile(`[^0-9]`)
	nonLetterRegex   = regexp.MustCompile(`[^a-zA-Z]`)
	specialCharRegex = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	slugStripRegex   = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugDashRegex    = regexp.MustCompile(`[\s_-]+`)
	camelBoundary1   = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelBoundary2   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	wordSepRegex     = regexp.MustCompile(`[\s\-]+`)
	pyGroupRegex     = regexp.MustCompile(`\\(\d+)`)
)

var accentStripper = sync.Pool{
	New: func() any {
		return xtransform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

func removeAccents(s string) string {
	t := accentStripper.Get().(xtransform.Transformer)
	defer accentStripper.Put(t)
	t.Reset()
	out, _, err := xtransform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	atStart := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			atStart = true
			b.WriteRune(r)
		case atStart:
			b.WriteRune(unicode.ToUpper(r))
			atStart = false
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func removeWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func reverse(s string) string {
	rs := []rune(s)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}

func slugify(s string) string {
	s = strings.ToLower(removeAccents(strings.TrimSpace(s)))
	s = slugStripRegex.ReplaceAllString(s, "")
	s = slugDashRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func toSnakeCase(s string) string {
	s = wordSepRegex.ReplaceAllString(strings.TrimSpace(s), "_")
	s = camelBoundary1.ReplaceAllString(s, "${1}_${2}")
	s = camelBoundary2.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
}

func toCamelCase(s string) string {
	words := splitWords(s)
	for i, w := range words {
		if i == 0 {
			words[i] = strings.ToLower(w)
			continue
		}
		words[i] = capitalize(w)
	}
	return strings.Join(words, "")
}

func toPascalCase(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, "")
}

func strip(s string, args Args) string {
	if chars := args.String("chars"); chars != "" {
		return strings.Trim(s, chars)
	}
	return strings.TrimSpace(s)
}

func lstrip(s string, args Args) string {
	if chars := args.String("chars"); chars != "" {
		return strings.TrimLeft(s, chars)
	}
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

func rstrip(s string, args Args) string {
	if chars := args.String("chars"); chars != "" {
		return strings.TrimRight(s, chars)
	}
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

func truncate(s string, args Args) string {
	limit := args.Int("max_length")
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	suffix := []rune(args.String("suffix"))
	if limit <= len(suffix) {
		return string(rs[:limit])
	}
	return string(rs[:limit-len(suffix)]) + string(suffix)
}

func fillRune(args Args) string {
	r, size := utf8.DecodeRuneInString(args.String("fill_char"))
	if size == 0 {
		return " "
	}
	return string(r)
}

func padLeft(s string, args Args) string {
	if n := args.Int("width") - utf8.RuneCountInString(s); n > 0 {
		return strings.Repeat(fillRune(args), n) + s
	}
	return s
}

func padRight(s string, args Args) string {
	if n := args.Int("width") - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(fillRune(args), n)
	}
	return s
}

// zeroPad left-fills with zeros after any sign, like str.zfill.
func zeroPad(s string, args Args) string {
	width := args.Int("value")
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", n) + s
}

func replaceRegex(s string, args Args) string {
	re, _ := args.Value("compiled").(*regexp.Regexp)
	if re == nil {
		return s
	}
	return re.ReplaceAllString(s, args.String("repl"))
}

func prepareRegex(args Args) (Args, error) {
	pattern := args.String("pattern")
	re, err := regexp.Compile(pattern)
	if err != nil {
		return args, paramErr("pattern", "invalid regular expression: %v", err)
	}
	// \1 style group references are rewritten to ${1}.
	repl := pyGroupRegex.ReplaceAllString(args.String("repl"), "$${$1}")
	return args.With("compiled", re).With("repl", repl), nil
}

func splitText(v any, args Args) (any, error) {
	s, err := asText(v)
	if err != nil {
		return nil, err
	}
	var parts []string
	if sep := args.String("delimiter"); sep == "" {
		parts = strings.Fields(s)
	} else {
		parts = strings.Split(s, sep)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func splitComma(v any, _ Args) (any, error) {
	s, err := asText(v)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, ",")
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out, nil
}

func countOp(count func(string) int) Func {
	return func(v any, _ Args) (any, error) {
		if v == nil {
			return int64(0), nil
		}
		s, err := asText(v)
		if err != nil {
			return nil, err
		}
		return int64(count(s)), nil
	}
}

func registerText(r *Registry) {
	str := func(name string, def any) Param { return Param{Name: name, Kind: KindString, Default: def} }
	num := func(name string, def int64) Param { return Param{Name: name, Kind: KindInt, Default: def} }

	for _, op := range []Operation{
		{Name: "strip", Description: "Remove leading and trailing whitespace, or the given characters", Params: []Param{str("chars", nil)}, Fn: textOp(strip)},
		{Name: "lstrip", Description: "Remove leading whitespace, or the given characters", Params: []Param{str("chars", nil)}, Fn: textOp(lstrip)},
		{Name: "rstrip", Description: "Remove trailing whitespace, or the given characters", Params: []Param{str("chars", nil)}, Fn: textOp(rstrip)},
		{Name: "uppercase", Description: "Convert to upper case", Fn: simple(strings.ToUpper)},
		{Name: "lowercase", Description: "Convert to lower case", Fn: simple(strings.ToLower)},
		{Name: "title_case", Description: "Capitalize the first letter of each word, lower case the rest", Fn: simple(titleCase)},
		{Name: "capitalize", Description: "Capitalize the first letter, lower case the rest", Fn: simple(capitalize)},
		{Name: "remove_whitespace", Description: "Remove all whitespace", Fn: simple(removeWhitespace)},
		{Name: "truncate", Description: "Shorten to max_length runes, ending with suffix", Params: []Param{num("max_length", 100), str("suffix", "...")}, Fn: textOp(truncate),
			Prepare: func(a Args) (Args, error) {
				if a.Int("max_length") < 0 {
					return a, paramErr("max_length", "must not be negative")
				}
				return a, nil
			}},
		{Name: "pad_left", Description: "Left pad to width with fill_char", Params: []Param{num("width", 10), str("fill_char", "0")}, Fn: textOp(padLeft)},
		{Name: "pad_right", Description: "Right pad to width with fill_char", Params: []Param{num("width", 10), str("fill_char", " ")}, Fn: textOp(padRight)},
		{Name: "zero_padding", Description: "Left pad with zeros to the given width, keeping the sign first", Params: []Param{{Name: "value", Kind: KindInt, Required: true}}, Fn: textOp(zeroPad)},
		{Name: "prefix", Description: "Prepend text", Params: []Param{str("prefix_str", "-")}, Fn: textOp(func(s string, a Args) string { return a.String("prefix_str") + s })},
		{Name: "suffix", Description: "Append text", Params: []Param{str("suffix_str", "_")}, Fn: textOp(func(s string, a Args) string { return s + a.String("suffix_str") })},
		{Name: "replace", Description: "Replace every occurrence of old with new", Params: []Param{{Name: "old", Kind: KindString, Required: true}, str("new", "")},
			Fn: textOp(func(s string, a Args) string { return strings.ReplaceAll(s, a.String("old"), a.String("new")) })},
		{Name: "replace_regex", Description: "Replace regular expression matches with repl", Params: []Param{{Name: "pattern", Kind: KindString, Required: true}, str("repl", "")},
			Prepare: prepareRegex, Fn: textOp(replaceRegex)},
		{Name: "slugify", Description: "Lower case, ASCII, dash separated", Fn: simple(slugify)},
		{Name: "clean_html", Description: "Remove HTML tags and unescape entities", Fn: simple(func(s string) string {
			return html.UnescapeString(htmlTagRegex.ReplaceAllString(s, ""))
		})},
		{Name: "clean_upc", Description: "Keep digits only", Fn: simple(func(s string) string { return nonDigitRegex.ReplaceAllString(s, "") })},
		{Name: "extract_numbers", Description: "Keep digits only", Fn: simple(func(s string) string { return nonDigitRegex.ReplaceAllString(s, "") })},
		{Name: "extract_letters", Description: "Keep ASCII letters only", Fn: simple(func(s string) string { return nonLetterRegex.ReplaceAllString(s, "") })},
		{Name: "reverse_string", Description: "Reverse the characters", Fn: simple(reverse)},
		{Name: "remove_special_chars", Description: "Keep ASCII letters, digits and whitespace", Fn: simple(func(s string) string { return specialCharRegex.ReplaceAllString(s, "") })},
		{Name: "remove_accents", Description: "Strip diacritics", Fn: simple(removeAccents)},
		{Name: "to_snake_case", Description: "Convert to snake_case", Fn: simple(toSnakeCase)},
		{Name: "to_camel_case", Description: "Convert to camelCase", Fn: simple(toCamelCase)},
		{Name: "to_pascal_case", Description: "Convert to PascalCase", Fn: simple(toPascalCase)},
		{Name: "normalize_us_state", Description: "Map a US state name or code to its two-letter code", Fn: simple(normalizeUsState)},
		{Name: "split", Description: "Split into a list on delimiter, or on whitespace when empty", Params: []Param{str("delimiter", ",")}, Fn: splitText},
		{Name: "split_comma", Description: "Split on commas and trim each item", Fn: splitComma},
		{Name: "word_count", Description: "Number of whitespace separated words", HandlesNil: true, Fn: countOp(func(s string) int { return len(strings.Fields(s)) })},
		{Name: "char_count", Description: "Number of characters", HandlesNil: true, Fn: countOp(utf8.RuneCountInString)},
	} {
		op.Category = CategoryText
		r.MustRegister(op)
	}
}
