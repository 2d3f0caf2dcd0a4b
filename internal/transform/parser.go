package transform

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
)

// Step is one operation invocation within a pipeline.
// Args are positional literals; Named carries structured arguments from
// template files. Raw keeps the literal text of each positional argument.
type Step struct {
	Operation string         `json:"operation" yaml:"operation" toml:"operation"`
	Args      []any          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Named     map[string]any `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Raw       []string       `json:"-" yaml:"-" toml:"-"`
}

// Pipeline is an ordered list of steps applied left to right.
type Pipeline []Step

// String renders the positional form of the pipeline as a rule string.
// Named arguments have no rule string form and are omitted.
func (p Pipeline) String() string {
	parts := make([]string, len(p))
	for i, step := range p {
		var b strings.Builder
		b.WriteString(step.Operation)
		for j, arg := range step.Args {
			text := convert.ToString(arg)
			if j < len(step.Raw) {
				text = step.Raw[j]
			}
			b.WriteByte('|')
			b.WriteString(escapeLiteral(text))
		}
		parts[i] = b.String()
	}
	return strings.Join(parts, " + ")
}

var stepNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Parse turns a rule string into a Pipeline.
//
// Grammar: step ('+' step)*, step := name ('|' literal)*. Whitespace around
// tokens is trimmed. Inside a step, \+ \| and \\ escape the delimiters.
// Literals become int64, else float64, else string. A blank rule yields an
// empty pipeline. Operation names are not checked against any registry.
func Parse(rule string) (Pipeline, error) {
	if strings.TrimSpace(rule) == "" {
		return Pipeline{}, nil
	}

	var (
		pipeline  Pipeline
		tokens    []string
		cur       strings.Builder
		stepStart int
	)

	finish := func(end int) error {
		tokens = append(tokens, cur.String())
		cur.Reset()
		step, err := parseStep(rule, stepStart, end, tokens)
		tokens = nil
		if err != nil {
			return err
		}
		pipeline = append(pipeline, step)
		return nil
	}

	for i := 0; i < len(rule); i++ {
		c := rule[i]
		switch {
		case c == '\\' && i+1 < len(rule) && strings.IndexByte(`+|\`, rule[i+1]) >= 0:
			i++
			cur.WriteByte(rule[i])
		case c == '|':
			tokens = append(tokens, cur.String())
			cur.Reset()
		case c == '+':
			if err := finish(i); err != nil {
				return nil, err
			}
			stepStart = i + 1
		default:
			cur.WriteByte(c)
		}
	}
	if err := finish(len(rule)); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// MustParse is Parse that panics on error.
func MustParse(rule string) Pipeline {
	p, err := Parse(rule)
	if err != nil {
		panic(err)
	}
	return p
}

func parseStep(rule string, start, end int, tokens []string) (Step, error) {
	fragment := strings.TrimSpace(rule[start:end])
	fail := func(reason string) error {
		return &ParseError{Rule: rule, Fragment: fragment, Offset: start, Reason: reason}
	}

	name := strings.TrimSpace(tokens[0])
	switch {
	case fragment == "":
		return Step{}, fail("empty step")
	case name == "":
		return Step{}, fail("missing operation name")
	case !stepNameRegex.MatchString(name):
		return Step{}, fail("invalid operation name")
	}

	step := Step{Operation: name}
	if len(tokens) > 1 {
		step.Args = make([]any, 0, len(tokens)-1)
		step.Raw = make([]string, 0, len(tokens)-1)
		for _, tok := range tokens[1:] {
			tok = strings.TrimSpace(tok)
			step.Args = append(step.Args, parseLiteral(tok))
			step.Raw = append(step.Raw, tok)
		}
	}
	return step, nil
}

// parseLiteral returns the most specific type for tok: int64, float64, string.
func parseLiteral(tok string) any {
	if tok == "" {
		return ""
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return tok
}

func escapeLiteral(s string) string {
	if !strings.ContainsAny(s, `+|\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(`+|\`, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
