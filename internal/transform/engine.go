package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Program is a pipeline whose steps are bound to operations and arguments.
// A Program is immutable and safe for concurrent use.
type Program struct {
	pipeline Pipeline
	steps    []boundStep
}

type boundStep struct {
	op   *Operation
	args Args
}

// Len returns the number of steps.
func (p *Program) Len() int { return len(p.steps) }

// Pipeline returns the source pipeline.
func (p *Program) Pipeline() Pipeline { return p.pipeline }

// Run folds the steps over v. The first failing step aborts the fold.
func (p *Program) Run(v any) (any, error) {
	for i, s := range p.steps {
		if v == nil && !s.op.HandlesNil {
			continue
		}
		out, err := s.op.Fn(v, s.args)
		if err != nil {
			return nil, stepError(err, s.op.Name, i)
		}
		v = out
	}
	return v, nil
}

func stepError(err error, name string, index int) error {
	var ce *ConversionError
	if errors.As(err, &ce) {
		if ce.Operation == "" {
			ce.Operation = name
		}
		if ce.Step < 0 {
			ce.Step = index
		}
		return ce
	}
	if errors.Is(err, ErrRejectRow) {
		return err
	}
	return &ConversionError{Operation: name, Step: index, Reason: err.Error()}
}

// maxCachedPrograms bounds the program cache. Rule strings may come from
// clients, so a full cache is dropped and refilled.
const maxCachedPrograms = 1024

// Engine compiles rules against a registry and caches compiled programs
// per rule string.
type Engine struct {
	registry *Registry

	mu      sync.RWMutex
	cache   map[string]*Program
	version uint64
}

// NewEngine returns an engine bound to r. A nil r means the default registry.
func NewEngine(r *Registry) *Engine {
	if r == nil {
		r = defaultRegistry
	}
	return &Engine{registry: r, cache: make(map[string]*Program)}
}

// Registry returns the registry the engine resolves names against.
func (e *Engine) Registry() *Registry { return e.registry }

// Compile resolves every step of p. Unknown names yield a *LookupError
// carrying the step index; argument problems yield a *ParamError.
func (e *Engine) Compile(p Pipeline) (*Program, error) {
	prog := &Program{pipeline: p, steps: make([]boundStep, len(p))}
	for i, step := range p {
		op, err := e.registry.Get(step.Operation)
		if err != nil {
			return nil, &LookupError{Name: step.Operation, Step: i}
		}
		args, err := bind(op, step, i)
		if err != nil {
			return nil, err
		}
		prog.steps[i] = boundStep{op: op, args: args}
	}
	return prog, nil
}

// CompileRule parses and compiles a rule string, reusing cached programs.
// The cache is dropped whenever the registry changes or it holds
// maxCachedPrograms entries.
func (e *Engine) CompileRule(rule string) (*Program, error) {
	version := e.registry.Version()

	e.mu.RLock()
	prog, ok := e.cache[rule]
	stale := e.version != version
	e.mu.RUnlock()
	if ok && !stale {
		return prog, nil
	}

	pipeline, err := Parse(rule)
	if err != nil {
		return nil, err
	}
	prog, err = e.Compile(pipeline)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.version != version || len(e.cache) >= maxCachedPrograms {
		e.cache = make(map[string]*Program)
		e.version = version
	}
	e.cache[rule] = prog
	e.mu.Unlock()
	return prog, nil
}

// Transform applies a rule string to v.
func (e *Engine) Transform(v any, rule string) (any, error) {
	prog, err := e.CompileRule(rule)
	if err != nil {
		return nil, err
	}
	return prog.Run(v)
}

// Apply applies a pre-built pipeline to v.
func (e *Engine) Apply(v any, p Pipeline) (any, error) {
	prog, err := e.Compile(p)
	if err != nil {
		return nil, err
	}
	return prog.Run(v)
}

// BulkApply transforms values with rules. A single rule is applied to every
// value, a single value is expanded across every rule, otherwise the lengths
// must match. The first failure aborts and is returned with its index.
func (e *Engine) BulkApply(values []any, rules []string) ([]any, error) {
	switch {
	case len(rules) == 1 && len(values) > 1:
		rules = repeat(rules[0], len(values))
	case len(values) == 1 && len(rules) > 1:
		values = repeatValue(values[0], len(rules))
	case len(values) != len(rules):
		return nil, fmt.Errorf("bulk apply: %d values, %d rules: %w", len(values), len(rules), ErrLengthMismatch)
	}

	out := make([]any, len(values))
	for i, v := range values {
		if strings.TrimSpace(rules[i]) == "" {
			out[i] = v
			continue
		}
		res, err := e.Transform(v, rules[i])
		if err != nil {
			return nil, fmt.Errorf("bulk apply: value %d: %w", i, err)
		}
		out[i] = res
	}
	return out, nil
}

// FieldFailure records a field a bulk run could not transform.
type FieldFailure struct {
	Row   int
	Field string
	Err   error
}

// BulkError lists the field failures of BulkApplyPipeRules.
type BulkError struct {
	Failures []FieldFailure
}

func (e *BulkError) Error() string {
	if len(e.Failures) == 1 {
		f := e.Failures[0]
		return fmt.Sprintf("row %d field %q: %v", f.Row, f.Field, f.Err)
	}
	return fmt.Sprintf("%d fields failed to transform (first: row %d field %q: %v)",
		len(e.Failures), e.Failures[0].Row, e.Failures[0].Field, e.Failures[0].Err)
}

// Unwrap exposes every failure to errors.Is and errors.As.
func (e *BulkError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// BulkApplyPipeRules transforms the fields named in fieldRules across rows.
//
// Every rule is compiled before any row is touched, so a malformed rule or
// unknown operation fails the call without output. Fields absent from a row
// are skipped. Rows are processed in order into new maps; a field whose
// program fails keeps its input value in the output and is listed in the
// returned *BulkError, leaving the fallback decision to the caller.
func (e *Engine) BulkApplyPipeRules(rows []map[string]any, fieldRules map[string]string) ([]map[string]any, error) {
	fields := make([]string, 0, len(fieldRules))
	progs := make(map[string]*Program, len(fieldRules))
	for field, rule := range fieldRules {
		prog, err := e.CompileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		fields = append(fields, field)
		progs[field] = prog
	}
	sort.Strings(fields)

	var failures []FieldFailure
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		next := make(map[string]any, len(row))
		for k, v := range row {
			next[k] = v
		}
		for _, field := range fields {
			v, ok := row[field]
			if !ok {
				continue
			}
			res, err := progs[field].Run(v)
			if err != nil {
				failures = append(failures, FieldFailure{Row: i, Field: field, Err: err})
				continue
			}
			next[field] = res
		}
		out[i] = next
	}

	if len(failures) > 0 {
		return out, &BulkError{Failures: failures}
	}
	return out, nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func repeatValue(v any, n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

var defaultEngine = NewEngine(defaultRegistry)

// DefaultEngine returns the engine bound to the default registry.
func DefaultEngine() *Engine { return defaultEngine }

// Transform applies a rule string to v using the default engine.
func Transform(v any, rule string) (any, error) { return defaultEngine.Transform(v, rule) }

// ApplyTransformations applies a pipeline to v using the default engine.
func ApplyTransformations(v any, p Pipeline) (any, error) { return defaultEngine.Apply(v, p) }

// BulkApplyPipeRules runs fieldRules over rows using the default engine.
func BulkApplyPipeRules(rows []map[string]any, fieldRules map[string]string) ([]map[string]any, error) {
	return defaultEngine.BulkApplyPipeRules(rows, fieldRules)
}
