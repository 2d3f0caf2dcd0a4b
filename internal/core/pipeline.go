package core

import (
	"errors"
	"fmt"
	"maps"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/store"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

// ErrorPolicy decides what happens to a row when a field's transform fails.
type ErrorPolicy string

const (
	// PolicyFallback keeps the field's input value and marks the row invalid.
	PolicyFallback ErrorPolicy = "fallback"
	// PolicyReject drops the whole row.
	PolicyReject ErrorPolicy = "reject"
)

// ParsePolicy maps a config value to a policy. Empty means fallback.
func ParsePolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyFallback:
		return PolicyFallback, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown transform error policy %q: want fallback or reject", s)
}

// TransformRuleType tags issues raised by a failed transform rather than a
// validation rule.
const TransformRuleType = "transform"

// RowOutcome is the result of pushing one row through a template.
type RowOutcome struct {
	Index  int
	Input  map[string]any
	Output map[string]any
	Status store.RowStatus

	// Issues maps a field to its transform and validation failures.
	Issues map[string][]store.Issue

	// Reason is set for rejected rows.
	Reason string
}

// ErrorCount is the number of issues across all fields.
func (o RowOutcome) ErrorCount() int {
	n := 0
	for _, list := range o.Issues {
		n += len(list)
	}
	return n
}

// Report converts the issues to a validation row report.
func (o RowOutcome) Report() validation.RowReport {
	report := validation.RowReport{}
	for field, list := range o.Issues {
		for _, is := range list {
			report[field] = append(report[field], validation.Error{Field: is.Field, RuleType: is.RuleType, Message: is.Message})
		}
	}
	return report
}

// CompiledTemplate is a template with every attribute's pipeline and
// rules resolved. It is immutable and safe for concurrent use.
type CompiledTemplate struct {
	tmpl      *Template
	programs  []*transform.Program
	validator *validation.Validator
	policy    ErrorPolicy
}

// Compile resolves the template against engine.
func Compile(t *Template, engine *transform.Engine, policy ErrorPolicy) (*CompiledTemplate, error) {
	if engine == nil {
		engine = transform.DefaultEngine()
	}
	if err := t.Validate(engine); err != nil {
		return nil, err
	}

	c := &CompiledTemplate{tmpl: t, programs: make([]*transform.Program, len(t.Attributes)), policy: policy}
	fieldRules := make(map[string][]validation.Rule, len(t.Attributes))
	for i, a := range t.Attributes {
		p, err := a.Pipeline()
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		if c.programs[i], err = engine.Compile(p); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		fieldRules[a.Name] = a.Rules()
	}

	v, err := validation.NewValidator(fieldRules)
	if err != nil {
		return nil, err
	}
	c.validator = v
	return c, nil
}

// Template returns the source template.
func (c *CompiledTemplate) Template() *Template { return c.tmpl }

// Process maps, transforms and validates one raw row.
func (c *CompiledTemplate) Process(index int, raw map[string]any) RowOutcome {
	input := c.tmpl.MapRow(raw)
	out := RowOutcome{
		Index:  index,
		Input:  input,
		Output: make(map[string]any, len(input)),
		Status: store.RowValid,
		Issues: make(map[string][]store.Issue),
	}

	for i, a := range c.tmpl.Attributes {
		v, err := c.programs[i].Run(input[a.Name])
		if err == nil {
			out.Output[a.Name] = v
			continue
		}
		if errors.Is(err, transform.ErrRejectRow) || c.policy == PolicyReject {
			out.Status = store.RowRejected
			out.Reason = fmt.Sprintf("field %q: %v", a.Name, err)
			out.Output = maps.Clone(input)
			out.Issues = map[string][]store.Issue{
				a.Name: {{Field: a.Name, RuleType: TransformRuleType, Message: err.Error()}},
			}
			return out
		}
		out.Output[a.Name] = input[a.Name]
		out.Issues[a.Name] = append(out.Issues[a.Name], store.Issue{Field: a.Name, RuleType: TransformRuleType, Message: err.Error()})
	}

	for field, errs := range c.validator.ValidateRow(out.Output) {
		for _, e := range errs {
			out.Issues[field] = append(out.Issues[field], store.Issue{Field: field, RuleType: e.RuleType, Message: e.Message})
		}
	}
	if len(out.Issues) > 0 {
		out.Status = store.RowInvalid
	}
	return out
}
