package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/convert"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/validation"
)

var (
	// ErrTemplateNotFound is returned when no template is registered under an id.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidTemplate wraps every structural problem found in a template.
	ErrInvalidTemplate = errors.New("invalid template")
)

// Attribute data types. They add an implicit validation rule.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeEmail   = "email"
	TypeURL     = "url"
)

// Attribute maps one output field from a source column through a
// transform pipeline and a set of validation rules.
type Attribute struct {
	// Name is the output field name.
	Name string `json:"name" yaml:"name" toml:"name"`

	// Column is the source column. Matching is case and whitespace
	// insensitive. Empty means Name.
	Column string `json:"column,omitempty" yaml:"column,omitempty" toml:"column"`

	DataType string `json:"data_type,omitempty" yaml:"data_type,omitempty" toml:"data_type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty" toml:"required"`

	// Transform is a rule string such as "strip + uppercase".
	Transform string `json:"transform,omitempty" yaml:"transform,omitempty" toml:"transform"`

	// Transformations run after Transform, in order.
	Transformations []transform.Step `json:"transformations,omitempty" yaml:"transformations,omitempty" toml:"transformations"`

	Validations []validation.Rule `json:"validations,omitempty" yaml:"validations,omitempty" toml:"validations"`

	// Default replaces an absent source value before transforms run.
	Default any `json:"default,omitempty" yaml:"default,omitempty" toml:"default"`
}

// SourceColumn returns the column the attribute reads from.
func (a Attribute) SourceColumn() string {
	if a.Column != "" {
		return a.Column
	}
	return a.Name
}

// Pipeline returns the combined transform pipeline of the attribute.
func (a Attribute) Pipeline() (transform.Pipeline, error) {
	p, err := transform.Parse(a.Transform)
	if err != nil {
		return nil, err
	}
	return append(p, a.Transformations...), nil
}

// Rules returns the attribute's validation rules, with the implicit
// required and data type rules first.
func (a Attribute) Rules() []validation.Rule {
	var rules []validation.Rule
	hasRequired := false
	for _, r := range a.Validations {
		if r.RuleType == "required" {
			hasRequired = true
		}
	}
	if a.Required && !hasRequired {
		rules = append(rules, validation.Rule{RuleType: "required", FieldName: a.Name})
	}
	if rt := dataTypeRule(a.DataType); rt != "" {
		rules = append(rules, validation.Rule{RuleType: rt, FieldName: a.Name})
	}
	for _, r := range a.Validations {
		r.FieldName = a.Name
		rules = append(rules, r)
	}
	return rules
}

func dataTypeRule(dataType string) string {
	switch strings.ToLower(dataType) {
	case TypeNumber, "float", "decimal":
		return "numeric"
	case TypeInteger, "int":
		return "integer"
	case TypeBoolean, "bool":
		return "boolean"
	case TypeDate, "datetime":
		return "date"
	case TypeEmail:
		return "email"
	case TypeURL:
		return "url"
	}
	return ""
}

// Template describes how rows for one channel are shaped and checked.
type Template struct {
	ID          string      `json:"id" yaml:"id" toml:"id"`
	Channel     string      `json:"channel,omitempty" yaml:"channel,omitempty" toml:"channel"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty" toml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Attributes  []Attribute `json:"attributes" yaml:"attributes" toml:"attributes"`

	// Key names the attribute whose output identifies a product in the
	// completeness cache. Optional.
	Key string `json:"key,omitempty" yaml:"key,omitempty" toml:"key"`

	// Source is the file the template was loaded from, if any.
	Source string `json:"source,omitempty" yaml:"-" toml:"-"`
}

// Validate reports every structural problem: missing id, duplicate or empty
// attribute names, unknown data types, malformed rules, unknown operations
// and unknown rule types.
func (t *Template) Validate(engine *transform.Engine) error {
	var errs []error
	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if len(t.Attributes) == 0 {
		errs = append(errs, errors.New("at least one attribute is required"))
	}
	if t.Key != "" && !slices.Contains(t.Columns(), t.Key) {
		errs = append(errs, fmt.Errorf("key %q is not an attribute", t.Key))
	}

	seen := make(map[string]bool, len(t.Attributes))
	for i, a := range t.Attributes {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("attribute %d: name is required", i))
			continue
		}
		if seen[a.Name] {
			errs = append(errs, fmt.Errorf("attribute %q: duplicate name", a.Name))
		}
		seen[a.Name] = true

		if a.DataType != "" && a.DataType != TypeString && dataTypeRule(a.DataType) == "" {
			errs = append(errs, fmt.Errorf("attribute %q: unknown data_type %q", a.Name, a.DataType))
		}
		p, err := a.Pipeline()
		if err != nil {
			errs = append(errs, fmt.Errorf("attribute %q: %w", a.Name, err))
		} else if _, err := engine.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("attribute %q: %w", a.Name, err))
		}
		if _, err := validation.NewValidator(map[string][]validation.Rule{a.Name: a.Rules()}); err != nil {
			errs = append(errs, fmt.Errorf("attribute %q: %w", a.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalidTemplate, t.ID, errors.Join(errs...))
	}
	return nil
}

// Columns returns the output field names in attribute order.
func (t *Template) Columns() []string {
	cols := make([]string, len(t.Attributes))
	for i, a := range t.Attributes {
		cols[i] = a.Name
	}
	return cols
}

// MapRow picks each attribute's source value out of a raw row. Column
// lookup ignores case and surrounding whitespace. Absent values take the
// attribute default.
func (t *Template) MapRow(raw map[string]any) map[string]any {
	index := make(map[string]string, len(raw))
	for k := range raw {
		index[convert.HeaderKey(k)] = k
	}

	out := make(map[string]any, len(t.Attributes))
	for _, a := range t.Attributes {
		var v any
		if key, ok := index[convert.HeaderKey(a.SourceColumn())]; ok {
			v = raw[key]
		}
		if convert.IsEmpty(v) && a.Default != nil {
			v = a.Default
		}
		out[a.Name] = v
	}
	return out
}

// MissingColumns lists required attributes whose source column is absent
// from header.
func (t *Template) MissingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[convert.HeaderKey(h)] = true
	}
	var missing []string
	for _, a := range t.Attributes {
		if a.Required && a.Default == nil && !present[convert.HeaderKey(a.SourceColumn())] {
			missing = append(missing, a.SourceColumn())
		}
	}
	return missing
}
