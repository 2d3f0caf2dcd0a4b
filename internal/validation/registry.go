package validation

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Check evaluates one compiled rule. It returns false and a message on failure.
type Check func(v any) (ok bool, message string)

// RuleType compiles rule parameters into a Check.
// Compile is called once per rule, so parameters are validated up front.
type RuleType struct {
	Name        string
	Description string
	Compile     func(p Params) (Check, error)
}

var ruleTypeName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

var (
	ruleTypes   = make(map[string]RuleType)
	ruleTypesMu sync.RWMutex
)

// RegisterRuleType adds a rule type, replacing any previous one with the same name.
func RegisterRuleType(rt RuleType) error {
	if !ruleTypeName.MatchString(rt.Name) {
		return fmt.Errorf("register rule type: invalid name %q", rt.Name)
	}
	if rt.Compile == nil {
		return fmt.Errorf("register rule type %q: nil compile function", rt.Name)
	}

	ruleTypesMu.Lock()
	defer ruleTypesMu.Unlock()
	ruleTypes[rt.Name] = rt
	return nil
}

func mustRegisterRuleType(rt RuleType) {
	if err := RegisterRuleType(rt); err != nil {
		panic(err)
	}
}

// LookupRuleType returns a rule type by name.
// Returns false if not found.
func LookupRuleType(name string) (RuleType, bool) {
	ruleTypesMu.RLock()
	defer ruleTypesMu.RUnlock()

	rt, ok := ruleTypes[name]
	return rt, ok
}

// RuleTypes returns all registered rule types, sorted by name.
func RuleTypes() []RuleType {
	ruleTypesMu.RLock()
	defer ruleTypesMu.RUnlock()

	result := make([]RuleType, 0, len(ruleTypes))
	for _, rt := range ruleTypes {
		result = append(result, rt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Evaluate runs a single rule type as a predicate.
func Evaluate(ruleType string, v any, params map[string]any) (bool, error) {
	check, err := compileRule(Rule{RuleType: ruleType, Params: params})
	if err != nil {
		return false, err
	}
	ok, _ := check(v)
	return ok, nil
}

// compileRule resolves a rule's type and compiles its parameters.
// A custom message on the rule replaces the default one.
func compileRule(r Rule) (Check, error) {
	rt, ok := LookupRuleType(r.RuleType)
	if !ok {
		return nil, &UnknownRuleError{RuleType: r.RuleType, Field: r.FieldName}
	}
	check, err := rt.Compile(Params(r.Params))
	if err != nil {
		return nil, &RuleError{RuleType: r.RuleType, Field: r.FieldName, Reason: err.Error()}
	}
	if r.Message == "" {
		return check, nil
	}
	return func(v any) (bool, string) {
		if ok, _ := check(v); ok {
			return true, ""
		}
		return false, r.Message
	}, nil
}
