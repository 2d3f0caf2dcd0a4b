package transform

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Category groups operations for discovery. Lookup never requires it.
type Category string

const (
	CategoryText        Category = "text"
	CategoryNumeric     Category = "numeric"
	CategoryDate        Category = "date"
	CategoryList        Category = "list"
	CategoryConditional Category = "conditional"
	CategoryUtility     Category = "utility"
)

// Func is the signature every operation implements.
type Func func(v any, args Args) (any, error)

// Operation is a named, pure value transformation.
type Operation struct {
	Name        string
	Category    Category
	Description string
	Params      []Param

	// Variadic collects arguments beyond Params into Args.Rest.
	Variadic bool

	// HandlesNil lets nil reach Fn. Otherwise nil passes through untouched.
	HandlesNil bool

	// Prepare runs once when a step is compiled. It may reject the bound
	// arguments or attach precomputed state (compiled patterns, lookup maps).
	Prepare func(args Args) (Args, error)

	Fn Func
}

var opNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Registry maps operation names to operations.
// Safe for concurrent use; registration normally happens at startup.
type Registry struct {
	mu      sync.RWMutex
	ops     map[string]*Operation
	version atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// NewBuiltinRegistry returns a registry holding the built-in catalogue.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds an operation, replacing any previous one with the same name.
func (r *Registry) Register(op Operation) error {
	if !opNameRegex.MatchString(op.Name) {
		return fmt.Errorf("register operation: invalid name %q", op.Name)
	}
	if op.Fn == nil {
		return fmt.Errorf("register operation %q: nil function", op.Name)
	}
	for i, p := range op.Params {
		if p.Name == "" {
			return fmt.Errorf("register operation %q: parameter %d has no name", op.Name, i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := op
	r.ops[op.Name] = &stored
	r.version.Add(1)
	return nil
}

// MustRegister is Register that panics on error. Used for built-ins.
func (r *Registry) MustRegister(op Operation) {
	if err := r.Register(op); err != nil {
		panic(err)
	}
}

// Has reports whether name resolves to an operation.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Get returns the operation for a bare or category-qualified name
// ("strip" or "text.strip"). Missing names return a *LookupError.
func (r *Registry) Get(name string) (*Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if op, ok := r.ops[name]; ok {
		return op, nil
	}
	if cat, bare, ok := strings.Cut(name, "."); ok {
		if op, found := r.ops[bare]; found && string(op.Category) == cat {
			return op, nil
		}
	}
	return nil, &LookupError{Name: name, Step: -1}
}

// List returns all registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns all operations sorted by category then name.
func (r *Registry) Operations() []Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Operation, 0, len(r.ops))
	for _, op := range r.ops {
		result = append(result, *op)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ByCategory returns the operations of one category, sorted by name.
func (r *Registry) ByCategory(cat Category) []Operation {
	var result []Operation
	for _, op := range r.Operations() {
		if op.Category == cat {
			result = append(result, op)
		}
	}
	return result
}

// Categories returns the categories in use, sorted.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Category]bool)
	for _, op := range r.ops {
		seen[op.Category] = true
	}

	cats := make([]Category, 0, len(seen))
	for c := range seen {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}

// Version changes every time an operation is registered.
func (r *Registry) Version() uint64 {
	return r.version.Load()
}

var defaultRegistry = NewBuiltinRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds an operation to the default registry.
func Register(op Operation) error { return defaultRegistry.Register(op) }

// Has reports whether the default registry knows name.
func Has(name string) bool { return defaultRegistry.Has(name) }

// Get looks name up in the default registry.
func Get(name string) (*Operation, error) { return defaultRegistry.Get(name) }

// List returns the names in the default registry.
func List() []string { return defaultRegistry.List() }
