package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/demystify-systems/edge-channel-suite-sdk-sub001/internal/transform"
)

var (
	registry   = make(map[string]*Template)
	registryMu sync.RWMutex
)

// Register validates a template against the default operation registry and
// adds it. Registering an id twice is an error.
func Register(t *Template) error {
	if err := t.Validate(transform.DefaultEngine()); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[t.ID]; exists {
		return fmt.Errorf("template already registered: %s", t.ID)
	}
	registry[t.ID] = t
	return nil
}

// MustRegister is Register for templates compiled into a binary.
// Panics on error.
func MustRegister(t *Template) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// Get returns a template by id.
// Returns false if not found.
func Get(id string) (*Template, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[id]
	return t, ok
}

// Lookup is Get with an ErrTemplateNotFound error.
func Lookup(id string) (*Template, error) {
	if t, ok := Get(id); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
}

// All returns all registered templates.
// Sorted by channel then by id for consistent ordering.
func All() []*Template {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]*Template, 0, len(registry))
	for _, t := range registry {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Channel != result[j].Channel {
			return result[i].Channel < result[j].Channel
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// ByChannel returns all templates for a specific channel.
// Sorted by id for consistent ordering.
func ByChannel(channel string) []*Template {
	registryMu.RLock()
	defer registryMu.RUnlock()

	var result []*Template
	for _, t := range registry {
		if t.Channel == channel {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Channels returns all unique channel names.
// Sorted alphabetically.
func Channels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, t := range registry {
		seen[t.Channel] = true
	}

	channels := make([]string, 0, len(seen))
	for c := range seen {
		channels = append(channels, c)
	}

	sort.Strings(channels)
	return channels
}

// TemplateCount returns the number of registered templates.
func TemplateCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered templates.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Template)
}
