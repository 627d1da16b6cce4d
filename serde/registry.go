package serde

import (
	"fmt"
	"sync"

	"github.com/c360/streampilot/errors"
)

// Registry holds the set of known key serdes plus a designated default.
// Names are unique; entries are immutable after registration.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]Entry
	defaultName string
}

// NewRegistry creates a registry pre-populated with the built-in serdes.
// The string serde is the default until ChangeDefault is called.
func NewRegistry() *Registry {
	r := &Registry{
		entries:     make(map[string]Entry),
		defaultName: StringSerde,
	}
	for _, e := range []Entry{
		stringEntry(),
		longEntry(),
		intEntry(),
		float64Entry(),
		uuidEntry(),
		bytesEntry(),
	} {
		r.entries[e.Name] = e
	}
	return r
}

// Register adds a custom serde entry. Names must be unique.
func (r *Registry) Register(entry Entry) error {
	if entry.Name == "" || entry.Serializer == nil || entry.Deserializer == nil || entry.KeyType == nil {
		return errors.WrapInvalid(
			fmt.Errorf("serde entry %q is incomplete", entry.Name),
			"Registry", "Register", "validate entry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("serde %q already registered", entry.Name),
			"Registry", "Register", "check uniqueness")
	}
	r.entries[entry.Name] = entry
	return nil
}

// Default returns the configured default key serde.
func (r *Registry) Default() Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[r.defaultName]
}

// ChangeDefault designates an already-registered serde as the default.
func (r *Registry) ChangeDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("%w: %q", errors.ErrUnknownSerde, name)
	}
	r.defaultName = name
	return nil
}

// ByName looks up a serde entry by codec name.
func (r *Registry) ByName(name string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return Entry{}, fmt.Errorf("%w: %q", errors.ErrUnknownSerde, name)
	}
	return entry, nil
}

// Names lists the registered codec names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
