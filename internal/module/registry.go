package module

import (
	"sort"
	"strings"
	"sync"
)

// Binding is a registry entry: a command together with the name of the
// module that registered it.
type Binding struct {
	Command
	Module string
}

// Registry maps command names to handlers across every registered
// module.  Lookups take a read lock; Register validates the whole
// descriptor first and then merges it under the write lock, so a
// concurrent lookup sees either the old or the fully merged state.
//
// Collisions resolve by last registration: a later module overrides a
// command of the same name from an earlier one, and within a single
// descriptor a later command overrides an earlier duplicate.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Binding
	modules  []Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Binding)}
}

// Register merges every command of d into the registry.  Nothing is
// registered if d is invalid.  Registering a module name again replaces
// that module: its entry in Modules, and every command it still owns.
// Commands of that name another module overrode are left alone.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, b := range r.commands {
		if strings.EqualFold(b.Module, d.Name) {
			delete(r.commands, name)
		}
	}
	for _, c := range d.Commands {
		r.commands[normalize(c.Name)] = Binding{Command: c, Module: d.Name}
	}

	for i, m := range r.modules {
		if strings.EqualFold(m.Name, d.Name) {
			r.modules[i] = d
			return nil
		}
	}
	r.modules = append(r.modules, d)
	return nil
}

// Lookup finds the binding for a command name, ignoring case.
func (r *Registry) Lookup(name string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.commands[normalize(name)]
	return b, ok
}

// Modules returns the registered module descriptors in registration
// order.
func (r *Registry) Modules() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.modules))
	copy(out, r.modules)
	return out
}

// Commands returns every registered command name (as declared by its
// module), sorted case-insensitively.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for _, b := range r.commands {
		out = append(out, b.Name)
	}
	sort.Slice(out, func(i, j int) bool { return normalize(out[i]) < normalize(out[j]) })
	return out
}

// Len returns the number of distinct command names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
