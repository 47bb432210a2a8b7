package operators

import (
	"sort"
)

// Registry maps operator names to operators. A layered registry consults its own
// table first and its parent second; registering on a layer never touches the parent.
type Registry struct {
	parent    *Registry
	operators map[string]Operator
}

func NewRegistry() *Registry {
	return &Registry{operators: make(map[string]Operator)}
}

var defaultRegistry = newDefaultRegistry()

// Defaults returns an empty layer over the process-wide default operators, so the
// caller may register on it freely.
func Defaults() *Registry {
	return defaultRegistry.Layer(nil)
}

func (r *Registry) Register(name string, op Operator) {
	r.operators[name] = op
}

func (r *Registry) Lookup(name string) (Operator, bool) {
	for reg := r; reg != nil; reg = reg.parent {
		if op, ok := reg.operators[name]; ok {
			return op, true
		}
	}
	return nil, false
}

// Overrides reports whether name is defined above the bottom layer.
func (r *Registry) Overrides(name string) bool {
	for reg := r; reg != nil && reg.parent != nil; reg = reg.parent {
		if _, ok := reg.operators[name]; ok {
			return true
		}
	}
	return false
}

// Layer returns a registry that resolves overrides before r.
func (r *Registry) Layer(overrides map[string]Operator) *Registry {
	layer := &Registry{parent: r, operators: make(map[string]Operator, len(overrides))}
	for name, op := range overrides {
		layer.operators[name] = op
	}
	return layer
}

// Names lists every resolvable operator name in order.
func (r *Registry) Names() []string {
	seen := make(map[string]bool)
	for reg := r; reg != nil; reg = reg.parent {
		for name := range reg.operators {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
