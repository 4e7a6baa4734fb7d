package schema

import (
	"fmt"
	"sync"
)

// Registry owns every model of a schema. It is written once per model at
// definition time and read for reverse foreign-key discovery.
type Registry struct {
	models map[string]*Model
	order  []string
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Define creates a model and registers it
func (r *Registry) Define(name string) (*Model, error) {
	m := NewModel(name)
	if err := r.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MustDefine is Define that panics on a duplicate name
func (r *Registry) MustDefine(name string) *Model {
	m, err := r.Define(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Register adds a model. A name can only be registered once.
func (r *Registry) Register(m *Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("model %s is already registered", m.Name)
	}
	if m.registry != nil && m.registry != r {
		return fmt.Errorf("model %s belongs to another registry", m.Name)
	}

	m.registry = r
	r.models[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// Get retrieves a model by name
func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, exists := r.models[name]
	return m, exists
}

// All returns the models in registration order
func (r *Registry) All() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Model, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.models[name])
	}
	return result
}

// List returns the model names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

// Exists checks if a model is registered
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.models[name]
	return exists
}

// Dependant is a field of Owner referencing another model
type Dependant struct {
	Owner *Model
	Field *Field
}

// Dependants returns every field in the registry that references target,
// grouped by owner in registration order.
func (r *Registry) Dependants(target *Model) []Dependant {
	deps := make([]Dependant, 0)
	for _, m := range r.All() {
		for _, f := range m.Fields {
			if f.ForeignKey == target {
				deps = append(deps, Dependant{Owner: m, Field: f})
			}
		}
	}
	return deps
}
