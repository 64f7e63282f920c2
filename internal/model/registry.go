package model

import (
	"sort"
	"sync"
)

// Registry maps device names to their models so the control device can
// reach the model of the device it controls.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register stores m under its name, replacing any earlier model.
func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name] = m
}

func (r *Registry) Get(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
