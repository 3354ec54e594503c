package state

import (
	"fmt"
	"sync"
)

// Registration binds a query name to a descriptor. The query name is the
// external identity of the state; the descriptor's own name is only a label
// for the underlying state instance.
type Registration struct {
	Name string
	Desc *Descriptor
}

// DuplicateRegistrationError reports two queryable state registrations under
// the same name within one job. The name is embedded in the message so the
// collision can be diagnosed from the job failure cause alone.
type DuplicateRegistrationError struct {
	Name string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("duplicate queryable state registration: %q", e.Name)
}

// Registry tracks the queryable state registrations of one job. Names are
// unique; a duplicate is rejected rather than shadowing the first
// registration.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register binds a descriptor under a query name. Returns a
// *DuplicateRegistrationError if the name is already taken.
func (r *Registry) Register(name string, desc *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return &DuplicateRegistrationError{Name: name}
	}
	r.byName[name] = desc
	return nil
}

// Lookup returns the descriptor registered under a query name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byName[name]
	return desc, ok
}

// Names returns the registered query names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}
