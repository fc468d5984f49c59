package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Registry manages the ordered set of available contributors.
// Order matters: contributor roots appear in the tree in registry order.
type Registry struct {
	mu           sync.RWMutex
	contributors []ports.Contributor
}

// NewRegistry creates a registry holding the given contributors in order.
// Contributors with duplicate names are rejected.
func NewRegistry(contributors ...ports.Contributor) (*Registry, error) {
	r := &Registry{}
	for _, c := range contributors {
		if err := r.Add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a contributor to the end of the registry.
func (r *Registry) Add(c ports.Contributor) error {
	return r.Insert(-1, c)
}

// Insert places a contributor at index. A negative or out of range index appends.
func (r *Registry) Insert(index int, c ports.Contributor) error {
	if c == nil {
		return fmt.Errorf("registry: nil contributor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(c.Name()) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateContributor, c.Name())
	}
	if index < 0 || index > len(r.contributors) {
		index = len(r.contributors)
	}
	r.contributors = slices.Insert(r.contributors, index, c)
	return nil
}

// Replace swaps the contributor registered under c.Name(), keeping its position.
// It appends c when no contributor has that name.
func (r *Registry) Replace(c ports.Contributor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOf(c.Name()); i >= 0 {
		r.contributors[i] = c
		return
	}
	r.contributors = append(r.contributors, c)
}

// Remove unregisters a contributor by name. It reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(name)
	if i < 0 {
		return false
	}
	r.contributors = slices.Delete(r.contributors, i, i+1)
	return true
}

// Lookup finds a contributor by name.
func (r *Registry) Lookup(name string) (ports.Contributor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(name); i >= 0 {
		return r.contributors[i], true
	}
	return nil, false
}

// IndexOf returns the registry position of a contributor, or -1.
func (r *Registry) IndexOf(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name)
}

// List returns a snapshot of the registered contributors in order.
func (r *Registry) List() []ports.Contributor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.contributors)
}

// Names returns the registered contributor names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.contributors))
	for i, c := range r.contributors {
		names[i] = c.Name()
	}
	return names
}

func (r *Registry) indexOf(name string) int {
	for i, c := range r.contributors {
		if c.Name() == name {
			return i
		}
	}
	return -1
}
