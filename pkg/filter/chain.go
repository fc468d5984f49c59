package filter

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownFilter is returned when a parent filter is not part of the chain.
var ErrUnknownFilter = errors.New("filter not registered in chain")

// Predicate reports whether an item must be hidden.
type Predicate[T any] func(T) bool

// Filter is one link of a Chain.
type Filter[T any] struct {
	id     string
	pred   Predicate[T]
	parent *Filter[T] // guarded by the chain lock
}

// ID returns the filter identifier.
func (f *Filter[T]) ID() string {
	return f.id
}

// Chain holds the registered filters in registration order.
type Chain[T any] struct {
	mu      sync.RWMutex
	filters []*Filter[T]
}

// New creates an empty chain.
func New[T any]() *Chain[T] {
	return &Chain[T]{}
}

// Add registers a filter. A nil predicate hides nothing. parent may be nil;
// otherwise it must already be registered.
func (c *Chain[T]) Add(pred Predicate[T], parent *Filter[T]) (*Filter[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if parent != nil && !slices.Contains(c.filters, parent) {
		return nil, ErrUnknownFilter
	}
	f := &Filter[T]{id: uuid.NewString(), pred: pred, parent: parent}
	c.filters = append(c.filters, f)
	return f, nil
}

// Remove unregisters f and re-parents its children onto f's parent.
// It reports whether f was registered.
func (c *Chain[T]) Remove(f *Filter[T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.Index(c.filters, f)
	if i < 0 {
		return false
	}
	c.filters = slices.Delete(c.filters, i, i+1)
	for _, other := range c.filters {
		if other.parent == f {
			other.parent = f.parent
		}
	}
	f.parent = nil
	return true
}

// Parent returns the current parent of f, or nil.
func (c *Chain[T]) Parent(f *Filter[T]) *Filter[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return f.parent
}

// Len returns the number of registered filters.
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filters)
}

// Apply returns the items visible to the owner of self. self and its
// ancestors are skipped; every other predicate may hide an item. self may be
// nil, in which case every filter applies. The input slice is not modified.
func (c *Chain[T]) Apply(items []T, self *Filter[T]) []T {
	active := c.active(self)
	out := make([]T, 0, len(items))
	for _, it := range items {
		if !hidden(active, it) {
			out = append(out, it)
		}
	}
	return out
}

// Visible reports whether a single item survives Apply.
func (c *Chain[T]) Visible(item T, self *Filter[T]) bool {
	return !hidden(c.active(self), item)
}

func (c *Chain[T]) active(self *Filter[T]) []Predicate[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	skip := make(map[*Filter[T]]struct{})
	for f := self; f != nil; f = f.parent {
		skip[f] = struct{}{}
	}
	preds := make([]Predicate[T], 0, len(c.filters))
	for _, f := range c.filters {
		if _, ok := skip[f]; ok || f.pred == nil {
			continue
		}
		preds = append(preds, f.pred)
	}
	return preds
}

func hidden[T any](preds []Predicate[T], item T) bool {
	for _, p := range preds {
		if p(item) {
			return true
		}
	}
	return false
}
