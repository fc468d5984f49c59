package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Kind classifies a tree node.
type Kind int

const (
	// KindContributor is the root node of a contributor.
	KindContributor Kind = iota
	// KindService wraps a contributed value.
	KindService
	// KindGroup is a synthetic node created for a grouping key.
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindContributor:
		return "contributor"
	case KindService:
		return "service"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

type valueBox struct{ v domain.Value }

// contributorValue is the Value of a contributor root: its name.
type contributorValue string

func (c contributorValue) ID() string { return string(c) }

// Item is a node of the services tree.
//
// Child lists are immutable slices swapped atomically, so readers may iterate
// a snapshot while the executor mutates the tree.
type Item struct {
	model       *Model
	kind        Kind
	contributor ports.Contributor
	caps        ports.Capabilities

	value    atomic.Pointer[valueBox]
	parent   atomic.Pointer[Item]
	children atomic.Pointer[[]*Item]
	state    atomic.Int32
	removed  atomic.Bool
	// structure is bumped by StructureChanged; a load started under an older
	// value is discarded.
	structure atomic.Uint64

	mu         sync.Mutex
	descriptor *domain.Descriptor // nil when stale
	generation uint64             // bumped by invalidate
	pending    *Future            // load in flight
}

func (m *Model) newItem(kind Kind, v domain.Value, c ports.Contributor, caps ports.Capabilities) *Item {
	it := &Item{
		model:       m,
		kind:        kind,
		contributor: c,
		caps:        caps,
	}
	it.value.Store(&valueBox{v: v})
	empty := []*Item{}
	it.children.Store(&empty)
	if kind == KindService {
		it.state.Store(int32(domain.Uninitialized))
	} else {
		it.state.Store(int32(domain.Loaded))
	}
	return it
}

// newService creates a service item. Values hosting no contributor are leaves
// and start out loaded.
func (m *Model) newService(v domain.Value, c ports.Contributor, caps ports.Capabilities) *Item {
	it := m.newItem(KindService, v, c, caps)
	if ports.ProviderOf(v) == nil {
		it.state.Store(int32(domain.Loaded))
	}
	return it
}

func (m *Model) newRoot(c ports.Contributor) *Item {
	return m.newItem(KindContributor, contributorValue(c.Name()), c, ports.CapabilitiesOf(c))
}

// Value returns the domain value (or grouping key) held by the item.
// Contributor roots hold a value whose ID is the contributor name.
func (it *Item) Value() domain.Value {
	return it.value.Load().v
}

// ID is shorthand for Value().ID().
func (it *Item) ID() string {
	return it.Value().ID()
}

// Kind returns the node kind.
func (it *Item) Kind() Kind {
	return it.kind
}

// Parent returns the owning item, or nil for roots.
func (it *Item) Parent() *Item {
	return it.parent.Load()
}

// Contributor returns the contributor that supplied the value directly.
func (it *Item) Contributor() ports.Contributor {
	return it.contributor
}

// RootContributor returns the contributor owning this branch of the tree.
func (it *Item) RootContributor() ports.Contributor {
	cur := it
	for p := cur.Parent(); p != nil; p = cur.Parent() {
		cur = p
	}
	return cur.contributor
}

// Children returns a snapshot of the loaded children. It never triggers a load;
// use Model.Children for that.
func (it *Item) Children() []*Item {
	return *it.children.Load()
}

// LoadState reports whether the children were fetched.
func (it *Item) LoadState() domain.LoadState {
	return domain.LoadState(it.state.Load())
}

// IsRemoved reports whether the item or one of its ancestors was removed.
func (it *Item) IsRemoved() bool {
	for cur := it; cur != nil; cur = cur.Parent() {
		if cur.removed.Load() {
			return true
		}
	}
	return false
}

// Equal compares by value ID. Group nodes additionally compare their parents,
// so the same key under two parents yields distinct groups.
func (it *Item) Equal(other *Item) bool {
	if it == other {
		return true
	}
	if it == nil || other == nil || it.kind != other.kind {
		return false
	}
	if it.ID() != other.ID() {
		return false
	}
	if it.kind == KindGroup {
		return it.Parent().Equal(other.Parent())
	}
	return true
}

// Descriptor returns the cached presentation data, computing it on first read
// after an invalidation. Provider failures yield a descriptor carrying the ID.
func (it *Item) Descriptor() domain.Descriptor {
	it.mu.Lock()
	if it.descriptor != nil {
		d := *it.descriptor
		it.mu.Unlock()
		return d
	}
	gen := it.generation
	it.mu.Unlock()

	d := it.computeDescriptor()

	it.mu.Lock()
	if it.generation == gen {
		it.descriptor = &d
	}
	it.mu.Unlock()
	return d
}

// Text is the descriptor text, falling back to the ID.
func (it *Item) Text() string {
	return it.Descriptor().TextOr(it.ID())
}

func (it *Item) computeDescriptor() domain.Descriptor {
	v := it.Value()
	var (
		d   domain.Descriptor
		err error
	)
	switch it.kind {
	case KindContributor:
		err = guard(func() error {
			d = it.contributor.Descriptor()
			return nil
		})
	case KindGroup:
		if it.caps.GroupDescriptor == nil {
			return domain.Descriptor{Text: v.ID()}
		}
		err = guard(func() error {
			var gerr error
			d, gerr = it.caps.GroupDescriptor(v)
			return gerr
		})
	default:
		err = guard(func() error {
			var serr error
			d, serr = it.contributor.ServiceDescriptor(v)
			return serr
		})
	}
	if err != nil {
		if it.model != nil {
			it.model.providerFailure(context.Background(), it.contributor.Name(), "descriptor", err)
		}
		return domain.Descriptor{Text: v.ID()}
	}
	if d.Text == "" {
		d.Text = v.ID()
	}
	return d
}

func (it *Item) invalidate() {
	it.mu.Lock()
	it.descriptor = nil
	it.generation++
	it.mu.Unlock()
}

func (it *Item) setValue(v domain.Value) {
	if v == nil {
		return
	}
	if _, isRef := v.(domain.Ref); isRef {
		return
	}
	it.value.Store(&valueBox{v: v})
}

func (it *Item) setChildren(children []*Item) {
	it.children.Store(&children)
}

// clone copies a group with a new child list. The copy keeps the cached
// descriptor; children are re-pointed by the caller.
func (it *Item) clone(children []*Item) *Item {
	c := it.model.newItem(it.kind, it.Value(), it.contributor, it.caps)
	c.parent.Store(it.Parent())
	it.mu.Lock()
	if it.descriptor != nil {
		d := *it.descriptor
		c.descriptor = &d
	}
	it.mu.Unlock()
	c.setChildren(children)
	return c
}

// provider returns the contributor hosted by a service item, or nil.
func (it *Item) provider() ports.Contributor {
	if it.kind != KindService {
		return nil
	}
	return ports.ProviderOf(it.Value())
}

// lazy reports whether loading the item's children is deferred by searches.
func (it *Item) lazy() bool {
	p := it.provider()
	return p != nil && ports.CapabilitiesOf(p).Lazy
}

func (it *Item) String() string {
	return it.kind.String() + ":" + it.ID()
}
