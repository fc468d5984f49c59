package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Contributor supplies a set of services to the tree.
// Implementations must be safe for concurrent use: the model may enumerate
// several contributors at once.
type Contributor interface {
	// Name identifies the contributor class. It is the key used by events.
	Name() string

	// Descriptor describes the contributor's own root node.
	Descriptor() domain.Descriptor

	// Services lists the values currently contributed, in contribution order.
	Services(ctx context.Context) ([]domain.Value, error)

	// ServiceDescriptor describes one contributed value.
	ServiceDescriptor(v domain.Value) (domain.Descriptor, error)
}

// Grouping is implemented by contributors that arrange services under groups.
type Grouping interface {
	// Groups returns the group path of a value, outermost first.
	// An empty path places the value directly under its parent.
	Groups(v domain.Value) ([]domain.Value, error)

	// GroupDescriptor describes a grouping key.
	GroupDescriptor(key domain.Value) (domain.Descriptor, error)
}

// Ordered is implemented by contributors that impose an order on their services.
// Compare returns a negative number when a sorts before b.
type Ordered interface {
	Compare(a, b domain.Value) int
}

// Lazy marks contributors whose children are expensive to fetch.
// Searches visit lazy subtrees only after everything already loaded.
type Lazy interface {
	Lazy() bool
}

// Resolver turns an ID received over the wire back into a contributed value.
type Resolver interface {
	Resolve(id string) (domain.Value, bool)
}

// Provider is implemented by service values that contribute children of their own.
// Provide returns nil when the value currently hosts nothing.
type Provider interface {
	domain.Value
	Provide() Contributor
}

// ProviderOf returns the contributor hosted by v, or nil.
func ProviderOf(v domain.Value) Contributor {
	if p, ok := v.(Provider); ok {
		return p.Provide()
	}
	return nil
}

// GroupFunc resolves the group path of a value.
type GroupFunc func(domain.Value) ([]domain.Value, error)

// CompareFunc orders two sibling values.
type CompareFunc func(a, b domain.Value) int

// Capabilities is the tagged capability set of a contributor.
// Absent capabilities are left nil/false.
type Capabilities struct {
	Groups          GroupFunc
	GroupDescriptor func(domain.Value) (domain.Descriptor, error)
	Compare         CompareFunc
	Lazy            bool
	Resolve         func(string) (domain.Value, bool)
}

// Capable is implemented by contributors that declare their capability set
// directly instead of through the optional interfaces.
type Capable interface {
	Capabilities() Capabilities
}

// CapabilitiesOf inspects a contributor once and returns its capability set.
func CapabilitiesOf(c Contributor) Capabilities {
	var caps Capabilities
	if c == nil {
		return caps
	}
	if d, ok := c.(Capable); ok {
		return d.Capabilities()
	}
	if g, ok := c.(Grouping); ok {
		caps.Groups = g.Groups
		caps.GroupDescriptor = g.GroupDescriptor
	}
	if o, ok := c.(Ordered); ok {
		caps.Compare = o.Compare
	}
	if l, ok := c.(Lazy); ok {
		caps.Lazy = l.Lazy()
	}
	if r, ok := c.(Resolver); ok {
		caps.Resolve = r.Resolve
	}
	return caps
}

// Grouping reports whether the contributor arranges services under groups.
func (c Capabilities) Grouping() bool {
	return c.Groups != nil
}

// Ordered reports whether the contributor imposes a sibling order.
func (c Capabilities) Ordered() bool {
	return c.Compare != nil
}
