package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/adapters/memory"
)

// ErrInvalid is returned by Build when the description is inconsistent.
var ErrInvalid = errors.New("invalid contributor description")

// Builder describes one contributor.
type Builder struct {
	name      string
	text      string
	grouped   bool
	textOrder bool
	lazy      bool
	groups    []group
	services  []*ServiceBuilder
}

type group struct {
	key    string
	text   string
	weight *int
}

// New starts the description of a contributor.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Text sets the label of the contributor root.
func (b *Builder) Text(text string) *Builder {
	b.text = text
	return b
}

// Grouped arranges services under the groups named with ServiceBuilder.In.
func (b *Builder) Grouped() *Builder {
	b.grouped = true
	return b
}

// OrderByText sorts services by natural comparison of their text.
func (b *Builder) OrderByText() *Builder {
	b.textOrder = true
	return b
}

// Lazy marks the contributor as expensive; searches visit it last.
func (b *Builder) Lazy() *Builder {
	b.lazy = true
	return b
}

// Group declares the label of a grouping key. An optional weight pins the
// group before unweighted siblings, heavier first.
func (b *Builder) Group(key, text string, weight ...int) *Builder {
	g := group{key: key, text: text}
	if len(weight) > 0 {
		w := weight[0]
		g.weight = &w
	}
	b.groups = append(b.groups, g)
	return b
}

// Service adds a service and returns its builder.
// If the key was already added, the existing builder is returned.
func (b *Builder) Service(key string) *ServiceBuilder {
	for _, s := range b.services {
		if s.key == key {
			return s
		}
	}
	s := &ServiceBuilder{key: key, builder: b}
	b.services = append(b.services, s)
	return s
}

// Build creates the contributor and, recursively, the contributors hosted by
// its services.
func (b *Builder) Build() (*memory.Contributor, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: contributor without name", ErrInvalid)
	}

	var opts []memory.Option
	if b.text != "" {
		opts = append(opts, memory.WithText(b.text))
	}
	if b.grouped {
		opts = append(opts, memory.WithGrouping())
	}
	if b.textOrder {
		opts = append(opts, memory.WithTextOrder())
	}
	if b.lazy {
		opts = append(opts, memory.WithLazy())
	}
	c := memory.New(b.name, opts...)

	for _, g := range b.groups {
		if !b.grouped {
			return nil, fmt.Errorf("%w: %s declares group %q but is not grouped", ErrInvalid, b.name, g.key)
		}
		c.SetGroup(g.key, g.text, g.weight)
	}
	for _, s := range b.services {
		svc, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		if len(svc.Groups) > 0 && !b.grouped {
			return nil, fmt.Errorf("%w: %s places %q in a group but is not grouped", ErrInvalid, b.name, svc.Key)
		}
		c.Add(svc)
	}
	return c, nil
}

// MustBuild is Build for static descriptions; it panics on error.
func (b *Builder) MustBuild() *memory.Contributor {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
