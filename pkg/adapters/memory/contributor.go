package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Service is a value held by an in-memory Contributor.
// Children, when set, makes the service host a nested contributor.
type Service struct {
	Key      string
	Text     string
	Groups   []string
	Children *Contributor
}

// ID implements domain.Value.
func (s *Service) ID() string { return s.Key }

// Provide implements ports.Provider.
func (s *Service) Provide() ports.Contributor {
	if s.Children == nil {
		return nil
	}
	return s.Children
}

// Group is an unweighted grouping key.
type Group struct {
	Key  string
	Text string
}

// ID implements domain.Value.
func (g *Group) ID() string { return g.Key }

// WeightedGroup is a grouping key with an explicit sort weight.
type WeightedGroup struct {
	Group
	W int
}

// Weight implements domain.Weighted.
func (g *WeightedGroup) Weight() int { return g.W }

// Contributor implements ports.Contributor in memory.
// Safe for concurrent use. Mutation helpers return the event that describes
// the change so callers can hand it to the model.
type Contributor struct {
	mu         sync.RWMutex
	name       string
	descriptor domain.Descriptor
	services   []*Service
	groups     map[string]domain.Value
	compare    ports.CompareFunc
	grouping   bool
	byText     bool
	lazy       bool
	failure    error
	panics     bool
}

// Option configures a Contributor.
type Option func(*Contributor)

// WithText sets the text of the contributor's root node.
func WithText(text string) Option {
	return func(c *Contributor) {
		c.descriptor.Text = text
	}
}

// WithGrouping makes the contributor arrange services by their Groups path.
func WithGrouping() Option {
	return func(c *Contributor) {
		c.grouping = true
	}
}

// WithCompare sets a sibling comparator.
func WithCompare(fn ports.CompareFunc) Option {
	return func(c *Contributor) {
		c.compare = fn
	}
}

// WithTextOrder orders services by natural comparison of their text.
func WithTextOrder() Option {
	return func(c *Contributor) {
		c.byText = true
	}
}

// WithLazy marks the contributor as lazy.
func WithLazy() Option {
	return func(c *Contributor) {
		c.lazy = true
	}
}

// New creates an empty in-memory contributor.
func New(name string, opts ...Option) *Contributor {
	c := &Contributor{
		name:       name,
		descriptor: domain.Descriptor{Text: name},
		groups:     make(map[string]domain.Value),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.byText {
		c.compare = c.ByText()
	}
	return c
}

// ByText orders services by natural comparison of their text.
func (c *Contributor) ByText() ports.CompareFunc {
	return func(a, b domain.Value) int {
		return domain.NaturalCompare(c.text(a), c.text(b))
	}
}

// Name implements ports.Contributor.
func (c *Contributor) Name() string { return c.name }

// Descriptor implements ports.Contributor.
func (c *Contributor) Descriptor() domain.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descriptor
}

// Capabilities implements ports.Capable.
func (c *Contributor) Capabilities() ports.Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()

	caps := ports.Capabilities{
		Compare: c.compare,
		Lazy:    c.lazy,
		Resolve: c.Resolve,
	}
	if c.grouping {
		caps.Groups = c.Groups
		caps.GroupDescriptor = c.GroupDescriptor
	}
	return caps
}

// Services implements ports.Contributor.
func (c *Contributor) Services(ctx context.Context) ([]domain.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.panics {
		panic(fmt.Sprintf("contributor %s exploded", c.name))
	}
	if c.failure != nil {
		return nil, c.failure
	}
	out := make([]domain.Value, len(c.services))
	for i, s := range c.services {
		out[i] = s
	}
	return out, nil
}

// ServiceDescriptor implements ports.Contributor.
func (c *Contributor) ServiceDescriptor(v domain.Value) (domain.Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.find(v.ID())
	if s == nil {
		return domain.Descriptor{}, fmt.Errorf("unknown service %q", v.ID())
	}
	return domain.Descriptor{Text: textOf(s)}, nil
}

// Groups implements ports.Grouping.
func (c *Contributor) Groups(v domain.Value) ([]domain.Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.find(v.ID())
	if s == nil {
		return nil, nil
	}
	path := make([]domain.Value, 0, len(s.Groups))
	for _, key := range s.Groups {
		path = append(path, c.groupValue(key))
	}
	return path, nil
}

// GroupDescriptor implements ports.Grouping.
func (c *Contributor) GroupDescriptor(key domain.Value) (domain.Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch g := c.groupValue(key.ID()).(type) {
	case *WeightedGroup:
		return domain.Descriptor{Text: g.Text}, nil
	case *Group:
		return domain.Descriptor{Text: g.Text}, nil
	}
	return domain.Descriptor{Text: key.ID()}, nil
}

// Resolve implements ports.Resolver.
func (c *Contributor) Resolve(id string) (domain.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s := c.find(id); s != nil {
		return s, true
	}
	if g, ok := c.groups[id]; ok {
		return g, true
	}
	return nil, false
}

// Service returns a contributed service by ID.
func (c *Contributor) Service(id string) (*Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.find(id)
	return s, s != nil
}

// Add appends a top-level service and returns the matching Added event.
func (c *Contributor) Add(s *Service) domain.Event {
	c.mu.Lock()
	c.services = append(c.services, s)
	c.mu.Unlock()
	return domain.Added(s, nil, c.name)
}

// AddChild appends a service to the nested contributor of parentID and
// returns the Added event naming the parent. root is the contributor class
// that owns the branch (usually c.Name()).
func (c *Contributor) AddChild(parentID string, child *Service, root string) (domain.Event, error) {
	c.mu.Lock()
	parent := c.find(parentID)
	if parent == nil {
		c.mu.Unlock()
		return domain.Event{}, fmt.Errorf("unknown service %q", parentID)
	}
	if parent.Children == nil {
		parent.Children = New(c.name + "/" + parentID)
	}
	nested := parent.Children
	c.mu.Unlock()

	nested.Add(child)
	return domain.Added(child, parent, root), nil
}

// Remove drops a service and returns the matching Removed event.
func (c *Contributor) Remove(id string) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target domain.Value = domain.Ref(id)
	c.services = slices.DeleteFunc(c.services, func(s *Service) bool {
		if s.Key == id {
			target = s
			return true
		}
		return false
	})
	return domain.Removed(target, c.name)
}

// Rename changes a service's text and returns the Changed event.
func (c *Contributor) Rename(id, text string) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target domain.Value = domain.Ref(id)
	if s := c.find(id); s != nil {
		s.Text = text
		target = s
	}
	return domain.Changed(target, c.name)
}

// Regroup moves a service to a new group path and returns the GroupChanged event.
func (c *Contributor) Regroup(id string, groups ...string) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target domain.Value = domain.Ref(id)
	if s := c.find(id); s != nil {
		s.Groups = slices.Clone(groups)
		target = s
	}
	return domain.GroupChanged(target, c.name)
}

// SetGroup registers (or updates) a grouping key and returns the
// GroupingKeyChanged event. A nil weight makes the group unweighted.
func (c *Contributor) SetGroup(key, text string, weight *int) domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var g domain.Value
	if weight != nil {
		g = &WeightedGroup{Group: Group{Key: key, Text: text}, W: *weight}
	} else {
		g = &Group{Key: key, Text: text}
	}
	c.groups[key] = g
	return domain.GroupingKeyChanged(g, c.name)
}

// SetFailure makes Services fail with err until cleared with nil.
func (c *Contributor) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

// SetPanic makes Services panic, simulating a misbehaving provider.
func (c *Contributor) SetPanic(panics bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panics = panics
}

// Clear drops every service and returns the Reset event for the contributor.
func (c *Contributor) Clear() domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = nil
	return domain.Reset(c.name)
}

func (c *Contributor) find(id string) *Service {
	for _, s := range c.services {
		if s.Key == id {
			return s
		}
	}
	return nil
}

func (c *Contributor) groupValue(key string) domain.Value {
	if g, ok := c.groups[key]; ok {
		return g
	}
	return &Group{Key: key, Text: key}
}

func (c *Contributor) text(v domain.Value) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.find(v.ID()); s != nil {
		return textOf(s)
	}
	return v.ID()
}

func textOf(s *Service) string {
	if s.Text != "" {
		return s.Text
	}
	return s.Key
}
