package dsl

import (
	"fmt"
	"slices"

	"github.com/aretw0/arbor/pkg/adapters/memory"
)

// ServiceBuilder provides a fluent API for configuring a service.
type ServiceBuilder struct {
	key      string
	text     string
	groups   []string
	children *Builder
	builder  *Builder
}

// Text sets the label of the service.
func (s *ServiceBuilder) Text(text string) *ServiceBuilder {
	s.text = text
	return s
}

// In sets the group path of the service, outermost first.
func (s *ServiceBuilder) In(groups ...string) *ServiceBuilder {
	s.groups = slices.Clone(groups)
	return s
}

// Children makes the service host a contributor of its own and returns the
// builder of that contributor.
func (s *ServiceBuilder) Children(name string) *Builder {
	if s.children == nil {
		s.children = New(name)
	}
	return s.children
}

// Service adds a sibling service to the same contributor.
func (s *ServiceBuilder) Service(key string) *ServiceBuilder {
	return s.builder.Service(key)
}

func (s *ServiceBuilder) build() (*memory.Service, error) {
	if s.key == "" {
		return nil, fmt.Errorf("%w: service without key", ErrInvalid)
	}
	svc := &memory.Service{Key: s.key, Text: s.text, Groups: s.groups}
	if s.children != nil {
		nested, err := s.children.Build()
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", s.key, err)
		}
		svc.Children = nested
	}
	return svc, nil
}
