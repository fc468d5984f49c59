package runtime_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/require"
)

// svc is an immutable value carrying everything the tree needs, so events can
// be replayed against any model without shared contributor state.
type svc struct {
	id     string
	text   string
	group  string // slash separated path
	hosted ports.Contributor
}

func (s svc) ID() string { return s.id }

func (s svc) Provide() ports.Contributor { return s.hosted }

// static is a contributor driven by svc values.
type static struct {
	name     string
	values   []domain.Value
	grouping bool
	compare  ports.CompareFunc
	lazy     bool
	err      error
	block    chan struct{}
}

func (s *static) Name() string { return s.name }

func (s *static) Descriptor() domain.Descriptor {
	return domain.Descriptor{Text: strings.ToUpper(s.name)}
}

func (s *static) Services(ctx context.Context) ([]domain.Value, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.values, s.err
}

func (s *static) ServiceDescriptor(v domain.Value) (domain.Descriptor, error) {
	if sv, ok := v.(svc); ok && sv.text != "" {
		return domain.Descriptor{Text: sv.text}, nil
	}
	return domain.Descriptor{Text: v.ID()}, nil
}

func (s *static) Capabilities() ports.Capabilities {
	caps := ports.Capabilities{Compare: s.compare, Lazy: s.lazy}
	if s.grouping {
		caps.Groups = func(v domain.Value) ([]domain.Value, error) {
			sv, ok := v.(svc)
			if !ok || sv.group == "" {
				return nil, nil
			}
			var path []domain.Value
			for _, key := range strings.Split(sv.group, "/") {
				path = append(path, domain.Ref(key))
			}
			return path, nil
		}
		caps.GroupDescriptor = func(key domain.Value) (domain.Descriptor, error) {
			return domain.Descriptor{Text: key.ID()}, nil
		}
	}
	return caps
}

func byIDDesc(a, b domain.Value) int {
	return -strings.Compare(a.ID(), b.ID())
}

func newModel(t testing.TB, contributors ...ports.Contributor) *runtime.Model {
	t.Helper()
	reg, err := registry.NewRegistry(contributors...)
	require.NoError(t, err)
	m := runtime.NewModel(reg)
	t.Cleanup(m.Close)
	return m
}

func ids(items []*runtime.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID())
	}
	return out
}

func apply(t testing.TB, m *runtime.Model, events ...domain.Event) {
	t.Helper()
	for _, ev := range events {
		require.NoError(t, m.Apply(context.Background(), ev), "apply %s", ev)
	}
}

func child(t testing.TB, parent *runtime.Item, id string) *runtime.Item {
	t.Helper()
	for _, c := range parent.Children() {
		if c.ID() == id {
			return c
		}
	}
	t.Fatalf("%s has no child %q (children: %v)", parent, id, ids(parent.Children()))
	return nil
}
