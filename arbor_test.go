package arbor_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootIDs(tree *arbor.Tree) []string {
	var out []string
	for _, r := range tree.Roots() {
		out = append(out, r.ID())
	}
	return out
}

func TestTree_ContributorLifecycle(t *testing.T) {
	a, c := memory.New("a"), memory.New("c")
	a.Add(&memory.Service{Key: "a1"})
	c.Add(&memory.Service{Key: "c1"})
	reg, err := registry.NewRegistry(a, c)
	require.NoError(t, err)

	tree, err := arbor.New(reg)
	require.NoError(t, err)
	defer tree.Close()
	ctx := context.Background()
	require.NoError(t, tree.Start(ctx))
	assert.Equal(t, []string{"a", "c"}, rootIDs(tree))

	b := memory.New("b")
	b.Add(&memory.Service{Key: "b1"})
	require.NoError(t, tree.Registry().Insert(1, b))
	require.NoError(t, tree.Reset(ctx, "b"))
	assert.Equal(t, []string{"a", "b", "c"}, rootIDs(tree))

	require.NoError(t, tree.RemoveContributor(ctx, "b"))
	assert.Equal(t, []string{"a", "c"}, rootIDs(tree))
	assert.ErrorIs(t, tree.RemoveContributor(ctx, "b"), domain.ErrUnknownContributor)

	d := memory.New("d")
	d.Add(&memory.Service{Key: "d1"})
	require.NoError(t, tree.AddContributor(ctx, d))
	assert.Equal(t, []string{"a", "c", "d"}, rootIDs(tree))
	assert.ErrorIs(t, tree.AddContributor(ctx, memory.New("d")), domain.ErrDuplicateContributor)

	replacement := memory.New("a")
	replacement.Add(&memory.Service{Key: "a2"})
	require.NoError(t, tree.ReplaceContributor(ctx, replacement))
	found, err := tree.FindByPath(ctx, "a", "a2")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, []string{"a", "c", "d"}, rootIDs(tree))
}

func TestTree_EventSourceIsPumped(t *testing.T) {
	a := memory.New("a")
	src := memory.NewSource(8)
	defer src.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	applied := make(chan domain.Event, 8)
	tree, err := arbor.New(mustRegistry(t, a),
		arbor.WithEventSource(src),
		arbor.WithLogger(logger),
		arbor.WithLoadTimeout(time.Second),
		arbor.WithFetchLimit(2),
		arbor.WithLifecycleHooks(domain.LifecycleHooks{
			OnEventApplied: func(ctx context.Context, e *domain.AppliedEvent) { applied <- e.Event },
		}),
	)
	require.NoError(t, err)
	defer tree.Close()

	ctx := context.Background()
	require.NoError(t, tree.Start(ctx))
	assert.Contains(t, logs.String(), "component=arbor")
	assert.Equal(t, domain.EventReset, (<-applied).Kind, "initial refresh resets every contributor")

	require.NoError(t, src.Publish(ctx, a.Add(&memory.Service{Key: "x"})))
	select {
	case ev := <-applied:
		assert.Equal(t, domain.EventAdded, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not applied")
	}
	found, err := tree.FindByID(ctx, "x")
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestTree_ListenersAndSnapshot(t *testing.T) {
	a := memory.New("a", memory.WithGrouping())
	tree, err := arbor.New(mustRegistry(t, a))
	require.NoError(t, err)
	defer tree.Close()
	ctx := context.Background()

	var kinds []domain.EventKind
	id := tree.Subscribe(func(ctx context.Context, ev domain.Event) { kinds = append(kinds, ev.Kind) })
	require.NoError(t, tree.Apply(ctx, a.Add(&memory.Service{Key: "x", Groups: []string{"g"}})))
	require.NoError(t, tree.Submit(ctx, a.Rename("x", "X")).Wait(ctx))
	assert.True(t, tree.Unsubscribe(id))
	require.NoError(t, tree.Apply(ctx, a.Remove("x")))
	assert.Equal(t, []domain.EventKind{domain.EventAdded, domain.EventChanged}, kinds)

	require.NoError(t, tree.Apply(ctx, a.Add(&memory.Service{Key: "y", Groups: []string{"g"}})))
	snap := tree.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)
	require.Len(t, snap[0].Children, 1)
	assert.Equal(t, "g", snap[0].Children[0].ID)
	assert.Equal(t, "y", snap[0].Children[0].Children[0].ID)

	children, err := tree.Children(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	hit, err := tree.FindByPredicate(ctx, func(it *arbor.Item) bool { return it.ID() == "y" }, nil)
	require.NoError(t, err)
	assert.Equal(t, "g", hit.Parent().ID())
}

func TestTree_Views(t *testing.T) {
	a := memory.New("a", memory.WithGrouping())
	a.Add(&memory.Service{Key: "x", Groups: []string{"g"}})
	a.Add(&memory.Service{Key: "host", Children: memory.New("nested")})
	tree, err := arbor.New(mustRegistry(t, a))
	require.NoError(t, err)
	defer tree.Close()
	ctx := context.Background()
	require.NoError(t, tree.Refresh(ctx))

	main, err := tree.OpenRoots(ctx, nil)
	require.NoError(t, err)

	g, err := tree.FindByPath(ctx, "a", "g")
	require.NoError(t, err)
	group, err := tree.OpenGroup(ctx, g, arbor.ViewParent(main))
	require.NoError(t, err)
	assert.Equal(t, "g", group.Title())

	host, err := tree.FindByID(ctx, "host")
	require.NoError(t, err)
	service, err := tree.OpenService(ctx, host)
	require.NoError(t, err)
	list, err := tree.OpenList(ctx, []*arbor.Item{host})
	require.NoError(t, err)

	contributor, err := tree.OpenContributor(ctx, "a")
	require.NoError(t, err)
	// host is hidden by the service and list views, g by the group view.
	assert.Empty(t, contributor.Roots())

	for _, v := range []*arbor.View{group, service, list} {
		require.NoError(t, v.Close(ctx))
	}
	assert.Len(t, contributor.Roots(), 2)
	require.NoError(t, contributor.Close(ctx))
	require.NoError(t, main.Close(ctx))
}

func mustRegistry(t *testing.T, contributors ...*memory.Contributor) *registry.Registry {
	t.Helper()
	reg, err := registry.NewRegistry()
	require.NoError(t, err)
	for _, c := range contributors {
		require.NoError(t, reg.Add(c))
	}
	return reg
}
