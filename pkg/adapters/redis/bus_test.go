package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

var (
	_ ports.EventSource    = (*redis.Bus)(nil)
	_ ports.EventPublisher = (*redis.Bus)(nil)
)

func newBus(t *testing.T, opts ...redis.Option) (*redis.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	bus := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = bus.Close() })
	return bus, mr
}

func receive(t *testing.T, events <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return domain.Event{}
}

func TestBus_RoundTrip(t *testing.T) {
	bus, _ := newBus(t, redis.WithChannel("test:events"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Events(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.Added(domain.Ref("web"), domain.Ref("host"), "docker")))
	ev := receive(t, events)
	assert.Equal(t, domain.EventAdded, ev.Kind)
	assert.Equal(t, "web", ev.Target.ID())
	assert.Equal(t, "host", ev.Parent.ID())
	assert.Equal(t, "docker", ev.Contributor)
	assert.Equal(t, "test:events", bus.Channel())
}

func TestBus_SkipsMalformedMessages(t *testing.T) {
	bus, mr := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Events(ctx)
	require.NoError(t, err)

	mr.Publish(redis.DefaultChannel, "not json")
	mr.Publish(redis.DefaultChannel, `{"kind":"bogus","contributor":"a"}`)
	require.NoError(t, bus.Publish(ctx, domain.Reset("a")))

	assert.Equal(t, domain.EventReset, receive(t, events).Kind)
}

func TestBus_ClosesOnCancel(t *testing.T) {
	bus, _ := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Events(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestBus_FeedsTree(t *testing.T) {
	bus, _ := newBus(t)
	docker := memory.New("docker")
	reg, err := registry.NewRegistry(docker)
	require.NoError(t, err)

	applied := make(chan domain.Event, 4)
	tree, err := arbor.New(reg,
		arbor.WithEventSource(bus),
		arbor.WithLifecycleHooks(domain.LifecycleHooks{
			OnEventApplied: func(ctx context.Context, e *domain.AppliedEvent) {
				if e.Event.Kind == domain.EventAdded {
					applied <- e.Event
				}
			},
		}),
	)
	require.NoError(t, err)
	defer tree.Close()
	ctx := context.Background()
	require.NoError(t, tree.Start(ctx))

	// The wire carries only the ID; the contributor resolves it.
	ev := docker.Add(&memory.Service{Key: "web", Text: "Web"})
	require.NoError(t, bus.Publish(ctx, ev))
	receive(t, applied)

	web, err := tree.FindByID(ctx, "web")
	require.NoError(t, err)
	require.NotNil(t, web)
	assert.Equal(t, "Web", web.Text())
	_, isService := web.Value().(*memory.Service)
	assert.True(t, isService)
}
