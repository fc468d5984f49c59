package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchLimit bounds concurrent contributor fetches during Refresh.
const DefaultFetchLimit = 8

// Listener observes fully applied events. It runs on the executor: it may read
// the tree freely and call Reset or Apply with the ctx it was given, but must
// not wait on futures from other goroutines.
type Listener func(ctx context.Context, ev domain.Event)

type subscription struct {
	id string
	fn Listener
}

// Model owns the services tree and applies contributor events to it.
type Model struct {
	registry *registry.Registry
	exec     *Executor
	roots    atomic.Pointer[[]*Item]

	subsMu sync.RWMutex
	subs   []subscription

	source      ports.EventSource
	loadTimeout time.Duration
	fetchLimit  int
	hooks       domain.LifecycleHooks
	logger      *slog.Logger

	life     context.Context // cancelled by Close; bounds background loads
	shutdown context.CancelFunc
	stop     context.CancelFunc
	pump     sync.WaitGroup
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) ModelOption {
	return func(m *Model) {
		m.hooks = hooks
	}
}

// WithEventSource sets the source pumped into the model by Start.
func WithEventSource(src ports.EventSource) ModelOption {
	return func(m *Model) {
		m.source = src
	}
}

// WithLoadTimeout bounds each forced load during a search.
// Zero means no bound.
func WithLoadTimeout(d time.Duration) ModelOption {
	return func(m *Model) {
		m.loadTimeout = d
	}
}

// WithFetchLimit bounds concurrent contributor fetches during Refresh.
func WithFetchLimit(n int) ModelOption {
	return func(m *Model) {
		if n > 0 {
			m.fetchLimit = n
		}
	}
}

// NewModel creates an empty model over reg. Call Refresh or Start to populate it.
func NewModel(reg *registry.Registry, opts ...ModelOption) *Model {
	m := &Model{
		registry:   reg,
		fetchLimit: DefaultFetchLimit,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry, _ = registry.NewRegistry()
	}
	empty := []*Item{}
	m.roots.Store(&empty)
	m.life, m.shutdown = context.WithCancel(context.Background())
	m.exec = NewExecutor(m.logger)
	return m
}

// Registry returns the contributor registry backing the model.
func (m *Model) Registry() *registry.Registry {
	return m.registry
}

// Roots returns a snapshot of the contributor roots in registry order.
func (m *Model) Roots() []*Item {
	return *m.roots.Load()
}

// Root returns the root of a contributor class, or nil when it contributes nothing.
func (m *Model) Root(contributor string) *Item {
	return rootOf(m.Roots(), contributor)
}

// Children returns the children of it, loading them on the executor first when
// needed. Concurrent callers share a single load. A nil item yields the roots.
// Provider failures surface as an empty list; only cancellation is an error.
func (m *Model) Children(ctx context.Context, it *Item) ([]*Item, error) {
	if it == nil {
		return m.Roots(), nil
	}
	if it.LoadState() == domain.Loaded || it.IsRemoved() {
		return it.Children(), nil
	}
	if m.exec.InTask(ctx) {
		if err := m.load(ctx, it); err != nil {
			return nil, err
		}
		return it.Children(), nil
	}

	it.mu.Lock()
	fut := it.pending
	if fut == nil {
		fut = newFuture()
		it.pending = fut
		it.state.CompareAndSwap(int32(domain.Uninitialized), int32(domain.Initializing))
		go m.loadAsync(it, fut)
	}
	it.mu.Unlock()

	if err := fut.Wait(ctx); err != nil {
		return nil, err
	}
	return it.Children(), nil
}

// Subscribe registers a listener and returns its subscription ID.
func (m *Model) Subscribe(fn Listener) string {
	id := uuid.NewString()
	m.subsMu.Lock()
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.subsMu.Unlock()
	return id
}

// Unsubscribe removes a listener. It reports whether the ID was known.
func (m *Model) Unsubscribe(id string) bool {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s.id == id {
			m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Model) notify(ctx context.Context, ev domain.Event) {
	m.subsMu.RLock()
	subs := m.subs
	m.subsMu.RUnlock()
	for _, s := range subs {
		if err := guard(func() error {
			s.fn(ctx, ev)
			return nil
		}); err != nil {
			m.logger.Error("Listener failed", "subscription", s.id, "err", err)
		}
	}
}

// Submit queues an event. Reset events are applied synchronously before
// Submit returns; the returned future is already complete.
func (m *Model) Submit(ctx context.Context, ev domain.Event) *Future {
	if ev.Kind == domain.EventReset {
		return completed(m.Reset(ctx, ev.Contributor))
	}
	if !ev.Kind.Valid() {
		return completed(fmt.Errorf("unknown event kind %q", ev.Kind))
	}
	return m.exec.Submit(ctx, func(ctx context.Context) error {
		return m.apply(ctx, ev)
	})
}

// Apply submits an event and waits until it is applied.
// Inside a listener it applies inline.
func (m *Model) Apply(ctx context.Context, ev domain.Event) error {
	if ev.Kind == domain.EventReset {
		return m.Reset(ctx, ev.Contributor)
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return m.exec.Do(ctx, func(ctx context.Context) error {
		return m.apply(ctx, ev)
	})
}

// Reset rebuilds the subtree of a contributor class synchronously, waiting only
// for the task currently in flight. When the contributor is no longer
// registered or contributes nothing, its root disappears.
func (m *Model) Reset(ctx context.Context, contributor string) error {
	return m.exec.Sync(ctx, func(ctx context.Context) error {
		return m.apply(ctx, domain.Reset(contributor))
	})
}

// Refresh rebuilds every contributor subtree. Services are fetched
// concurrently, then installed in registry order in one step.
func (m *Model) Refresh(ctx context.Context) error {
	contributors := m.registry.List()
	built := make([]*Item, len(contributors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fetchLimit)
	for i, c := range contributors {
		g.Go(func() error {
			root, err := m.buildRoot(gctx, c)
			if err != nil {
				return fmt.Errorf("refresh %s: %w", c.Name(), err)
			}
			built[i] = root
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return m.exec.Sync(ctx, func(ctx context.Context) error {
		start := time.Now()
		for _, old := range m.Roots() {
			old.removed.Store(true)
		}
		roots := make([]*Item, 0, len(built))
		for _, r := range built {
			if r != nil {
				roots = append(roots, r)
			}
		}
		m.roots.Store(&roots)
		for _, c := range contributors {
			m.applied(ctx, domain.Reset(c.Name()), start)
		}
		m.logger.Debug("Model refreshed", "contributors", len(contributors), "roots", len(roots))
		return nil
	})
}

// Run queues an arbitrary task on the model executor. Views use it to
// serialize their filter edits with tree mutations.
func (m *Model) Run(ctx context.Context, fn TaskFunc) *Future {
	return m.exec.Submit(ctx, fn)
}

// Do runs fn on the executor and waits for it.
func (m *Model) Do(ctx context.Context, fn TaskFunc) error {
	return m.exec.Do(ctx, fn)
}

// Start populates the model and pumps the configured event source into it
// until Close is called or ctx is done.
func (m *Model) Start(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}
	if m.source == nil {
		return nil
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	events, err := m.source.Events(pumpCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to event source: %w", err)
	}
	m.stop = cancel
	m.pump.Add(1)
	go func() {
		defer m.pump.Done()
		for ev := range events {
			fut := m.Submit(pumpCtx, ev)
			if ev.Kind == domain.EventReset {
				if err := fut.Err(); err != nil {
					m.logger.Warn("Reset from source failed", "contributor", ev.Contributor, "err", err)
				}
			}
		}
		m.logger.Debug("Event source drained")
	}()
	return nil
}

// Close stops the event pump and the executor. Queued events are discarded.
func (m *Model) Close() {
	if m.stop != nil {
		m.stop()
	}
	m.pump.Wait()
	m.shutdown()
	m.exec.Close()
}
