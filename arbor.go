package arbor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"github.com/aretw0/arbor/pkg/view"
)

type (
	// Item is a node of the live tree.
	Item = runtime.Item
	// Node is the JSON-friendly snapshot of an Item.
	Node = runtime.Node
	// Predicate selects items during a search.
	Predicate = runtime.Predicate
	// Listener observes every event applied to the tree.
	Listener = runtime.Listener
	// Future tracks an event queued with Submit.
	Future = runtime.Future
	// View is a filtered projection of the tree.
	View = view.View
)

// Tree is the high-level entry point of the library. It wraps the item model,
// its contributor registry and the filter chain shared by its views.
type Tree struct {
	model    *runtime.Model
	registry *registry.Registry
	chain    *view.Chain

	hooks       domain.LifecycleHooks
	source      ports.EventSource
	loadTimeout time.Duration
	fetchLimit  int
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Tree.
type Option func(*Tree)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(t *Tree) {
		t.hooks = hooks
	}
}

// WithEventSource pumps events from src into the tree once Start is called.
func WithEventSource(src ports.EventSource) Option {
	return func(t *Tree) {
		t.source = src
	}
}

// WithLoadTimeout bounds each load a search forces.
func WithLoadTimeout(d time.Duration) Option {
	return func(t *Tree) {
		t.loadTimeout = d
	}
}

// WithFetchLimit bounds how many contributors Refresh enumerates at once.
func WithFetchLimit(n int) Option {
	return func(t *Tree) {
		t.fetchLimit = n
	}
}

// New builds a tree over the contributors of reg. A nil registry starts empty.
// The tree holds no data until Start or Refresh is called.
func New(reg *registry.Registry, opts ...Option) (*Tree, error) {
	t := &Tree{registry: reg, chain: view.NewChain()}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		var err error
		if t.registry, err = registry.NewRegistry(); err != nil {
			return nil, fmt.Errorf("empty registry: %w", err)
		}
	}
	if t.logger == nil {
		t.logger = logging.NewNop()
	}
	t.logger = t.logger.With("component", "arbor")

	modelOpts := []runtime.ModelOption{
		runtime.WithLogger(t.logger),
		runtime.WithLifecycleHooks(t.hooks),
		runtime.WithLoadTimeout(t.loadTimeout),
	}
	if t.source != nil {
		modelOpts = append(modelOpts, runtime.WithEventSource(t.source))
	}
	if t.fetchLimit > 0 {
		modelOpts = append(modelOpts, runtime.WithFetchLimit(t.fetchLimit))
	}
	t.model = runtime.NewModel(t.registry, modelOpts...)
	return t, nil
}

// Start populates the tree and starts pumping the configured event source.
func (t *Tree) Start(ctx context.Context) error {
	return t.model.Start(ctx)
}

// Refresh rebuilds every contributor subtree.
func (t *Tree) Refresh(ctx context.Context) error {
	return t.model.Refresh(ctx)
}

// Close stops the event pump and the executor. Pending events are dropped.
func (t *Tree) Close() {
	t.model.Close()
}

// Registry returns the contributor registry.
func (t *Tree) Registry() *registry.Registry {
	return t.registry
}

// Model exposes the underlying item model to adapters.
func (t *Tree) Model() *runtime.Model {
	return t.model
}

// Submit queues an event and returns immediately.
func (t *Tree) Submit(ctx context.Context, ev domain.Event) *Future {
	return t.model.Submit(ctx, ev)
}

// Apply submits an event and waits until it was applied.
func (t *Tree) Apply(ctx context.Context, ev domain.Event) error {
	return t.model.Apply(ctx, ev)
}

// Reset rebuilds the subtree of one contributor class.
func (t *Tree) Reset(ctx context.Context, contributor string) error {
	return t.model.Reset(ctx, contributor)
}

// AddContributor registers c and builds its subtree.
func (t *Tree) AddContributor(ctx context.Context, c ports.Contributor) error {
	if err := t.registry.Add(c); err != nil {
		return err
	}
	return t.model.Reset(ctx, c.Name())
}

// ReplaceContributor swaps the contributor registered under c.Name() and
// rebuilds its subtree in place.
func (t *Tree) ReplaceContributor(ctx context.Context, c ports.Contributor) error {
	t.registry.Replace(c)
	return t.model.Reset(ctx, c.Name())
}

// RemoveContributor unregisters a contributor and drops its subtree.
func (t *Tree) RemoveContributor(ctx context.Context, name string) error {
	if !t.registry.Remove(name) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownContributor, name)
	}
	return t.model.Reset(ctx, name)
}

// Roots returns the contributor roots in registry order.
func (t *Tree) Roots() []*Item {
	return t.model.Roots()
}

// Children returns the children of it, loading them when needed.
func (t *Tree) Children(ctx context.Context, it *Item) ([]*Item, error) {
	return t.model.Children(ctx, it)
}

// FindByPredicate searches the tree breadth first, loaded structure before
// lazy subtrees.
func (t *Tree) FindByPredicate(ctx context.Context, match, descend Predicate) (*Item, error) {
	return t.model.FindByPredicate(ctx, match, descend)
}

// FindByPath resolves a path of value IDs below a contributor root.
func (t *Tree) FindByPath(ctx context.Context, contributor string, ids ...string) (*Item, error) {
	return t.model.FindByPath(ctx, contributor, ids...)
}

// FindByID returns the first service with the given ID.
func (t *Tree) FindByID(ctx context.Context, id string) (*Item, error) {
	return t.model.FindByID(ctx, id)
}

// Subscribe registers a listener and returns its subscription ID.
func (t *Tree) Subscribe(fn Listener) string {
	return t.model.Subscribe(fn)
}

// Unsubscribe removes a listener.
func (t *Tree) Unsubscribe(id string) bool {
	return t.model.Unsubscribe(id)
}

// Snapshot dumps the loaded tree.
func (t *Tree) Snapshot() []Node {
	return t.model.Snapshot()
}

// OpenRoots opens a view on the contributor roots, optionally restricted to
// some contributors.
func (t *Tree) OpenRoots(ctx context.Context, contributors []string, opts ...view.Option) (*View, error) {
	return view.NewAllRoots(ctx, t.model, t.chain, contributors, t.viewOpts(opts)...)
}

// OpenContributor opens a view on one contributor subtree.
func (t *Tree) OpenContributor(ctx context.Context, name string, opts ...view.Option) (*View, error) {
	return view.NewContributor(ctx, t.model, t.chain, name, t.viewOpts(opts)...)
}

// OpenGroup opens a view on the children of a group.
func (t *Tree) OpenGroup(ctx context.Context, group *Item, opts ...view.Option) (*View, error) {
	return view.NewGroup(ctx, t.model, t.chain, group, t.viewOpts(opts)...)
}

// OpenService opens a view on a single service.
func (t *Tree) OpenService(ctx context.Context, item *Item, opts ...view.Option) (*View, error) {
	return view.NewService(ctx, t.model, t.chain, item, t.viewOpts(opts)...)
}

// OpenList opens a view on an explicit selection of items.
func (t *Tree) OpenList(ctx context.Context, items []*Item, opts ...view.Option) (*View, error) {
	return view.NewList(ctx, t.model, t.chain, items, t.viewOpts(opts)...)
}

func (t *Tree) viewOpts(opts []view.Option) []view.Option {
	return append([]view.Option{view.WithLogger(t.logger)}, opts...)
}

// ViewParent links a new view's filter under parent's filter; parent's own
// predicate then no longer applies to the new view.
func ViewParent(parent *View) view.Option {
	return view.WithParent(parent.Filter())
}

// NodeOf copies one item and its loaded subtree.
func NodeOf(it *Item) Node {
	return runtime.NodeOf(it)
}

// Path returns the contributor and value IDs leading to it, suitable for
// FindByPath.
func Path(it *Item) (contributor string, ids []string) {
	return runtime.Path(it)
}
