package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/filter"
)

// Chain is the filter chain type shared by the views of one model.
type Chain = filter.Chain[*runtime.Item]

// Filter is the filter owned by a single view.
type Filter = filter.Filter[*runtime.Item]

// NewChain creates an empty filter chain for views over a model.
func NewChain() *Chain {
	return filter.New[*runtime.Item]()
}

// Kind identifies the projection a view presents.
type Kind int

const (
	KindAllRoots Kind = iota
	KindContributor
	KindGroup
	KindService
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindAllRoots:
		return "roots"
	case KindContributor:
		return "contributor"
	case KindGroup:
		return "group"
	case KindService:
		return "service"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrWrongKind is returned when a view is opened on an item of the wrong kind.
var ErrWrongKind = errors.New("item kind does not fit view")

// View is a filtered projection of the tree.
type View struct {
	id     string
	kind   Kind
	model  *runtime.Model
	chain  *Chain
	filter *Filter
	logger *slog.Logger
	sub    string

	// immutable selection
	contributors []string
	name         string
	items        []*runtime.Item

	mu        sync.Mutex
	target    *runtime.Item
	class     string
	path      []string
	expanded  bool
	onExpand  func(*View)
	callbacks []func(domain.Event)
	closed    bool
}

// Option configures a View.
type Option func(*options)

type options struct {
	pred     filter.Predicate[*runtime.Item]
	custom   bool
	parent   *Filter
	logger   *slog.Logger
	onExpand func(*View)
}

// WithFilter sets the predicate of the view's own filter. Items matching it are
// hidden from every other view that does not descend from this one.
func WithFilter(pred filter.Predicate[*runtime.Item]) Option {
	return func(o *options) {
		o.pred = pred
		o.custom = true
	}
}

// WithParent links the view's filter under another view's filter.
func WithParent(f *Filter) Option {
	return func(o *options) {
		o.parent = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOnExpand registers the callback a service view fires, once, when its
// item acquires children. Callers usually replace the view with a list view.
func WithOnExpand(fn func(*View)) Option {
	return func(o *options) {
		o.onExpand = fn
	}
}

// NewAllRoots opens a view on the contributor roots. A non-empty contributors
// list restricts the view to those classes.
func NewAllRoots(ctx context.Context, m *runtime.Model, chain *Chain, contributors []string, opts ...Option) (*View, error) {
	v := &View{kind: KindAllRoots, contributors: slices.Clone(contributors)}
	return v, v.open(ctx, m, chain, nil, opts)
}

// NewContributor opens a view on the children of one contributor root.
func NewContributor(ctx context.Context, m *runtime.Model, chain *Chain, name string, opts ...Option) (*View, error) {
	if _, ok := m.Registry().Lookup(name); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownContributor, name)
	}
	v := &View{kind: KindContributor, name: name}
	hide := func(it *runtime.Item) bool {
		return it.Kind() == runtime.KindContributor && it.ID() == name
	}
	return v, v.open(ctx, m, chain, hide, opts)
}

// NewGroup opens a view on the children of a group. When the group node is
// replaced (collapsed and recreated), the view follows it by path.
func NewGroup(ctx context.Context, m *runtime.Model, chain *Chain, group *runtime.Item, opts ...Option) (*View, error) {
	if group == nil || group.Kind() != runtime.KindGroup {
		return nil, fmt.Errorf("%w: want group, got %v", ErrWrongKind, group)
	}
	v := &View{kind: KindGroup}
	v.track(group)
	return v, v.open(ctx, m, chain, same(group), opts)
}

// NewService opens a view on a single service item.
func NewService(ctx context.Context, m *runtime.Model, chain *Chain, item *runtime.Item, opts ...Option) (*View, error) {
	if item == nil || item.Kind() != runtime.KindService {
		return nil, fmt.Errorf("%w: want service, got %v", ErrWrongKind, item)
	}
	v := &View{kind: KindService, target: item}
	return v, v.open(ctx, m, chain, same(item), opts)
}

// NewList opens a view on an explicit selection. Items whose ancestor is also
// selected are dropped.
func NewList(ctx context.Context, m *runtime.Model, chain *Chain, items []*runtime.Item, opts ...Option) (*View, error) {
	v := &View{kind: KindList, items: prune(items)}
	selected := v.items
	hide := func(it *runtime.Item) bool {
		return slices.ContainsFunc(selected, it.Equal)
	}
	return v, v.open(ctx, m, chain, hide, opts)
}

func same(target *runtime.Item) filter.Predicate[*runtime.Item] {
	return func(it *runtime.Item) bool { return target.Equal(it) }
}

// prune removes duplicates and items that descend from another selected item.
func prune(items []*runtime.Item) []*runtime.Item {
	out := make([]*runtime.Item, 0, len(items))
	for i, it := range items {
		if it == nil || slices.ContainsFunc(items[:i], it.Equal) {
			continue
		}
		covered := false
		for p := it.Parent(); p != nil && !covered; p = p.Parent() {
			covered = slices.ContainsFunc(items, p.Equal)
		}
		if !covered {
			out = append(out, it)
		}
	}
	return out
}

func (v *View) open(ctx context.Context, m *runtime.Model, chain *Chain, pred filter.Predicate[*runtime.Item], opts []Option) error {
	o := options{pred: pred, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	v.id = uuid.NewString()
	v.model = m
	v.chain = chain
	v.logger = o.logger.With("view", v.id, "kind", v.kind.String())
	v.onExpand = o.onExpand

	err := m.Do(ctx, func(ctx context.Context) error {
		f, err := chain.Add(o.pred, o.parent)
		if err != nil {
			return err
		}
		v.filter = f
		return nil
	})
	if err != nil {
		return fmt.Errorf("open %s view: %w", v.kind, err)
	}
	v.sub = m.Subscribe(v.changed)
	v.logger.Debug("View opened")
	return nil
}

// ID returns the view identifier.
func (v *View) ID() string {
	return v.id
}

// Kind returns the projection kind.
func (v *View) Kind() Kind {
	return v.kind
}

// Filter returns the view's own filter, for use with WithParent.
func (v *View) Filter() *Filter {
	return v.filter
}

// Target returns the group or service item the view is bound to, or nil.
func (v *View) Target() *runtime.Item {
	switch v.kind {
	case KindGroup:
		return v.group()
	case KindService:
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.target.IsRemoved() {
			return nil
		}
		return v.target
	}
	return nil
}

// Roots computes the visible top-level items of the view.
func (v *View) Roots() []*runtime.Item {
	switch v.kind {
	case KindAllRoots:
		roots := v.model.Roots()
		if len(v.contributors) > 0 {
			roots = slices.DeleteFunc(slices.Clone(roots), func(it *runtime.Item) bool {
				return !slices.Contains(v.contributors, it.ID())
			})
		}
		return v.chain.Apply(roots, v.filter)
	case KindContributor:
		root := v.model.Root(v.name)
		if root == nil {
			return nil
		}
		return v.chain.Apply(root.Children(), v.filter)
	case KindGroup:
		g := v.group()
		if g == nil {
			return nil
		}
		return v.chain.Apply(g.Children(), v.filter)
	case KindService:
		if it := v.Target(); it != nil {
			return []*runtime.Item{it}
		}
		return nil
	case KindList:
		live := slices.DeleteFunc(slices.Clone(v.items), (*runtime.Item).IsRemoved)
		return v.chain.Apply(live, v.filter)
	}
	return nil
}

// Title is the label of the view. Group views follow the group descriptor.
func (v *View) Title() string {
	switch v.kind {
	case KindContributor:
		if c, ok := v.model.Registry().Lookup(v.name); ok {
			return c.Descriptor().TextOr(v.name)
		}
		return v.name
	case KindGroup, KindService:
		if it := v.Target(); it != nil {
			return it.Text()
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if len(v.path) > 0 {
			return v.path[len(v.path)-1]
		}
		return ""
	case KindList:
		texts := make([]string, 0, len(v.items))
		for _, it := range v.items {
			texts = append(texts, it.Text())
		}
		return strings.Join(texts, ", ")
	}
	return "Services"
}

// OnChange registers a callback invoked, on the model executor, after every
// event the model applies.
func (v *View) OnChange(fn func(domain.Event)) {
	v.mu.Lock()
	v.callbacks = append(v.callbacks, fn)
	v.mu.Unlock()
}

// Close unsubscribes the view and removes its filter from the chain.
func (v *View) Close(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	v.mu.Unlock()

	v.model.Unsubscribe(v.sub)
	err := v.model.Do(ctx, func(ctx context.Context) error {
		v.chain.Remove(v.filter)
		return nil
	})
	if errors.Is(err, domain.ErrExecutorClosed) {
		// Nothing mutates the chain once the executor is gone.
		v.chain.Remove(v.filter)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("close %s view: %w", v.kind, err)
	}
	v.logger.Debug("View closed")
	return nil
}

func (v *View) changed(ctx context.Context, ev domain.Event) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	var expand func(*View)
	if v.kind == KindService && !v.expanded && !v.target.IsRemoved() && len(v.target.Children()) > 0 {
		v.expanded = true
		expand = v.onExpand
	}
	callbacks := slices.Clone(v.callbacks)
	v.mu.Unlock()

	if expand != nil {
		v.logger.Debug("Service view expanded", "item", v.target.ID())
		expand(v)
	}
	for _, fn := range callbacks {
		fn(ev)
	}
}

// track records the group and its path. Caller holds v.mu or owns v.
func (v *View) track(g *runtime.Item) {
	v.target = g
	v.class, v.path = runtime.Path(g)
}

// group returns the bound group, re-resolving it by path when the node was
// removed and recreated.
func (v *View) group() *runtime.Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.target.IsRemoved() {
		return v.target
	}
	found := lookup(v.model, v.class, v.path)
	if found == nil || found.Kind() != runtime.KindGroup {
		return nil
	}
	v.track(found)
	return found
}

// lookup walks loaded children only; it never triggers a load.
func lookup(m *runtime.Model, contributor string, ids []string) *runtime.Item {
	cur := m.Root(contributor)
	for _, id := range ids {
		if cur == nil {
			return nil
		}
		var next *runtime.Item
		for _, c := range cur.Children() {
			if c.ID() == id {
				next = c
				break
			}
		}
		cur = next
	}
	return cur
}
