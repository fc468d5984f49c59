package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// providerFailure logs a contributor failure and reports it to the hooks.
func (m *Model) providerFailure(ctx context.Context, contributor, op string, err error) error {
	pe := &domain.ProviderError{Contributor: contributor, Op: op, Err: err}
	m.logger.Warn("Contributor failed", "contributor", contributor, "op", op, "err", err)
	if m.hooks.OnProviderFailure != nil {
		m.hooks.OnProviderFailure(ctx, pe)
	}
	return pe
}

func (m *Model) fetch(ctx context.Context, c ports.Contributor) ([]domain.Value, error) {
	var values []domain.Value
	err := guard(func() error {
		var err error
		values, err = c.Services(ctx)
		return err
	})
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return nil, m.providerFailure(ctx, c.Name(), "services", err)
	}
	return values, nil
}

func (m *Model) groupPath(ctx context.Context, c ports.Contributor, caps ports.Capabilities, v domain.Value) ([]domain.Value, error) {
	if !caps.Grouping() {
		return nil, nil
	}
	var path []domain.Value
	err := guard(func() error {
		var err error
		path, err = caps.Groups(v)
		return err
	})
	if err != nil {
		return nil, m.providerFailure(ctx, c.Name(), "groups", err)
	}
	out := path[:0:0]
	for _, key := range path {
		if key != nil {
			out = append(out, key)
		}
	}
	return out, nil
}

// buildChildren fetches the services of c and arranges them into a fresh child
// list for owner. Nothing is published; on error the tree is untouched.
func (m *Model) buildChildren(ctx context.Context, owner *Item, c ports.Contributor) ([]*Item, error) {
	values, err := m.fetch(ctx, c)
	if err != nil {
		return nil, err
	}
	caps := ports.CapabilitiesOf(c)
	cs := newChangeset()
	cs.set(owner, []*Item{})
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == nil || seen[v.ID()] {
			continue
		}
		seen[v.ID()] = true
		path, err := m.groupPath(ctx, c, caps, v)
		if err != nil {
			return nil, err
		}
		m.place(cs, owner, m.newService(v, c, caps), path)
	}
	list := cs.lists[owner]
	delete(cs.lists, owner)
	cs.flush()
	return list, nil
}

// buildRoot builds the subtree of a contributor. It returns nil when the
// contributor fails or currently contributes nothing; only cancellation is
// returned as an error.
func (m *Model) buildRoot(ctx context.Context, c ports.Contributor) (*Item, error) {
	root := m.newRoot(c)
	children, err := m.buildChildren(ctx, root, c)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return nil, nil
	}
	if len(children) == 0 {
		return nil, nil
	}
	root.setChildren(children)
	return root, nil
}

// place records in cs the insertion of it under owner following the group
// path. Existing groups are descended into; missing ones are assembled
// off-tree. Only the list of the deepest existing parent is edited.
func (m *Model) place(cs *changeset, owner *Item, it *Item, path []domain.Value) {
	parent := owner
	for len(path) > 0 {
		g := findGroup(cs.children(parent), path[0])
		if g == nil {
			break
		}
		parent, path = g, path[1:]
	}

	top := it
	for i := len(path) - 1; i >= 0; i-- {
		g := m.newItem(KindGroup, path[i], it.contributor, it.caps)
		top.parent.Store(g)
		g.setChildren(insertChild(nil, top, it.caps.Compare))
		top = g
	}
	top.parent.Store(parent)
	cs.set(parent, insertChild(cs.children(parent), top, it.caps.Compare))
}

// resolvePath returns the existing group reached by path under owner,
// or nil when part of the path is missing.
func resolvePath(owner *Item, path []domain.Value) *Item {
	cur := owner
	for _, key := range path {
		cur = findGroup(cur.Children(), key)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// fetchChildren builds the children of a service item off-tree from the
// contributor it hosts. It does not need the executor.
func (m *Model) fetchChildren(ctx context.Context, it *Item) ([]*Item, error) {
	p := it.provider()
	if p == nil {
		return []*Item{}, nil
	}
	return m.buildChildren(ctx, it, p)
}

// install publishes fetched children. It runs on the executor. A failed fetch
// leaves the item uninitialized so a later access retries. It reports stale
// when a StructureChanged arrived after the fetch started under gen.
func (m *Model) install(ctx context.Context, it *Item, children []*Item, err error, start time.Time, gen uint64) (stale bool, _ error) {
	if it.structure.Load() != gen && !it.IsRemoved() {
		return true, nil
	}
	ev := &domain.LoadEvent{
		ItemID:      it.ID(),
		Contributor: it.RootContributor().Name(),
		Err:         err,
	}
	if err != nil {
		it.state.CompareAndSwap(int32(domain.Initializing), int32(domain.Uninitialized))
		ev.Duration = time.Since(start)
		m.loaded(ctx, ev)
		if isCancellation(err) {
			return false, err
		}
		return false, nil
	}
	if it.LoadState() == domain.Loaded || it.IsRemoved() {
		return false, nil
	}

	it.setChildren(children)
	it.state.Store(int32(domain.Loaded))
	ev.Children = len(children)
	ev.Duration = time.Since(start)
	m.loaded(ctx, ev)
	return false, nil
}

// load fetches and installs inline. Callers already run on the executor.
func (m *Model) load(ctx context.Context, it *Item) error {
	if it.LoadState() == domain.Loaded || it.IsRemoved() {
		return nil
	}
	start := time.Now()
	gen := it.structure.Load()
	children, err := m.fetchChildren(ctx, it)
	_, err = m.install(ctx, it, children, err, start, gen)
	return err
}

// loadAsync fetches on its own goroutine so a slow contributor never holds the
// executor, then installs the result through it. A fetch overtaken by a
// StructureChanged is thrown away and repeated.
func (m *Model) loadAsync(it *Item, fut *Future) {
	var ierr error
	for {
		start := time.Now()
		gen := it.structure.Load()
		children, err := m.fetchChildren(m.life, it)
		var stale bool
		ierr = m.exec.Do(m.life, func(ctx context.Context) error {
			var err2 error
			stale, err2 = m.install(ctx, it, children, err, start, gen)
			return err2
		})
		if ierr != nil || !stale {
			break
		}
		m.logger.Debug("Stale children discarded", "item", it.ID())
	}
	if ierr != nil {
		it.state.CompareAndSwap(int32(domain.Initializing), int32(domain.Uninitialized))
	}

	it.mu.Lock()
	it.pending = nil
	it.mu.Unlock()
	fut.complete(ierr)
}

func (m *Model) loaded(ctx context.Context, ev *domain.LoadEvent) {
	m.logger.Debug("Children loaded", "item", ev.ItemID, "contributor", ev.Contributor, "children", ev.Children, "err", ev.Err)
	if m.hooks.OnLoad != nil {
		m.hooks.OnLoad(ctx, ev)
	}
}
