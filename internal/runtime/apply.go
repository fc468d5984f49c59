package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// apply runs one event against the tree. It must hold the executor run lock.
func (m *Model) apply(ctx context.Context, ev domain.Event) error {
	start := time.Now()

	var err error
	switch ev.Kind {
	case domain.EventAdded:
		err = m.applyAdded(ctx, ev)
	case domain.EventRemoved:
		m.applyRemoved(ev)
	case domain.EventChanged:
		m.applyChanged(ev, false)
	case domain.EventStructureChanged:
		m.applyChanged(ev, true)
	case domain.EventGroupChanged:
		m.applyGroupChanged(ctx, ev)
	case domain.EventGroupingKeyChanged:
		m.applyGroupingKey(ev)
	case domain.EventReset:
		err = m.reset(ctx, ev.Contributor)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if err != nil {
		m.logger.Warn("Event aborted", "event", ev.String(), "err", err)
		return err
	}

	m.applied(ctx, ev, start)
	return nil
}

func (m *Model) applied(ctx context.Context, ev domain.Event, start time.Time) {
	if m.hooks.OnEventApplied != nil {
		m.hooks.OnEventApplied(ctx, &domain.AppliedEvent{
			Event:     ev,
			Duration:  time.Since(start),
			Timestamp: start,
		})
	}
	m.notify(ctx, ev)
}

func (m *Model) skip(ev domain.Event, reason string) {
	m.logger.Debug("Event ignored", "event", ev.String(), "reason", reason)
}

func (m *Model) applyAdded(ctx context.Context, ev domain.Event) error {
	if ev.Target == nil {
		m.skip(ev, "no target")
		return nil
	}
	root := m.Root(ev.Contributor)

	if ev.Parent != nil {
		if root == nil {
			m.skip(ev, "no contributor root")
			return nil
		}
		parent := find(root, func(it *Item) bool {
			return it.kind == KindService && it.ID() == ev.Parent.ID()
		})
		if parent == nil {
			m.skip(ev, "parent not found")
			return nil
		}
		p := parent.provider()
		if p == nil {
			m.skip(ev, domain.ErrNoProvider.Error())
			return nil
		}
		if parent.LoadState() != domain.Loaded {
			// The pending or future load fetches the value anyway.
			m.skip(ev, "parent not loaded")
			return nil
		}
		m.addUnder(ctx, parent, p, ev.Target)
		return nil
	}

	if root != nil {
		m.addUnder(ctx, root, root.contributor, ev.Target)
		return nil
	}

	c, ok := m.registry.Lookup(ev.Contributor)
	if !ok {
		m.skip(ev, domain.ErrUnknownContributor.Error())
		return nil
	}
	fresh := m.newRoot(c)
	m.addUnder(ctx, fresh, c, ev.Target)
	if len(fresh.Children()) == 0 {
		return nil
	}
	roots := m.insertRoot(m.Roots(), fresh)
	m.roots.Store(&roots)
	return nil
}

// addUnder inserts a contributed value under owner unless it is already there.
func (m *Model) addUnder(ctx context.Context, owner *Item, c ports.Contributor, target domain.Value) {
	caps := ports.CapabilitiesOf(c)
	v := resolve(caps, target)
	if findOwned(owner, v.ID()) != nil {
		return
	}
	path, err := m.groupPath(ctx, c, caps, v)
	if err != nil {
		return
	}
	cs := newChangeset()
	m.place(cs, owner, m.newService(v, c, caps), path)
	cs.commit()
}

func resolve(caps ports.Capabilities, v domain.Value) domain.Value {
	ref, ok := v.(domain.Ref)
	if !ok || caps.Resolve == nil {
		return v
	}
	if rv, ok := caps.Resolve(string(ref)); ok && rv != nil {
		return rv
	}
	return v
}

func (m *Model) applyRemoved(ev domain.Event) {
	it := m.locate(ev)
	if it == nil {
		m.skip(ev, "not found")
		return
	}
	m.remove(it)
}

// remove tombstones it and every ancestor group or contributor left empty,
// publishing the cut with a single swap at the highest surviving parent.
func (m *Model) remove(it *Item) {
	it.removed.Store(true)
	cur := it
	for {
		p := cur.Parent()
		if p == nil {
			roots := without(m.Roots(), cur)
			m.roots.Store(&roots)
			return
		}
		rest := without(p.Children(), cur)
		if len(rest) == 0 && p.kind != KindService {
			p.removed.Store(true)
			cur = p
			continue
		}
		p.setChildren(rest)
		return
	}
}

func (m *Model) applyChanged(ev domain.Event, structure bool) {
	it := m.locate(ev)
	if it == nil {
		m.skip(ev, "not found")
		return
	}
	it.setValue(ev.Target)
	it.invalidate()

	// A new descriptor may move the item under a text comparator.
	if it.caps.Ordered() {
		if p := it.Parent(); p != nil {
			p.setChildren(insertService(without(p.Children(), it), it, it.caps.Compare))
		}
	}

	if !structure {
		return
	}
	it.structure.Add(1)
	if it.LoadState() == domain.Initializing {
		// The load in flight sees the bump and fetches again.
		return
	}
	for _, c := range it.Children() {
		c.removed.Store(true)
	}
	it.setChildren([]*Item{})
	if it.provider() == nil {
		it.state.Store(int32(domain.Loaded))
	} else {
		it.state.Store(int32(domain.Uninitialized))
	}
}

func (m *Model) applyGroupChanged(ctx context.Context, ev domain.Event) {
	it := m.locate(ev)
	if it == nil {
		m.skip(ev, "not found")
		return
	}
	it.setValue(ev.Target)
	it.invalidate()

	host := it.Parent()
	for host != nil && host.kind == KindGroup {
		host = host.Parent()
	}
	if host == nil {
		return
	}
	path, err := m.groupPath(ctx, it.contributor, it.caps, it.Value())
	if err != nil {
		return
	}

	old := it.Parent()
	if resolvePath(host, path) == old {
		old.setChildren(insertService(without(old.Children(), it), it, it.caps.Compare))
		return
	}

	cs := newChangeset()
	detach(cs, it, old, host)
	m.place(cs, host, it, path)
	cs.commit()
}

// detach records in cs the unlinking of it from parent, collapsing groups left
// empty up to host. The item itself is not tombstoned: it is re-attached.
func detach(cs *changeset, it, parent, host *Item) {
	cur, p := it, parent
	for {
		rest := without(cs.children(p), cur)
		if len(rest) == 0 && p != host && p.kind == KindGroup {
			cs.drop(p)
			delete(cs.lists, p)
			cur, p = p, p.Parent()
			continue
		}
		cs.set(p, rest)
		return
	}
}

func (m *Model) applyGroupingKey(ev domain.Event) {
	if ev.Target == nil {
		return
	}
	root := m.Root(ev.Contributor)
	if root == nil {
		return
	}
	key := ev.Target.ID()
	var groups []*Item
	walkGroups(root, func(g *Item) {
		if g.ID() == key {
			groups = append(groups, g)
		}
	})
	cs := newChangeset()
	for _, g := range groups {
		g.setValue(resolve(g.caps, ev.Target))
		g.invalidate()
		p := g.Parent()
		cs.set(p, insertGroup(without(cs.children(p), g), g))
	}
	cs.commit()
}

// reset rebuilds the subtree of a contributor class from scratch.
func (m *Model) reset(ctx context.Context, class string) error {
	var fresh *Item
	if c, ok := m.registry.Lookup(class); ok {
		var err error
		fresh, err = m.buildRoot(ctx, c)
		if err != nil {
			return err
		}
	}

	roots := m.Roots()
	if old := rootOf(roots, class); old != nil {
		old.removed.Store(true)
		roots = without(roots, old)
	}
	if fresh != nil {
		roots = m.insertRoot(roots, fresh)
	}
	m.roots.Store(&roots)
	return nil
}

// insertRoot places a contributor root after the nearest predecessor, in
// registry order, that currently has a root.
func (m *Model) insertRoot(roots []*Item, root *Item) []*Item {
	names := m.registry.Names()
	idx := -1
	for i, n := range names {
		if n == root.ID() {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0; i-- {
		for j, r := range roots {
			if r.ID() == names[i] {
				return inserted(roots, j+1, root)
			}
		}
	}
	return inserted(roots, 0, root)
}

func rootOf(roots []*Item, class string) *Item {
	for _, r := range roots {
		if r.ID() == class {
			return r
		}
	}
	return nil
}

// locate finds the service item an event targets within its contributor class.
func (m *Model) locate(ev domain.Event) *Item {
	if ev.Target == nil {
		return nil
	}
	root := m.Root(ev.Contributor)
	if root == nil {
		return nil
	}
	id := ev.Target.ID()
	return find(root, func(it *Item) bool {
		return it.kind == KindService && it.ID() == id
	})
}

// find walks the loaded subtree below from depth first.
func find(from *Item, match func(*Item) bool) *Item {
	for _, c := range from.Children() {
		if match(c) {
			return c
		}
		if hit := find(c, match); hit != nil {
			return hit
		}
	}
	return nil
}

// walkGroups visits the groups of owner, not those of other services' children.
func walkGroups(owner *Item, visit func(*Item)) {
	for _, c := range owner.Children() {
		if c.kind == KindGroup {
			visit(c)
			walkGroups(c, visit)
		}
	}
}

// findOwned looks for a service supplied directly to owner, through its groups
// but not into other services' children.
func findOwned(owner *Item, id string) *Item {
	for _, c := range owner.Children() {
		switch c.kind {
		case KindService:
			if c.ID() == id {
				return c
			}
		case KindGroup:
			if hit := findOwned(c, id); hit != nil {
				return hit
			}
		}
	}
	return nil
}
