package runtime

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Predicate matches or prunes items during a search.
type Predicate func(*Item) bool

// FindByPredicate searches the tree breadth first and returns the first item
// accepted by match. descend, when set, decides whether the children of a
// visited item are explored.
//
// Loaded structure is explored before anything lazy: unloaded items whose
// hosted contributor is lazy are deferred to a second queue that is only drained,
// one forced load at a time, once the first queue is empty. A load that fails
// or exceeds the load timeout hides only its own subtree.
// A nil item with a nil error means not found.
func (m *Model) FindByPredicate(ctx context.Context, match, descend Predicate) (*Item, error) {
	primary := append([]*Item(nil), m.Roots()...)
	var deferred []*Item

	for {
		for len(primary) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			it := primary[0]
			primary = primary[1:]
			if it.IsRemoved() {
				continue
			}
			if match(it) {
				return it, nil
			}
			if descend != nil && !descend(it) {
				continue
			}
			if it.LoadState() == domain.Loaded {
				primary = append(primary, it.Children()...)
				continue
			}
			if it.lazy() {
				deferred = append(deferred, it)
				continue
			}
			children, err := m.forceLoad(ctx, it)
			if err != nil {
				return nil, err
			}
			primary = append(primary, children...)
		}

		if len(deferred) == 0 {
			return nil, nil
		}
		it := deferred[0]
		deferred = deferred[1:]
		if it.IsRemoved() {
			continue
		}
		children, err := m.forceLoad(ctx, it)
		if err != nil {
			return nil, err
		}
		primary = append(primary, children...)
	}
}

// forceLoad loads the children of it within the load timeout. Only the
// cancellation of ctx itself is reported; a timed out load yields nothing.
func (m *Model) forceLoad(ctx context.Context, it *Item) ([]*Item, error) {
	lctx := ctx
	if m.loadTimeout > 0 && !m.exec.InTask(ctx) {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, m.loadTimeout)
		defer cancel()
	}
	children, err := m.Children(lctx, it)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Debug("Subtree skipped", "item", it.ID(), "err", err)
		return nil, nil
	}
	return children, nil
}

// FindByPath descends from a contributor root following value IDs (group keys
// included), loading children as needed. It returns nil when a step is missing.
func (m *Model) FindByPath(ctx context.Context, contributor string, ids ...string) (*Item, error) {
	cur := m.Root(contributor)
	for _, id := range ids {
		if cur == nil {
			return nil, nil
		}
		children, err := m.Children(ctx, cur)
		if err != nil {
			return nil, err
		}
		cur = nil
		for _, c := range children {
			if c.ID() == id {
				cur = c
				break
			}
		}
	}
	return cur, nil
}

// FindByID returns the first item carrying the given value ID.
func (m *Model) FindByID(ctx context.Context, id string) (*Item, error) {
	return m.FindByPredicate(ctx, func(it *Item) bool {
		return it.kind != KindContributor && it.ID() == id
	}, nil)
}

// Path returns the value IDs leading from the contributor root to it,
// suitable for FindByPath.
func Path(it *Item) (contributor string, ids []string) {
	for cur := it; cur != nil; cur = cur.Parent() {
		if cur.Parent() == nil {
			contributor = cur.ID()
			break
		}
		ids = append(ids, cur.ID())
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return contributor, ids
}
