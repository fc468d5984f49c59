package runtime

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Child lists are never modified in place: every helper below returns a new
// slice that the caller publishes with a single swap.

func inserted(items []*Item, i int, it *Item) []*Item {
	out := make([]*Item, 0, len(items)+1)
	out = append(out, items[:i]...)
	out = append(out, it)
	return append(out, items[i:]...)
}

func without(items []*Item, it *Item) []*Item {
	out := make([]*Item, 0, len(items))
	for _, c := range items {
		if c != it {
			out = append(out, c)
		}
	}
	return out
}

// firstGroup returns the index where the group run starts.
// Plain services always precede groups.
func firstGroup(items []*Item) int {
	for i, c := range items {
		if c.kind == KindGroup {
			return i
		}
	}
	return len(items)
}

// insertService places a service at its canonical position: before the first
// plain sibling comparing greater, or at the end of the plain run.
func insertService(items []*Item, it *Item, compare ports.CompareFunc) []*Item {
	end := firstGroup(items)
	pos := end
	if compare != nil {
		v := it.Value()
		for i := 0; i < end; i++ {
			if compare(items[i].Value(), v) > 0 {
				pos = i
				break
			}
		}
	}
	return inserted(items, pos, it)
}

// insertGroup places a group after every plain service, ordered by weight
// (weighted first, heavier first) and then by natural order of the text.
func insertGroup(items []*Item, g *Item) []*Item {
	pos := len(items)
	for i := firstGroup(items); i < len(items); i++ {
		if groupLess(g, items[i]) {
			pos = i
			break
		}
	}
	return inserted(items, pos, g)
}

// insertChild dispatches on the item kind.
func insertChild(items []*Item, it *Item, compare ports.CompareFunc) []*Item {
	if it.kind == KindGroup {
		return insertGroup(items, it)
	}
	return insertService(items, it, compare)
}

func groupLess(a, b *Item) bool {
	wa, aw := weightOf(a.Value())
	wb, bw := weightOf(b.Value())
	switch {
	case aw && !bw:
		return true
	case !aw && bw:
		return false
	case aw && bw && wa != wb:
		return wa > wb
	}
	return domain.NaturalCompare(a.Text(), b.Text()) < 0
}

func weightOf(v domain.Value) (int, bool) {
	if w, ok := v.(domain.Weighted); ok {
		return w.Weight(), true
	}
	return 0, false
}

// findGroup returns the group child whose key equals key.
func findGroup(items []*Item, key domain.Value) *Item {
	for i := firstGroup(items); i < len(items); i++ {
		if domain.SameValue(items[i].Value(), key) {
			return items[i]
		}
	}
	return nil
}

// guard runs a provider call, turning panics into errors.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
