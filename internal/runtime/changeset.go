package runtime

import (
	"slices"
)

// changeset gathers new child lists built off-tree and publishes them with a
// single swap at the lowest common ancestor of every edited item.
//
// Groups between an edited item and that ancestor are replaced by copies
// carrying the new lists, so a reader descending from any published snapshot
// sees either none or all of the edit.
type changeset struct {
	lists   map[*Item][]*Item
	dropped []*Item
}

func newChangeset() *changeset {
	return &changeset{lists: make(map[*Item][]*Item)}
}

// children returns the pending list of it, falling back to the published one.
func (cs *changeset) children(it *Item) []*Item {
	if list, ok := cs.lists[it]; ok {
		return list
	}
	return it.Children()
}

func (cs *changeset) set(it *Item, list []*Item) {
	cs.lists[it] = list
}

// drop tombstones it once the changeset is published.
func (cs *changeset) drop(it *Item) {
	cs.dropped = append(cs.dropped, it)
}

// flush stores every pending list directly. Only for items nobody can read yet.
func (cs *changeset) flush() {
	for it, list := range cs.lists {
		it.setChildren(list)
	}
}

// commit publishes the changeset. Every item strictly between an edited item
// and the common ancestor must be a group.
func (cs *changeset) commit() {
	if len(cs.lists) == 0 {
		return
	}
	top := cs.ancestor()
	if top == nil {
		cs.flush()
		cs.tombstone(nil)
		return
	}

	var copied []*Item
	for it := range cs.lists {
		for cur := it; cur != top; cur = cur.Parent() {
			if !slices.Contains(copied, cur) {
				copied = append(copied, cur)
			}
		}
	}
	slices.SortFunc(copied, func(a, b *Item) int { return depth(b) - depth(a) })

	clones := make(map[*Item]*Item, len(copied))
	substitute := func(list []*Item) []*Item {
		out := make([]*Item, len(list))
		for i, c := range list {
			if cl, ok := clones[c]; ok {
				c = cl
			}
			out[i] = c
		}
		return out
	}
	for _, it := range copied {
		clones[it] = it.clone(substitute(cs.children(it)))
	}
	for _, cl := range clones {
		for _, c := range cl.Children() {
			c.parent.Store(cl)
		}
	}

	top.setChildren(substitute(cs.children(top)))
	cs.tombstone(copied)
}

func (cs *changeset) tombstone(replaced []*Item) {
	for _, it := range replaced {
		it.removed.Store(true)
	}
	for _, it := range cs.dropped {
		it.removed.Store(true)
	}
}

// ancestor returns the deepest item that is an ancestor of, or equal to, every
// edited item. It is nil when they live in different trees.
func (cs *changeset) ancestor() *Item {
	var common []*Item
	first := true
	for it := range cs.lists {
		chain := lineage(it)
		if first {
			common, first = chain, false
			continue
		}
		n := 0
		for n < len(common) && n < len(chain) && common[n] == chain[n] {
			n++
		}
		common = common[:n]
	}
	if len(common) == 0 {
		return nil
	}
	return common[len(common)-1]
}

// lineage lists the ancestors of it from the top down, ending with it.
func lineage(it *Item) []*Item {
	var chain []*Item
	for cur := it; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	slices.Reverse(chain)
	return chain
}

func depth(it *Item) int {
	n := 0
	for cur := it.Parent(); cur != nil; cur = cur.Parent() {
		n++
	}
	return n
}
