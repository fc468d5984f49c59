package runtime

// Node is a serializable copy of an item and its loaded subtree.
type Node struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
	Icon        string `json:"icon,omitempty"`
	Contributor string `json:"contributor"`
	State       string `json:"state"`
	Children    []Node `json:"children,omitempty"`
}

// Snapshot copies the loaded part of the tree. It never triggers a load.
func (m *Model) Snapshot() []Node {
	return Snapshot(m.Roots())
}

// Snapshot copies items and their loaded subtrees.
func Snapshot(items []*Item) []Node {
	out := make([]Node, 0, len(items))
	for _, it := range items {
		out = append(out, NodeOf(it))
	}
	return out
}

// NodeOf copies one item and its loaded subtree.
func NodeOf(it *Item) Node {
	d := it.Descriptor()
	n := Node{
		ID:          it.ID(),
		Kind:        it.kind.String(),
		Text:        d.TextOr(it.ID()),
		Icon:        d.Icon,
		Contributor: it.RootContributor().Name(),
		State:       it.LoadState().String(),
	}
	if children := it.Children(); len(children) > 0 {
		n.Children = Snapshot(children)
	}
	return n
}
