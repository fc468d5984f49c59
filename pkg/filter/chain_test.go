package filter_test

import (
	"strings"
	"testing"

	"github.com/aretw0/arbor/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func prefix(p string) filter.Predicate[string] {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}

var items = []string{"a1", "a2", "b1", "b2", "c1"}

func TestChain_ApplySkipsSelfAndAncestors(t *testing.T) {
	c := filter.New[string]()
	main, err := c.Add(nil, nil)
	require.NoError(t, err)
	fa, err := c.Add(prefix("a"), main)
	require.NoError(t, err)
	fb, err := c.Add(prefix("b"), fa)
	require.NoError(t, err)

	// The main view sees neither extracted branch.
	assert.Equal(t, []string{"c1"}, c.Apply(items, main))
	// A skips itself and main, but B still applies.
	assert.Equal(t, []string{"a1", "a2", "c1"}, c.Apply(items, fa))
	// B skips itself and both ancestors.
	assert.Equal(t, items, c.Apply(items, fb))
	// No owner: everything applies.
	assert.Equal(t, []string{"c1"}, c.Apply(items, nil))

	assert.True(t, c.Visible("b1", fb))
	assert.False(t, c.Visible("b1", fa))
}

func TestChain_RemoveSplices(t *testing.T) {
	c := filter.New[string]()
	p, _ := c.Add(prefix("c"), nil)
	f, _ := c.Add(prefix("a"), p)
	g, _ := c.Add(prefix("b"), f)

	before := c.Apply(items, g)
	assert.Equal(t, items, before)

	require.True(t, c.Remove(f))
	assert.Same(t, p, c.Parent(g))
	assert.Nil(t, c.Parent(f))
	assert.Equal(t, 2, c.Len())

	// g still skips p; the removed predicate is gone for everyone.
	assert.Equal(t, items, c.Apply(items, g))
	assert.Equal(t, []string{"a1", "a2", "c1"}, c.Apply(items, p))

	assert.False(t, c.Remove(f))
}

func TestChain_AddRejectsUnknownParent(t *testing.T) {
	c := filter.New[string]()
	other := filter.New[string]()
	foreign, _ := other.Add(nil, nil)

	_, err := c.Add(prefix("a"), foreign)
	assert.ErrorIs(t, err, filter.ErrUnknownFilter)
	assert.Zero(t, c.Len())
}

func TestChain_ApplyDoesNotMutateInput(t *testing.T) {
	c := filter.New[string]()
	_, _ = c.Add(prefix("a"), nil)
	in := []string{"a1", "b1"}
	out := c.Apply(in, nil)
	assert.Equal(t, []string{"b1"}, out)
	assert.Equal(t, []string{"a1", "b1"}, in)
}

// Removing filters in any order never leaves a dangling parent and never
// creates a cycle.
func TestProperty_RemoveKeepsChainConnected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := filter.New[string]()
		var live []*filter.Filter[string]
		n := rapid.IntRange(1, 12).Draw(t, "n")
		for i := 0; i < n; i++ {
			var parent *filter.Filter[string]
			if len(live) > 0 && rapid.Bool().Draw(t, "has-parent") {
				parent = rapid.SampledFrom(live).Draw(t, "parent")
			}
			f, err := c.Add(prefix(string(rune('a'+i))), parent)
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			live = append(live, f)
		}

		removals := rapid.IntRange(0, n).Draw(t, "removals")
		for r := 0; r < removals && len(live) > 0; r++ {
			i := rapid.IntRange(0, len(live)-1).Draw(t, "victim")
			if !c.Remove(live[i]) {
				t.Fatalf("remove of live filter failed")
			}
			live = append(live[:i], live[i+1:]...)
		}

		registered := make(map[*filter.Filter[string]]bool)
		for _, f := range live {
			registered[f] = true
		}
		for _, f := range live {
			steps := 0
			for p := c.Parent(f); p != nil; p = c.Parent(p) {
				if !registered[p] {
					t.Fatalf("parent %s is not registered", p.ID())
				}
				steps++
				if steps > n {
					t.Fatalf("cycle through %s", f.ID())
				}
			}
		}
		if c.Len() != len(live) {
			t.Fatalf("len %d, want %d", c.Len(), len(live))
		}
	})
}
