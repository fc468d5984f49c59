package domain

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNaturalCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "node", "node", 0},
		{"digit runs by value", "node2", "node10", -1},
		{"case insensitive first", "alpha", "Beta", -1},
		{"case breaks ties", "Node", "node", -1},
		{"leading zeros", "v01", "v1", 1},
		{"prefix sorts first", "web", "web1", -1},
		{"long runs", "x99999999999999999999", "x100000000000000000000", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sign(NaturalCompare(tt.a, tt.b)))
			assert.Equal(t, -tt.want, sign(NaturalCompare(tt.b, tt.a)))
		})
	}
}

func TestNaturalCompare_SortsLikePeopleDo(t *testing.T) {
	names := []string{"item10", "Item1", "item2", "item1a"}
	sort.Slice(names, func(i, j int) bool { return NaturalCompare(names[i], names[j]) < 0 })
	assert.Equal(t, []string{"Item1", "item1a", "item2", "item10"}, names)
}

func TestNaturalCompare_TotalOrder(t *testing.T) {
	gen := rapid.StringMatching(`[a-cA-C0-2]{0,6}`)
	rapid.Check(t, func(t *rapid.T) {
		a, b, c := gen.Draw(t, "a"), gen.Draw(t, "b"), gen.Draw(t, "c")
		if sign(NaturalCompare(a, b)) != -sign(NaturalCompare(b, a)) {
			t.Fatalf("not antisymmetric: %q %q", a, b)
		}
		if (NaturalCompare(a, b) == 0) != (a == b) {
			t.Fatalf("distinct strings compare equal: %q %q", a, b)
		}
		if NaturalCompare(a, b) < 0 && NaturalCompare(b, c) < 0 && NaturalCompare(a, c) >= 0 {
			t.Fatalf("not transitive: %q %q %q", a, b, c)
		}
	})
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
