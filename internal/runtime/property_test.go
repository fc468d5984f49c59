package runtime_test

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"pgregory.net/rapid"
)

var (
	keys   = []string{"k0", "k1", "k2", "k3", "k4", "k5"}
	groups = []string{"", "g1", "g2", "g1/sub"}
	texts  = []string{"alpha", "beta", "gamma", "item2", "item10"}
)

// drawEvents produces a random event sequence for one contributor class.
func drawEvents(t *rapid.T, class, label string) []domain.Event {
	n := rapid.IntRange(0, 30).Draw(t, label+"-len")
	events := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		v := svc{
			id:    rapid.SampledFrom(keys).Draw(t, label+"-key"),
			text:  rapid.SampledFrom(texts).Draw(t, label+"-text"),
			group: rapid.SampledFrom(groups).Draw(t, label+"-group"),
		}
		switch rapid.IntRange(0, 5).Draw(t, label+"-kind") {
		case 0, 1:
			events = append(events, domain.Added(v, nil, class))
		case 2:
			events = append(events, domain.Removed(v, class))
		case 3:
			events = append(events, domain.Changed(v, class))
		case 4:
			events = append(events, domain.GroupChanged(v, class))
		case 5:
			events = append(events, domain.StructureChanged(v, class))
		}
	}
	return events
}

// rapidModel builds a model for one rapid iteration; callers close it.
func rapidModel(t *rapid.T, contributors ...ports.Contributor) *runtime.Model {
	reg, err := registry.NewRegistry(contributors...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return runtime.NewModel(reg)
}

func submitAll(t *rapid.T, m *runtime.Model, events []domain.Event) {
	ctx := context.Background()
	var last *runtime.Future
	for _, ev := range events {
		last = m.Submit(ctx, ev)
	}
	if last != nil {
		if err := last.Wait(ctx); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
}

// Interleaving events of independent contributors on the single executor
// yields the same tree as applying each contributor's sequence on its own.
func TestProperty_InterleavedContributorsDoNotInterfere(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := &static{name: "A", grouping: true}
		b := &static{name: "B", grouping: true, compare: byIDDesc}

		evA := drawEvents(t, "A", "a")
		evB := drawEvents(t, "B", "b")

		var mixed []domain.Event
		i, j := 0, 0
		for i < len(evA) || j < len(evB) {
			takeA := j >= len(evB) || (i < len(evA) && rapid.Bool().Draw(t, "pick"))
			if takeA {
				mixed = append(mixed, evA[i])
				i++
			} else {
				mixed = append(mixed, evB[j])
				j++
			}
		}

		interleaved := rapidModel(t, a, b)
		defer interleaved.Close()
		submitAll(t, interleaved, mixed)

		onlyA := rapidModel(t, a, b)
		defer onlyA.Close()
		submitAll(t, onlyA, evA)
		onlyB := rapidModel(t, a, b)
		defer onlyB.Close()
		submitAll(t, onlyB, evB)

		var merged []runtime.Node
		if r := onlyA.Root("A"); r != nil {
			merged = append(merged, runtime.NodeOf(r))
		}
		if r := onlyB.Root("B"); r != nil {
			merged = append(merged, runtime.NodeOf(r))
		}
		got := interleaved.Snapshot()
		if len(got) == 0 && len(merged) == 0 {
			return
		}
		if fmt.Sprint(got) != fmt.Sprint(merged) {
			t.Fatalf("interleaved tree differs\n got: %v\nwant: %v", got, merged)
		}
	})
}

// Children of an ordered contributor stay sorted whatever the add/remove mix.
func TestProperty_ComparatorOrderHolds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := &static{name: "C", compare: byIDDesc}
		m := rapidModel(t, c)
		defer m.Close()
		ctx := context.Background()

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			v := svc{id: rapid.SampledFrom(keys).Draw(t, "key")}
			ev := domain.Added(v, nil, "C")
			if rapid.IntRange(0, 2).Draw(t, "remove") == 0 {
				ev = domain.Removed(v, "C")
			}
			if err := m.Apply(ctx, ev); err != nil {
				t.Fatalf("apply: %v", err)
			}

			root := m.Root("C")
			if root == nil {
				continue
			}
			got := ids(root.Children())
			want := slices.Clone(got)
			sort.Slice(want, func(i, j int) bool { return want[i] > want[j] })
			if !slices.Equal(got, want) {
				t.Fatalf("children out of order: %v", got)
			}
			if len(slices.Compact(slices.Clone(want))) != len(want) {
				t.Fatalf("duplicate children: %v", got)
			}
		}
	})
}

// A lazy subtree is never reported as empty by a search: the search either
// finds what is inside or loads it first.
func TestProperty_SearchSeesLazySubtrees(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		width := rapid.IntRange(1, 4).Draw(t, "width")
		hidden := rapid.IntRange(0, width-1).Draw(t, "hidden")

		var top []domain.Value
		for i := 0; i < width; i++ {
			var values []domain.Value
			if i == hidden {
				values = append(values, svc{id: "needle"})
			}
			values = append(values, svc{id: fmt.Sprintf("hay-%d", i)})
			lazy := &static{name: fmt.Sprintf("lazy-%d", i), lazy: true, values: values}
			top = append(top, svc{id: fmt.Sprintf("host-%d", i), hosted: lazy})
		}
		root := &static{name: "R", values: top}
		m := rapidModel(t, root)
		defer m.Close()
		ctx := context.Background()
		if err := m.Refresh(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}

		found, err := m.FindByID(ctx, "needle")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found == nil {
			t.Fatalf("needle not found under host-%d", hidden)
		}
		if got := found.Parent().ID(); got != fmt.Sprintf("host-%d", hidden) {
			t.Fatalf("needle found under %s", got)
		}
		// Hosts after the hit were never forced.
		for i := hidden + 1; i < width; i++ {
			host := m.Root("R").Children()[i]
			if host.LoadState() == domain.Loaded {
				t.Fatalf("%s loaded needlessly", host.ID())
			}
		}
	})
}

// Resets racing from several goroutines serialize: whatever the interleaving,
// roots end up in registry order and every non-empty contributor has one.
func TestProperty_ConcurrentResetsKeepRegistryOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 5).Draw(t, "contributors")
		var contributors []ports.Contributor
		var want []string
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("C%d", i)
			c := &static{name: name}
			if rapid.Bool().Draw(t, name+"-present") {
				c.values = []domain.Value{svc{id: name + "-svc"}}
				want = append(want, name)
			}
			contributors = append(contributors, c)
		}
		m := rapidModel(t, contributors...)
		defer m.Close()

		workers := rapid.IntRange(1, 4).Draw(t, "workers")
		plans := make([][]string, workers)
		for w := range plans {
			steps := rapid.IntRange(1, 8).Draw(t, fmt.Sprintf("steps-%d", w))
			for s := 0; s < steps; s++ {
				i := rapid.IntRange(0, n-1).Draw(t, fmt.Sprintf("reset-%d-%d", w, s))
				plans[w] = append(plans[w], fmt.Sprintf("C%d", i))
			}
		}

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for _, plan := range plans {
			wg.Add(1)
			go func(plan []string) {
				defer wg.Done()
				for _, name := range plan {
					if err := m.Reset(context.Background(), name); err != nil {
						errs <- err
						return
					}
				}
			}(plan)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("reset: %v", err)
		}

		// Contributors never reset have no root yet.
		reset := make(map[string]bool)
		for _, plan := range plans {
			for _, name := range plan {
				reset[name] = true
			}
		}
		var expected []string
		for _, name := range want {
			if reset[name] {
				expected = append(expected, name)
			}
		}
		if got := ids(m.Roots()); !slices.Equal(got, expected) {
			t.Fatalf("roots %v, want %v", got, expected)
		}
	})
}

// A reader walking the tree while services hop between groups finds each of
// them exactly once on every pass.
func TestProperty_MovesAreAtomicForReaders(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := rapidModel(t, &static{name: "B", grouping: true})
		defer m.Close()
		ctx := context.Background()

		moving := []string{"x", "y", "z"}
		for _, id := range moving {
			start := svc{id: id, group: rapid.SampledFrom(groups).Draw(t, id+"-start")}
			if err := m.Apply(ctx, domain.Added(start, nil, "B")); err != nil {
				t.Fatalf("add %s: %v", id, err)
			}
		}
		n := rapid.IntRange(1, 40).Draw(t, "moves")
		events := make([]domain.Event, 0, n)
		for i := 0; i < n; i++ {
			v := svc{
				id:    rapid.SampledFrom(moving).Draw(t, "id"),
				group: rapid.SampledFrom(groups).Draw(t, "group"),
			}
			events = append(events, domain.GroupChanged(v, "B"))
		}

		stop := make(chan struct{})
		broken := make(chan string, 1)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				root := m.Root("B")
				for _, id := range moving {
					if seen := occurrences(root, id); seen != 1 {
						broken <- fmt.Sprintf("%s seen %d times", id, seen)
						return
					}
				}
			}
		}()

		submitAll(t, m, events)
		close(stop)
		wg.Wait()
		select {
		case msg := <-broken:
			t.Fatalf("reader saw a half-applied move: %s", msg)
		default:
		}
	})
}
