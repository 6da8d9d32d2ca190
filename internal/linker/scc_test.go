package linker

import "testing"

func buildGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()
	g := NewGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", e[0], e[1], err)
		}
	}
	return g
}

func TestCondenseAcyclicChain(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}},
	)
	cond := g.Condense()

	if len(cond.Components) != 3 {
		t.Fatalf("got %d components, want 3", len(cond.Components))
	}
	for _, comp := range cond.Components {
		if comp.Cyclic {
			t.Errorf("component %v marked cyclic", comp.Members)
		}
	}
	// Callee components come first: every edge points to a lower ID.
	for from, tos := range cond.Edges {
		for _, to := range tos {
			if to >= from {
				t.Errorf("edge %d -> %d breaks callees-first ordering", from, to)
			}
		}
	}
	if cond.ByNode["c"] > cond.ByNode["b"] || cond.ByNode["b"] > cond.ByNode["a"] {
		t.Errorf("ByNode order: a=%d b=%d c=%d",
			cond.ByNode["a"], cond.ByNode["b"], cond.ByNode["c"])
	}
}

func TestCondenseThreeCycle(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}},
	)
	cond := g.Condense()

	if len(cond.Components) != 1 {
		t.Fatalf("got %d components, want 1", len(cond.Components))
	}
	comp := cond.Components[0]
	if !comp.Cyclic {
		t.Error("three-cycle not marked cyclic")
	}
	if len(comp.Members) != 3 {
		t.Errorf("members = %v", comp.Members)
	}
	if comp.Members[0] != "a" || comp.Members[1] != "b" || comp.Members[2] != "c" {
		t.Errorf("members not sorted: %v", comp.Members)
	}
}

func TestCondenseSelfLoop(t *testing.T) {
	g := buildGraph(t, []string{"a"}, [][2]string{{"a", "a"}})
	cond := g.Condense()

	if len(cond.Components) != 1 {
		t.Fatalf("got %d components", len(cond.Components))
	}
	if !cond.Components[0].Cyclic {
		t.Error("self-loop component not cyclic")
	}
	if !cond.Cyclic("a") {
		t.Error("Cyclic(a) = false")
	}
}

func TestCondenseMixed(t *testing.T) {
	// d -> (a <-> b) -> e
	g := buildGraph(t,
		[]string{"a", "b", "d", "e"},
		[][2]string{{"a", "b"}, {"b", "a"}, {"b", "e"}, {"d", "a"}},
	)
	cond := g.Condense()

	if len(cond.Components) != 3 {
		t.Fatalf("got %d components, want 3", len(cond.Components))
	}
	if !cond.SameComponent("a", "b") {
		t.Error("a and b not in one component")
	}
	if cond.SameComponent("a", "d") || cond.SameComponent("a", "e") {
		t.Error("unrelated nodes share a component")
	}
	if !cond.Cyclic("a") || !cond.Cyclic("b") {
		t.Error("cycle members not marked cyclic")
	}
	if cond.Cyclic("d") || cond.Cyclic("e") {
		t.Error("acyclic nodes marked cyclic")
	}

	// Levels: e is a sink, the a/b component sits above it, d above that.
	if got := len(cond.Levels); got != 3 {
		t.Fatalf("got %d levels, want 3", got)
	}
	levelOf := func(node string) int {
		id := cond.ByNode[node]
		for l, comps := range cond.Levels {
			for _, c := range comps {
				if c == id {
					return l
				}
			}
		}
		return -1
	}
	if levelOf("e") != 0 || levelOf("a") != 1 || levelOf("d") != 2 {
		t.Errorf("levels: e=%d a=%d d=%d", levelOf("e"), levelOf("a"), levelOf("d"))
	}
}

func TestCondenseIndependentChains(t *testing.T) {
	g := buildGraph(t,
		[]string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"c", "d"}},
	)
	cond := g.Condense()

	if len(cond.Levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(cond.Levels))
	}
	if len(cond.Levels[0]) != 2 || len(cond.Levels[1]) != 2 {
		t.Errorf("level sizes = %d, %d; want 2, 2",
			len(cond.Levels[0]), len(cond.Levels[1]))
	}
}
