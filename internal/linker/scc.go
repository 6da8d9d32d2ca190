package linker

import "sort"

// Component is one strongly connected component of the call graph. A
// component is cyclic when it has more than one member or its single member
// calls itself; calls inside a cyclic component can never be hash-bound.
type Component struct {
	ID      int
	Members []string
	Cyclic  bool
}

// Condensation is the component DAG of a call graph. Components are indexed
// by ID in reverse topological order: every edge points from a component to
// a lower-numbered one, so iterating by ID visits callees before callers.
type Condensation struct {
	Components []Component
	ByNode     map[string]int
	Edges      map[int][]int // caller component -> callee components
	Levels     [][]int       // level 0 = sinks; members of one level share no edges
}

// Condense computes the strongly connected components of the graph and the
// DAG between them. The SCC pass emits components callees-first, which is
// exactly the order finalization needs.
func (g *Graph) Condense() *Condensation {
	cond := &Condensation{
		ByNode: make(map[string]int),
		Edges:  make(map[int][]int),
	}

	// Tarjan, iteratively: the recursion is replaced by an explicit frame
	// stack so pathological call chains cannot exhaust the goroutine stack.
	index := 0
	indices := make(map[string]int, len(g.nodes))
	lowlink := make(map[string]int, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string

	type frame struct {
		node      string
		neighbors []string
		next      int
	}

	for _, root := range g.Nodes() {
		if _, seen := indices[root]; seen {
			continue
		}
		indices[root] = index
		lowlink[root] = index
		index++
		stack = append(stack, root)
		onStack[root] = true
		frames := []frame{{node: root, neighbors: g.sortedCallees(root)}}

		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			if f.next < len(f.neighbors) {
				w := f.neighbors[f.next]
				f.next++
				if _, seen := indices[w]; !seen {
					indices[w] = index
					lowlink[w] = index
					index++
					stack = append(stack, w)
					onStack[w] = true
					frames = append(frames, frame{node: w, neighbors: g.sortedCallees(w)})
				} else if onStack[w] && indices[w] < lowlink[f.node] {
					lowlink[f.node] = indices[w]
				}
				continue
			}

			n := f.node
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].node
				if lowlink[n] < lowlink[parent] {
					lowlink[parent] = lowlink[n]
				}
			}
			if lowlink[n] == indices[n] {
				var members []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					members = append(members, w)
					if w == n {
						break
					}
				}
				sort.Strings(members)
				id := len(cond.Components)
				for _, m := range members {
					cond.ByNode[m] = id
				}
				cond.Components = append(cond.Components, Component{
					ID:      id,
					Members: members,
					Cyclic:  len(members) > 1 || g.HasSelfEdge(members[0]),
				})
			}
		}
	}

	cond.buildEdges(g)
	cond.buildLevels()
	return cond
}

// buildEdges collects the deduplicated cross-component edges.
func (c *Condensation) buildEdges(g *Graph) {
	seen := make(map[[2]int]bool)
	for _, caller := range g.Nodes() {
		cu := c.ByNode[caller]
		for _, callee := range g.sortedCallees(caller) {
			cv := c.ByNode[callee]
			if cu == cv || seen[[2]int{cu, cv}] {
				continue
			}
			seen[[2]int{cu, cv}] = true
			c.Edges[cu] = append(c.Edges[cu], cv)
		}
	}
	for id := range c.Edges {
		sort.Ints(c.Edges[id])
	}
}

// buildLevels groups components so that level 0 holds the sinks and every
// component sits one level above its deepest callee. Components within one
// level have no edges between them and can be processed in parallel.
func (c *Condensation) buildLevels() {
	depth := make([]int, len(c.Components))
	for i := range depth {
		depth[i] = -1
	}

	var level func(id int) int
	level = func(id int) int {
		if depth[id] >= 0 {
			return depth[id]
		}
		max := 0
		for _, callee := range c.Edges[id] {
			if l := level(callee) + 1; l > max {
				max = l
			}
		}
		depth[id] = max
		return max
	}

	maxLevel := 0
	for id := range c.Components {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}

	c.Levels = make([][]int, maxLevel+1)
	for id, l := range depth {
		c.Levels[l] = append(c.Levels[l], id)
	}
	for i := range c.Levels {
		sort.Ints(c.Levels[i])
	}
}

// Cyclic reports whether the node's component is cyclic.
func (c *Condensation) Cyclic(node string) bool {
	return c.Components[c.ByNode[node]].Cyclic
}

// SameComponent reports whether two nodes share a component.
func (c *Condensation) SameComponent(a, b string) bool {
	ca, ok := c.ByNode[a]
	if !ok {
		return false
	}
	cb, ok := c.ByNode[b]
	if !ok {
		return false
	}
	return ca == cb
}
