// Package linker builds the cross-script call graph, classifies its strongly
// connected components, and drives the ordered rewrite that finalizes every
// script's content hash.
package linker

import (
	"fmt"
	"sort"
)

// Graph is the directed call graph of one batch: an edge runs from caller to
// callee. Unlike a dependency DAG it may legitimately contain cycles,
// including self-edges; the linker classifies them instead of rejecting
// them.
type Graph struct {
	nodes   map[string]bool
	callees map[string][]string // caller -> callees (outgoing)
	callers map[string][]string // callee -> callers (incoming)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]bool),
		callees: make(map[string][]string),
		callers: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(id string) {
	if !g.nodes[id] {
		g.nodes[id] = true
		g.callees[id] = []string{}
		g.callers[id] = []string{}
	}
}

// AddEdge adds a directed edge from caller to callee. Duplicate edges
// collapse; self-edges are permitted and classify the node as cyclic.
func (g *Graph) AddEdge(callerID, calleeID string) error {
	if !g.nodes[callerID] {
		return fmt.Errorf("caller node %q does not exist", callerID)
	}
	if !g.nodes[calleeID] {
		return fmt.Errorf("callee node %q does not exist", calleeID)
	}

	if !contains(g.callees[callerID], calleeID) {
		g.callees[callerID] = append(g.callees[callerID], calleeID)
	}
	if !contains(g.callers[calleeID], callerID) {
		g.callers[calleeID] = append(g.callers[calleeID], callerID)
	}
	return nil
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	return g.nodes[id]
}

// Callees returns the outgoing neighbors of a node.
func (g *Graph) Callees(id string) []string {
	return g.callees[id]
}

// Callers returns the incoming neighbors of a node.
func (g *Graph) Callers(id string) []string {
	return g.callers[id]
}

// HasSelfEdge reports whether the node calls itself.
func (g *Graph) HasSelfEdge(id string) bool {
	return contains(g.callees[id], id)
}

// Nodes returns all node IDs, sorted for deterministic output.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, out := range g.callees {
		count += len(out)
	}
	return count
}

// sortedCallees returns a sorted copy of a node's outgoing neighbors; the
// traversal order of the SCC pass must not depend on insertion order.
func (g *Graph) sortedCallees(id string) []string {
	out := make([]string, len(g.callees[id]))
	copy(out, g.callees[id])
	sort.Strings(out)
	return out
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
