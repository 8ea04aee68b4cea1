// Package depgraph implements the generic push-pull reactive substrate
// used by callers that don't need the full ComputedGraph machinery:
// Mutable[T] holds a settable value, ComputedProperty[T] is a pure
// function of other nodes recomputed lazily when dirtied, and Index[K,V]
// derives a grouping from a ComputedProperty. Every computed node's level
// is bounded below by one plus the max level of the nodes it read during
// its last computation; recomputation always proceeds lowest level first
// so a node is never recomputed before its dependencies are current.
package depgraph

import (
	"container/heap"
)

type node interface {
	id() int
	level() int
	isDirty() bool
	markDirty()
	recompute(g *Graph)
}

// Graph owns a set of Mutable/ComputedProperty/Index nodes and the edges
// that arose from actually reading one inside another's computation.
// Like ComputedGraph, this is single-threaded cooperative: all reads and
// writes happen on one logical goroutine via a scoped "currently
// computing" stack, not a global lock.
type Graph struct {
	nextID  int
	nodes   map[int]node
	edges   *twoWaySetMap[int, int] // dep id -> set of dependent ids
	stack   []int                   // ids currently being computed, innermost last
	pending dirtyHeap
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[int]node),
		edges: newTwoWaySetMap[int, int](),
	}
}

func (g *Graph) allocID() int {
	g.nextID++
	return g.nextID
}

func (g *Graph) register(n node) {
	g.nodes[n.id()] = n
}

// recordRead registers that the node currently on top of the reading
// stack depends on depID, the way a property read inside another
// property's computation creates a q→p edge in ComputedGraph.
func (g *Graph) recordRead(depID int) {
	if len(g.stack) == 0 {
		return
	}
	reader := g.stack[len(g.stack)-1]
	g.edges.insert(depID, reader)
}

// markDependentsDirty walks the dependents of id (direct and transitive)
// and marks them dirty, the way a mutable's onChanged() propagates
// upward through listeners.
func (g *Graph) markDependentsDirty(id int) {
	visited := map[int]bool{}
	var walk func(int)
	walk = func(cur int) {
		for _, dependent := range g.edges.getValues(cur) {
			if visited[dependent] {
				continue
			}
			visited[dependent] = true
			if n, ok := g.nodes[dependent]; ok {
				n.markDirty()
			}
			walk(dependent)
		}
	}
	walk(id)
}

func (g *Graph) beginCompute(id int) {
	g.edges.dropValue(id) // clear stale deps; they'll be re-recorded this pass
	g.stack = append(g.stack, id)
}

func (g *Graph) endCompute() {
	g.stack = g.stack[:len(g.stack)-1]
}

// levelOf returns the level of a recorded dependency, used by
// recomputation to compute 1+max(dep levels).
func (g *Graph) levelOf(id int) int {
	if n, ok := g.nodes[id]; ok {
		return n.level()
	}
	return 0
}

// depsOf returns the ids read during the most recent computation of id.
func (g *Graph) depsOf(id int) []int {
	return g.edges.getKeys(id)
}

// dirtyHeap orders pending recomputation by ascending level so a node's
// dependencies (always lower level) are recomputed first.
type dirtyHeap []node

func (h dirtyHeap) Len() int            { return len(h) }
func (h dirtyHeap) Less(i, j int) bool  { return h[i].level() < h[j].level() }
func (h dirtyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *dirtyHeap) Push(x interface{}) { *h = append(*h, x.(node)) }
func (h *dirtyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Flush recomputes every dirty node in the graph, lowest level first,
// until none remain dirty. A computed node's recompute is expected to
// mark its own dependents dirty when its value changes (see
// ComputedProperty.recompute), so repeated scans converge once no node's
// output changes. Unlike ComputedGraph's flush, this substrate has no
// lazy/orphan bookkeeping or cycle tagging — callers that need those use
// ComputedGraph directly.
func (g *Graph) Flush() {
	for {
		h := make(dirtyHeap, 0, len(g.nodes))
		for _, n := range g.nodes {
			if n.isDirty() {
				h = append(h, n)
			}
		}
		if len(h) == 0 {
			return
		}
		heap.Init(&h)
		for h.Len() > 0 {
			n := heap.Pop(&h).(node)
			if n.isDirty() {
				n.recompute(g)
			}
		}
	}
}
