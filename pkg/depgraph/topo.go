package depgraph

import "github.com/fora-lang/cumulus/pkg/collections"

// TopoSort orders nodes by the directed edge map edges (node -> set of
// nodes it points to) so that every edge runs from an earlier to a later
// position. It returns ok == false when the graph is cyclic, along with
// the set of nodes Kahn's algorithm could not order: the members of every
// cycle plus every node reachable only through a cycle. Use
// StronglyConnectedComponents for the cycle members alone.
func TopoSort[T comparable](nodes []T, edges map[T][]T) (order []T, cyclic map[T]bool, ok bool) {
	indegree := make(map[T]int, len(nodes))
	for _, n := range nodes {
		indegree[n] = 0
	}
	for _, n := range nodes {
		for _, dst := range edges[n] {
			indegree[dst]++
		}
	}

	queue := collections.NewQueue[T](len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue.Enqueue(n)
		}
	}

	order = make([]T, 0, len(nodes))
	for {
		n, hasNext := queue.Dequeue()
		if !hasNext {
			break
		}
		order = append(order, n)
		for _, dst := range edges[n] {
			indegree[dst]--
			if indegree[dst] == 0 {
				queue.Enqueue(dst)
			}
		}
	}

	if len(order) == len(nodes) {
		return order, nil, true
	}

	// Nodes left with nonzero indegree are exactly the ones participating
	// in some cycle (plus anything only reachable through a cycle).
	cyclic = make(map[T]bool)
	for _, n := range nodes {
		if indegree[n] > 0 {
			cyclic[n] = true
		}
	}
	return order, cyclic, false
}

// StronglyConnectedComponents groups nodes such that two nodes share a
// group iff a cycle contains both, using Tarjan's algorithm. Nodes
// reachable by no cycle appear as singleton groups unless
// includeSingletons is false.
func StronglyConnectedComponents[T comparable](nodes []T, edges map[T][]T, includeSingletons bool) [][]T {
	idx := 0
	indices := make(map[T]int)
	lowlink := make(map[T]int)
	onStack := make(map[T]bool)
	stack := collections.NewStack[T](len(nodes))
	var components [][]T

	var strongconnect func(v T)
	strongconnect = func(v T) {
		indices[v] = idx
		lowlink[v] = idx
		idx++
		stack.Push(v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []T
			for {
				w, _ := stack.Pop()
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if includeSingletons || len(comp) > 1 || hasSelfLoop(v, edges) {
				components = append(components, comp)
			}
		}
	}

	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			strongconnect(n)
		}
	}
	return components
}

func hasSelfLoop[T comparable](v T, edges map[T][]T) bool {
	for _, w := range edges[v] {
		if w == v {
			return true
		}
	}
	return false
}
