// Package compgraph implements ComputationDependencyGraph: priority
// propagation across root and split computations, combining per-client
// root priorities with root→root and root→split dependency edges into
// one converged priority per id, tagging any non-converging cycle as
// circular rather than looping forever.
package compgraph

import (
	"sync"

	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/depgraph"
)

// key is the map key this package indexes everything by. ComputationId
// itself carries a []uint32 split path and so isn't comparable; its
// content-derived ID160 already uniquely identifies it (split ids hash
// their root plus address into the id), so every lookup goes through
// key and idOf recovers the full ComputationId when one must be
// returned to a caller.
type key = cumid.ID160

// Graph holds ComputationDependencyGraph's state: client→root priority
// inputs, root→root and root→split edges, the current propagated
// priority per id, the pending-reconvergence dirty set, and which ids
// are considered local to this machine.
type Graph struct {
	mu sync.Mutex

	idOf map[key]cumid.ComputationId

	clientPriority map[clientRootKey]cumid.ComputationPriority
	rootToRoot     map[key]map[key]struct{} // src -> dsts
	rootToSplit    map[key]map[key]struct{} // root -> splits
	splitOf        map[key]key              // split -> owning root
	splitDepth     map[key]int

	priority map[key]cumid.ComputationPriority
	dirty    map[key]bool
	local    map[key]bool

	// incoming tracks, for setDependencies bookkeeping, who currently
	// depends on id (the reverse of rootToRoot) so a dependency removal
	// can detect an id that just lost its last incoming edge.
	incoming map[key]map[key]struct{}
}

type clientRootKey struct {
	client cumid.CumulusClientId
	root   key
}

// New builds an empty ComputationDependencyGraph.
func New() *Graph {
	return &Graph{
		idOf:           map[key]cumid.ComputationId{},
		clientPriority: map[clientRootKey]cumid.ComputationPriority{},
		rootToRoot:     map[key]map[key]struct{}{},
		rootToSplit:    map[key]map[key]struct{}{},
		splitOf:        map[key]key{},
		splitDepth:     map[key]int{},
		priority:       map[key]cumid.ComputationPriority{},
		dirty:          map[key]bool{},
		local:          map[key]bool{},
		incoming:       map[key]map[key]struct{}{},
	}
}

func (g *Graph) keyOfLocked(id cumid.ComputationId) key {
	k := id.ID()
	if _, ok := g.idOf[k]; !ok {
		g.idOf[k] = id
	}
	return k
}

// SetClientPriority records client c's priority input for root r,
// marking r dirty for the next Update.
func (g *Graph) SetClientPriority(c cumid.CumulusClientId, r cumid.ComputationId, p cumid.ComputationPriority) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.keyOfLocked(r)
	g.clientPriority[clientRootKey{c, rk}] = p
	g.dirty[rk] = true
}

// AddRootToRootDependency registers a src→dst dependency edge (dst
// depends on src's priority). Idempotent; returns whether this call
// actually added a new edge.
func (g *Graph) AddRootToRootDependency(src, dst cumid.ComputationId) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	sk, dk := g.keyOfLocked(src), g.keyOfLocked(dst)
	if g.rootToRoot[sk] == nil {
		g.rootToRoot[sk] = map[key]struct{}{}
	}
	if _, exists := g.rootToRoot[sk][dk]; exists {
		return false
	}
	g.rootToRoot[sk][dk] = struct{}{}
	if g.incoming[dk] == nil {
		g.incoming[dk] = map[key]struct{}{}
	}
	g.incoming[dk][sk] = struct{}{}
	g.dirty[dk] = true
	return true
}

// SetDependencies replaces id's downtree root→root edges with deps. Any
// former dependent of id that loses its last incoming edge as a result
// and is not registered local is reported back as an orphaned split.
func (g *Graph) SetDependencies(id cumid.ComputationId, deps []cumid.ComputationId) (orphanedSplits []cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ik := g.keyOfLocked(id)
	newSet := map[key]struct{}{}
	for _, d := range deps {
		newSet[g.keyOfLocked(d)] = struct{}{}
	}

	old := g.rootToRoot[ik]
	for dk := range old {
		if _, stillPresent := newSet[dk]; stillPresent {
			continue
		}
		delete(g.incoming[dk], ik)
		if len(g.incoming[dk]) == 0 && !g.local[dk] {
			if _, isSplit := g.splitOf[dk]; isSplit {
				orphanedSplits = append(orphanedSplits, g.idOf[dk])
			}
		}
		g.dirty[dk] = true
	}

	g.rootToRoot[ik] = newSet
	for dk := range newSet {
		if g.incoming[dk] == nil {
			g.incoming[dk] = map[key]struct{}{}
		}
		g.incoming[dk][ik] = struct{}{}
		g.dirty[dk] = true
	}
	g.dirty[ik] = true
	return orphanedSplits
}

// RegisterSplit records that split is a descendant of root at the given
// depth, contributing to root's split propagation.
func (g *Graph) RegisterSplit(root, split cumid.ComputationId, depth int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk, sk := g.keyOfLocked(root), g.keyOfLocked(split)
	if g.rootToSplit[rk] == nil {
		g.rootToSplit[rk] = map[key]struct{}{}
	}
	g.rootToSplit[rk][sk] = struct{}{}
	g.splitOf[sk] = rk
	g.splitDepth[sk] = depth
	g.dirty[sk] = true
}

// MarkComputationLocal/MarkComputationNonLocal toggle whether id counts
// toward Update's locally-affected return set.
func (g *Graph) MarkComputationLocal(id cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.local[g.keyOfLocked(id)] = true
}

func (g *Graph) MarkComputationNonLocal(id cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.local, g.keyOfLocked(id))
}

// Priority returns id's currently converged priority.
func (g *Graph) Priority(id cumid.ComputationId) cumid.ComputationPriority {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.priority[g.keyOfLocked(id)]
}

// computePriorityForRootLocked implements
// computePriorityFor(r) = max over (client priorities for r) and
// (priorities of r's root→root upstream sources), each weakened via
// PriorityForDependentComputation.
func (g *Graph) computePriorityForRootLocked(r key) cumid.ComputationPriority {
	best := cumid.ComputationPriority{}
	for ck, p := range g.clientPriority {
		if ck.root != r {
			continue
		}
		weakened := p.PriorityForDependentComputation()
		if best.Less(weakened) {
			best = weakened
		}
	}
	for src, dsts := range g.rootToRoot {
		if _, ok := dsts[r]; !ok {
			continue
		}
		weakened := g.priority[src].PriorityForDependentComputation()
		if best.Less(weakened) {
			best = weakened
		}
	}
	return best
}

// computePriorityForSplitLocked implements
// computePriorityFor(s) = Priority[root(s)].PriorityForSplitComputation(depth).
func (g *Graph) computePriorityForSplitLocked(s key) cumid.ComputationPriority {
	root, ok := g.splitOf[s]
	if !ok {
		return cumid.ComputationPriority{}
	}
	return g.priority[root].PriorityForSplitComputation(g.splitDepth[s])
}

func (g *Graph) computePriorityForLocked(id key) cumid.ComputationPriority {
	if _, isSplit := g.splitOf[id]; isSplit {
		return g.computePriorityForSplitLocked(id)
	}
	return g.computePriorityForRootLocked(id)
}

// dependentsLocked returns everything that should be re-evaluated if
// id's priority changes: root→root dependents plus id's own splits (a
// root's priority change always re-derives its splits).
func (g *Graph) dependentsLocked(id key) []key {
	var out []key
	for dst := range g.rootToRoot[id] {
		out = append(out, dst)
	}
	for split := range g.rootToSplit[id] {
		out = append(out, split)
	}
	return out
}

// Update is the only way to advance priority state. It re-evaluates
// every dirty id; any id whose priority changed adds its dependents to
// the next round's dirty set. If a pass makes no progress (the dirty
// set is identical to the previous pass), every member of that stalled
// set is marked circular via MakeCircular and dropped from dirty.
// outLocalChanged receives every locally-registered id whose priority
// changed; outAllChanged receives every id whose priority changed.
func (g *Graph) Update(outLocalChanged, outAllChanged *[]cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	*outLocalChanged = (*outLocalChanged)[:0]
	*outAllChanged = (*outAllChanged)[:0]

	var prevDirtyKey string
	stalled := false

	for len(g.dirty) > 0 {
		current := make([]key, 0, len(g.dirty))
		for id := range g.dirty {
			current = append(current, id)
		}
		sortKeys(current)

		setKey := dirtySetKey(current)
		if setKey == prevDirtyKey {
			stalled = true
		}
		prevDirtyKey = setKey

		if stalled {
			for _, id := range current {
				g.priority[id] = g.priority[id].MakeCircular()
				delete(g.dirty, id)
				g.recordChangeLocked(id, outLocalChanged, outAllChanged)
			}
			break
		}

		nextDirty := map[key]bool{}
		for _, id := range current {
			old := g.priority[id]
			next := g.computePriorityForLocked(id)
			delete(g.dirty, id)
			if old.Equal(next) {
				continue
			}
			g.priority[id] = next
			g.recordChangeLocked(id, outLocalChanged, outAllChanged)
			for _, dep := range g.dependentsLocked(id) {
				nextDirty[dep] = true
			}
		}
		for id := range nextDirty {
			g.dirty[id] = true
		}
	}
}

func (g *Graph) recordChangeLocked(id key, outLocalChanged, outAllChanged *[]cumid.ComputationId) {
	full := g.idOf[id]
	*outAllChanged = append(*outAllChanged, full)
	if g.local[id] {
		*outLocalChanged = append(*outLocalChanged, full)
	}
}

func sortKeys(ids []key) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func dirtySetKey(sorted []key) string {
	out := make([]byte, 0, len(sorted)*20)
	for _, id := range sorted {
		out = append(out, id[:]...)
	}
	return string(out)
}

// AcyclicOrder exposes depgraph.TopoSort over this graph's current
// root→root edges. The cyclic set is keyed by each id's ID() content
// hash, since ComputationId is not comparable and cannot be a map key.
func (g *Graph) AcyclicOrder() (order []cumid.ComputationId, cyclic map[cumid.ID160]bool, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make([]key, 0, len(g.rootToRoot)+len(g.incoming))
	seen := map[key]bool{}
	addNode := func(id key) {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	edges := map[key][]key{}
	for src, dsts := range g.rootToRoot {
		addNode(src)
		for dst := range dsts {
			addNode(dst)
			edges[src] = append(edges[src], dst)
		}
	}

	keyOrder, keyCyclic, acyclic := depgraph.TopoSort(nodes, edges)

	order = make([]cumid.ComputationId, 0, len(keyOrder))
	for _, k := range keyOrder {
		order = append(order, g.idOf[k])
	}
	if keyCyclic != nil {
		cyclic = make(map[cumid.ID160]bool, len(keyCyclic))
		for k := range keyCyclic {
			cyclic[k] = true
		}
	}
	return order, cyclic, acyclic
}
