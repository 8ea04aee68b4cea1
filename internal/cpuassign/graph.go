// Package cpuassign implements CpuAssignmentDependencyGraph: it
// aggregates per-machine compute status into a systemwide CPU count per
// root computation and event-broadcasts the diffs.
package cpuassign

import (
	"sync"

	"github.com/fora-lang/cumulus/pkg/collections"
	"github.com/fora-lang/cumulus/pkg/cumid"
	"github.com/fora-lang/cumulus/pkg/depgraph"
	"github.com/fora-lang/cumulus/pkg/eventbus"
)

// scratchIntMaps pools the per-Update direct/total CPU-count maps so a
// busy cluster's steady stream of updateDependencyGraph calls doesn't
// allocate two fresh maps every pass.
var scratchIntMaps = collections.NewMapPool[key, int](256)

type key = cumid.ID160

// Assignment is the published, aggregated view of a root's systemwide CPU
// usage: ComputationSystemwideCpuAssignment from the event table.
type Assignment struct {
	Root               cumid.ComputationId
	DirectByMachine    map[cumid.MachineId]int
	ChildContributions int
	CheckpointStatus   bool
	TotalCpus          int
	Circular           bool
	IsLocal            bool
}

func (a Assignment) clone() Assignment {
	out := a
	out.DirectByMachine = make(map[cumid.MachineId]int, len(a.DirectByMachine))
	for m, n := range a.DirectByMachine {
		out.DirectByMachine[m] = n
	}
	return out
}

func (a Assignment) equalPublished(b Assignment) bool {
	if a.ChildContributions != b.ChildContributions || a.CheckpointStatus != b.CheckpointStatus ||
		a.TotalCpus != b.TotalCpus || a.Circular != b.Circular || a.IsLocal != b.IsLocal {
		return false
	}
	if len(a.DirectByMachine) != len(b.DirectByMachine) {
		return false
	}
	for m, n := range a.DirectByMachine {
		if b.DirectByMachine[m] != n {
			return false
		}
	}
	return true
}

// Graph holds CpuAssignmentDependencyGraph's state.
type Graph struct {
	mu sync.Mutex

	idOf map[key]cumid.ComputationId

	// lastReported[machine][root] = activeCpus most recently reported.
	lastReported map[cumid.MachineId]map[key]int
	// edges mirrors the same root->root dependency edges as
	// compgraph: edges[p] contains r when (p,r) in E, i.e. r depends on p.
	edges    map[key][]key
	local    map[key]bool
	checkpoints map[key]bool

	published map[key]Assignment
	dirty     map[key]bool

	broadcast *eventbus.EventBroadcaster[Assignment]
}

// New builds an empty CpuAssignmentDependencyGraph publishing diffs
// through broadcast. A nil broadcast gets a default GoroutineScheduler
// broadcaster.
func New(broadcast *eventbus.EventBroadcaster[Assignment]) *Graph {
	if broadcast == nil {
		broadcast = eventbus.New[Assignment](nil)
	}
	return &Graph{
		idOf:         map[key]cumid.ComputationId{},
		lastReported: map[cumid.MachineId]map[key]int{},
		edges:        map[key][]key{},
		local:        map[key]bool{},
		checkpoints:  map[key]bool{},
		published:    map[key]Assignment{},
		dirty:        map[key]bool{},
		broadcast:    broadcast,
	}
}

func (g *Graph) keyOfLocked(id cumid.ComputationId) key {
	k := id.ID()
	if _, ok := g.idOf[k]; !ok {
		g.idOf[k] = id
	}
	return k
}

// Subscribe registers sub for future assignment-change notifications.
func (g *Graph) Subscribe(sub *eventbus.Subscriber[Assignment]) {
	g.broadcast.Subscribe(sub)
}

// OnRootComputationComputeStatusChanged records machine m's latest
// activeCpus contribution toward root and marks root dirty for the next
// updateDependencyGraph pass.
func (g *Graph) OnRootComputationComputeStatusChanged(m cumid.MachineId, root cumid.ComputationId, activeCpus int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.keyOfLocked(root)
	if g.lastReported[m] == nil {
		g.lastReported[m] = map[key]int{}
	}
	if activeCpus <= 0 {
		delete(g.lastReported[m], rk)
	} else {
		g.lastReported[m][rk] = activeCpus
	}
	g.dirty[rk] = true
}

// OnRootToRootDependencyCreated registers a parent->child root dependency
// edge (idempotent) and marks child dirty.
func (g *Graph) OnRootToRootDependencyCreated(parent, child cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	pk, ck := g.keyOfLocked(parent), g.keyOfLocked(child)
	for _, existing := range g.edges[pk] {
		if existing == ck {
			return
		}
	}
	g.edges[pk] = append(g.edges[pk], ck)
	g.dirty[ck] = true
}

// OnCheckpointStatusUpdate applies a checkpoint-status diff for root.
func (g *Graph) OnCheckpointStatusUpdate(root cumid.ComputationId, checkpointing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.keyOfLocked(root)
	g.checkpoints[rk] = checkpointing
	g.dirty[rk] = true
}

// MarkComputationLocal/NonLocal toggles whether root counts as locally
// owned in its published Assignment.IsLocal.
func (g *Graph) MarkComputationLocal(root cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.keyOfLocked(root)
	g.local[rk] = true
	g.dirty[rk] = true
}

func (g *Graph) MarkComputationNonLocal(root cumid.ComputationId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rk := g.keyOfLocked(root)
	delete(g.local, rk)
	g.dirty[rk] = true
}

// DropMachine removes m's direct CPU contribution from every root it had
// reported against, marking each affected root dirty.
func (g *Graph) DropMachine(m cumid.MachineId) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for rk := range g.lastReported[m] {
		g.dirty[rk] = true
	}
	delete(g.lastReported, m)
}

// Assignment returns root's last-published aggregated view.
func (g *Graph) Assignment(root cumid.ComputationId) (Assignment, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.published[g.keyOfLocked(root)]
	if !ok {
		return Assignment{}, false
	}
	return a.clone(), true
}

func (g *Graph) directCpusLocked(r key) int {
	total := 0
	for _, byRoot := range g.lastReported {
		total += byRoot[r]
	}
	return total
}

// updateDependencyGraph runs the two-pass recomputation: pass 1
// recomputes direct CPU counts for the dirty set; pass 2 propagates
// upward along edges in topological order when acyclic, or in a single
// fixed-point pass otherwise. Returns every root whose published value
// changed this call.
func (g *Graph) updateDependencyGraph() []cumid.ComputationId {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.dirty) == 0 {
		return nil
	}

	direct := scratchIntMaps.Get()
	defer scratchIntMaps.Put(direct)
	for rk := range g.dirty {
		direct[rk] = g.directCpusLocked(rk)
	}

	order, cyclic, acyclic := g.topoOrderLocked()

	total := scratchIntMaps.Get()
	defer scratchIntMaps.Put(total)

	// edges is keyed parent->children (dst depends on src=parent), so a
	// root's child contribution sums totalCpus of every parent p with an
	// edge p->r — build the reverse index once up front.
	parentsOf := map[key][]key{}
	for p, children := range g.edges {
		for _, c := range children {
			parentsOf[c] = append(parentsOf[c], p)
		}
	}

	var changed []cumid.ComputationId

	process := func(rk key) {
		d, ok := direct[rk]
		if !ok {
			d = g.directCpusLocked(rk)
		}
		childSum := 0
		for _, p := range parentsOf[rk] {
			childSum += total[p]
		}
		total[rk] = d + childSum

		prev, had := g.published[rk]
		next := Assignment{
			Root:               g.idOf[rk],
			DirectByMachine:    g.directByMachineLocked(rk),
			ChildContributions: childSum,
			CheckpointStatus:   g.checkpoints[rk],
			TotalCpus:          total[rk],
			Circular:           cyclic != nil && cyclic[rk],
			IsLocal:            g.local[rk],
		}
		if had && prev.equalPublished(next) {
			return
		}
		g.published[rk] = next
		changed = append(changed, next.Root)
		g.broadcast.Publish(next.clone())
	}

	// Every known id not already covered by the topological order (e.g. a
	// root with no root→root edges at all) still needs a pass so its
	// direct-only total gets (re)published.
	fullSet := make([]key, 0, len(g.idOf))
	seen := make(map[key]bool, len(g.idOf))
	addFull := func(k key) {
		if !seen[k] {
			seen[k] = true
			fullSet = append(fullSet, k)
		}
	}
	if acyclic {
		for _, rk := range order {
			addFull(rk)
		}
	}
	for rk := range g.idOf {
		addFull(rk)
	}

	// When acyclic, order already lists every root with at least one
	// edge in parent-before-child sequence; appending the remaining
	// isolated roots afterward is safe since they have no parents to
	// wait on. When not acyclic, a single fixed-point pass over every
	// known root in arbitrary order matches spec's "single fixed-point
	// pass otherwise" — a cyclic root→root graph is a misconfiguration
	// the priority layer (compgraph) already tags circular; this pass
	// still produces a coherent total from whatever parent totals are
	// available this round.
	for _, rk := range fullSet {
		process(rk)
	}

	g.dirty = map[key]bool{}
	return changed
}

func (g *Graph) directByMachineLocked(r key) map[cumid.MachineId]int {
	out := map[cumid.MachineId]int{}
	for m, byRoot := range g.lastReported {
		if n, ok := byRoot[r]; ok {
			out[m] = n
		}
	}
	return out
}

func (g *Graph) topoOrderLocked() (order []key, cyclic map[key]bool, ok bool) {
	nodes := make([]key, 0, len(g.edges))
	seen := map[key]bool{}
	addNode := func(k key) {
		if !seen[k] {
			seen[k] = true
			nodes = append(nodes, k)
		}
	}
	for p, children := range g.edges {
		addNode(p)
		for _, c := range children {
			addNode(c)
		}
	}
	return depgraph.TopoSort(nodes, g.edges)
}

// Update is the exported trigger for updateDependencyGraph, run by the
// scheduler's event loop after draining a batch of status-change events.
func (g *Graph) Update() []cumid.ComputationId {
	return g.updateDependencyGraph()
}
