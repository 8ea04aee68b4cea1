package computedgraph

import (
	"reflect"
	"sort"
)

// FlushStats summarizes one Flush call for callers that want to log
// convergence behavior.
type FlushStats struct {
	Recomputed int
	Relevelled int
	Cycles     [][]string
}

// Flush is the reconvergence loop: while dirty nodes remain (restricted
// to non-lazy ones unless recomputeLazy is true), it picks the lowest-
// level one, relevels it if its recorded dependencies imply a different
// level than currently stored, or recomputes it otherwise. A node
// relevelled more than 2*|pending|+2 times without an intervening
// compute is treated, along with the rest of the current pending set,
// as a dependency cycle: every member is replaced with a DependencyCycle
// sentinel and cleared from dirty.
func (g *ComputedGraph) Flush(recomputeLazy bool) *FlushStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := &FlushStats{}
	const maxIterations = 100000 // the "timeout" analog: a hard iteration cap, not a wall-clock deadline

	for iter := 0; iter < maxIterations; iter++ {
		pending := g.pendingSetLocked(recomputeLazy)
		if len(pending) == 0 {
			return stats
		}

		k := g.lowestLevelLocked(pending)

		recomputedLevel := g.dependencyLevelLocked(k)
		if recomputedLevel != g.level[k] {
			g.level[k] = recomputedLevel
			g.relevels[k]++
			stats.Relevelled++
			if g.relevels[k] > 2*len(pending)+2 {
				cycle := g.replaceCycleLocked(pending)
				stats.Cycles = append(stats.Cycles, cycle)
			}
			continue
		}

		oldPresent := g.hasValueLocked(k)
		oldValue := g.value[k]
		if err := g.recomputeLocked(k); err != nil {
			// A self-read or missing-definition error: drop the node from
			// dirty so flush doesn't spin forever on it, and keep going.
			g.dirty[k] = false
			continue
		}
		stats.Recomputed++
		changed := !oldPresent || !equalValues(oldValue, g.value[k])
		if changed {
			g.onChangedLocked(k)
			if g.isRootLocked(k) {
				g.notifyRootsLocked(k, g.value[k])
			}
		}
	}
	return stats
}

// FlushLazy is shorthand for Flush(false): it walks only dirty,
// effectively non-lazy nodes.
func (g *ComputedGraph) FlushLazy() *FlushStats {
	return g.Flush(false)
}

func (g *ComputedGraph) hasValueLocked(k nodeKey) bool {
	_, ok := g.value[k]
	return ok
}

func (g *ComputedGraph) pendingSetLocked(recomputeLazy bool) []nodeKey {
	out := make([]nodeKey, 0)
	for k, isDirty := range g.dirty {
		if !isDirty {
			continue
		}
		if g.isOrphanLocked(k) {
			continue
		}
		if !recomputeLazy && g.effectiveLazyLocked(k, map[nodeKey]bool{}) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (g *ComputedGraph) lowestLevelLocked(pending []nodeKey) nodeKey {
	sort.Slice(pending, func(i, j int) bool {
		li, lj := g.level[pending[i]], g.level[pending[j]]
		if li != lj {
			return li < lj
		}
		return pending[i].String() < pending[j].String()
	})
	return pending[0]
}

func (g *ComputedGraph) dependencyLevelLocked(k nodeKey) int {
	max := -1
	for dep := range g.edges[k] {
		if lvl, ok := g.level[dep]; ok && lvl > max {
			max = lvl
		}
	}
	return max + 1
}

func (g *ComputedGraph) replaceCycleLocked(pending []nodeKey) []string {
	members := make([]string, 0, len(pending))
	for _, k := range pending {
		members = append(members, k.String())
	}
	sentinel := DependencyCycle{Members: members}
	for _, k := range pending {
		g.value[k] = sentinel
		g.dirty[k] = false
		g.clean[k] = true
		g.relevels[k] = 0
	}
	return members
}

// isOrphanLocked reports whether k has no upstream consumer and is not
// rooted.
func (g *ComputedGraph) isOrphanLocked(k nodeKey) bool {
	if g.isRootLocked(k) {
		return false
	}
	return len(g.reverseEdges[k]) == 0
}

// effectiveLazyLocked recomputes effective laziness: a declared-lazy
// node is always lazy; a rooted node is never lazy; otherwise a node is
// effectively lazy only if every one of its consumers is, recursively.
func (g *ComputedGraph) effectiveLazyLocked(k nodeKey, visiting map[nodeKey]bool) bool {
	if g.declaredLazy[k] {
		return true
	}
	if g.isRootLocked(k) {
		return false
	}
	consumers := g.reverseEdges[k]
	if len(consumers) == 0 {
		return false // orphaned, handled separately
	}
	if visiting[k] {
		return true // broke a cycle of mutual laziness checks; treat as lazy
	}
	visiting[k] = true
	for c := range consumers {
		if !g.effectiveLazyLocked(c, visiting) {
			return false
		}
	}
	return true
}

// FlushOrphans removes every orphaned non-mutable node from all indices.
func (g *ComputedGraph) FlushOrphans() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []string
	for k := range g.level {
		if _, isMutable := g.locations[k.loc].mutables[k.attr]; isMutable {
			continue
		}
		if !g.isOrphanLocked(k) {
			continue
		}
		removed = append(removed, k.String())
		deps := g.edges[k]
		delete(g.level, k)
		delete(g.dirty, k)
		delete(g.clean, k)
		delete(g.value, k)
		delete(g.relevels, k)
		delete(g.edges, k)
		for dep := range deps {
			delete(g.reverseEdges[dep], k)
		}
	}
	return removed
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
