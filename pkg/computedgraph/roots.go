package computedgraph

import "weak"

// RootHandle is the owner-side object a caller holds to keep a property
// rooted. Rooting forbids eviction and, through Changed, notifies the
// owner whenever the rooted property recomputes with a different value.
type RootHandle struct {
	Changed func(newValue any)
}

type rootSet struct {
	handles []weak.Pointer[RootHandle]
}

// Root registers h as a root for the given property; the node stops
// being a root once h is garbage collected (the weak handle expires).
func (g *ComputedGraph) Root(id LocationId, name string, h *RootHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := nodeKey{id, name}
	rs, ok := g.roots[k]
	if !ok {
		rs = &rootSet{}
		g.roots[k] = rs
	}
	rs.handles = append(rs.handles, weak.Make(h))
}

// isRootLocked prunes expired weak handles and reports whether any live
// root remains for k.
func (g *ComputedGraph) isRootLocked(k nodeKey) bool {
	rs, ok := g.roots[k]
	if !ok {
		return false
	}
	live := rs.handles[:0]
	hasLive := false
	for _, wp := range rs.handles {
		if wp.Value() != nil {
			live = append(live, wp)
			hasLive = true
		}
	}
	rs.handles = live
	if !hasLive {
		delete(g.roots, k)
	}
	return hasLive
}

// notifyRootsLocked invokes Changed on every live root handle for k.
func (g *ComputedGraph) notifyRootsLocked(k nodeKey, newValue any) {
	rs, ok := g.roots[k]
	if !ok {
		return
	}
	for _, wp := range rs.handles {
		if h := wp.Value(); h != nil && h.Changed != nil {
			h.Changed(newValue)
		}
	}
}
