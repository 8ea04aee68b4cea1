package depgraph

// ComputedProperty is a pure function of other nodes, cached until one of
// its recorded dependencies changes. Its level is one plus the max level
// of the nodes it read during its last computation, so Flush always
// recomputes dependencies before dependents.
type ComputedProperty[T any] struct {
	g        *Graph
	nodeID   int
	fn       func() T
	value    T
	hasValue bool
	dirty    bool
	lvl      int
	equal    func(a, b T) bool
}

// NewComputedProperty builds a lazily-evaluated property. equal may be
// nil, in which case every recompute is treated as a value change (always
// re-dirties dependents) — acceptable for T without a natural equality.
func NewComputedProperty[T any](g *Graph, fn func() T, equal func(a, b T) bool) *ComputedProperty[T] {
	p := &ComputedProperty[T]{g: g, nodeID: g.allocID(), fn: fn, dirty: true, equal: equal}
	g.register(p)
	return p
}

func (p *ComputedProperty[T]) id() int       { return p.nodeID }
func (p *ComputedProperty[T]) level() int    { return p.lvl }
func (p *ComputedProperty[T]) isDirty() bool { return p.dirty }
func (p *ComputedProperty[T]) markDirty()    { p.dirty = true }

func (p *ComputedProperty[T]) recompute(g *Graph) {
	g.beginCompute(p.nodeID)
	newValue := p.fn()
	deps := g.depsOf(p.nodeID)
	g.endCompute()

	maxDepLevel := -1
	for _, d := range deps {
		if l := g.levelOf(d); l > maxDepLevel {
			maxDepLevel = l
		}
	}
	p.lvl = maxDepLevel + 1

	changed := !p.hasValue
	if p.hasValue && p.equal != nil {
		changed = !p.equal(p.value, newValue)
	} else if p.hasValue {
		changed = true
	}

	p.value = newValue
	p.hasValue = true
	p.dirty = false

	if changed {
		g.markDependentsDirty(p.nodeID)
	}
}

// Get returns the current (recomputing if dirty) value, registering a
// dependency edge on the caller if invoked during another node's
// computation.
func (p *ComputedProperty[T]) Get() T {
	if p.dirty {
		p.recompute(p.g)
	}
	p.g.recordRead(p.nodeID)
	return p.value
}

// Invalidate forces dirty without waiting for a dependency write; used by
// callers that mutate state outside the graph's own Mutable wrapper.
func (p *ComputedProperty[T]) Invalidate() {
	p.dirty = true
	p.g.markDependentsDirty(p.nodeID)
}
