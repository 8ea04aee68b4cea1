package computedgraph

import (
	"sync"

	"github.com/fora-lang/cumulus/pkg/errors"
)

// ErrSelfRead is returned when a property attempts to read itself while
// being computed.
var ErrSelfRead = errors.New(errors.CodeInvariantViolation, "computedgraph: property read itself during its own computation")

// ComputedGraph models a reactive object graph of Locations. It is not
// safe for concurrent mutation from multiple goroutines; the original's
// "per-thread scoped context pointer" for the reading stack is modeled
// here as a single mutex-guarded stack, since this port has one
// computation in flight at a time per graph instance.
type ComputedGraph struct {
	mu sync.Mutex

	locations map[LocationId]*Location

	// edges[dependent] = set of things it reads; reverseEdges[dep] =
	// set of things that read it. Rebuilt for a node on every recompute
	// from the reads that actually happened (not declared statically).
	edges        map[nodeKey]map[nodeKey]struct{}
	reverseEdges map[nodeKey]map[nodeKey]struct{}

	level map[nodeKey]int
	dirty map[nodeKey]bool
	clean map[nodeKey]bool // explicit clean set; absence from both = never computed

	value     map[nodeKey]any
	computing map[nodeKey]bool
	relevels  map[nodeKey]int

	declaredLazy map[nodeKey]bool
	roots        map[nodeKey]*rootSet

	stack []nodeKey // the "currently computing" reading stack
}

func New() *ComputedGraph {
	return &ComputedGraph{
		locations:    map[LocationId]*Location{},
		edges:        map[nodeKey]map[nodeKey]struct{}{},
		reverseEdges: map[nodeKey]map[nodeKey]struct{}{},
		level:        map[nodeKey]int{},
		dirty:        map[nodeKey]bool{},
		clean:        map[nodeKey]bool{},
		value:        map[nodeKey]any{},
		computing:    map[nodeKey]bool{},
		relevels:     map[nodeKey]int{},
		declaredLazy: map[nodeKey]bool{},
		roots:        map[nodeKey]*rootSet{},
	}
}

func (g *ComputedGraph) locked(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

func (g *ComputedGraph) locationLocked(id LocationId) *Location {
	loc, ok := g.locations[id]
	if !ok {
		loc = newLocation(id)
		g.locations[id] = loc
	}
	return loc
}

// DefineKey sets an immutable key attribute on loc.
func (g *ComputedGraph) DefineKey(id LocationId, name string, value any) {
	g.locked(func() {
		g.locationLocked(id).keys[name] = value
	})
}

// DefineMutable registers a settable attribute, always clean and level 0.
func (g *ComputedGraph) DefineMutable(id LocationId, name string, initial any) {
	g.locked(func() {
		g.locationLocked(id).mutables[name] = initial
		k := nodeKey{id, name}
		g.level[k] = 0
		g.clean[k] = true
		g.value[k] = initial
	})
}

// DefineProperty registers a cached property computed by fn.
func (g *ComputedGraph) DefineProperty(id LocationId, name string, fn PropertyFunc, lazy bool) {
	g.locked(func() {
		g.locationLocked(id).properties[name] = propertyDef{fn: fn, lazy: lazy}
		k := nodeKey{id, name}
		g.declaredLazy[k] = lazy
		g.dirty[k] = true
	})
}

// ReadKey returns an immutable key attribute.
func (g *ComputedGraph) ReadKey(id LocationId, name string) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	loc, ok := g.locations[id]
	if !ok {
		return nil
	}
	return loc.keys[name]
}

// ReadMutable returns a mutable's current value, recording a dependency
// edge if called from within another property's computation.
func (g *ComputedGraph) ReadMutable(id LocationId, name string) any {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := nodeKey{id, name}
	g.recordReadLocked(k)
	return g.value[k]
}

// SetMutable updates a mutable's value and propagates dirtiness to every
// node that has ever read it.
func (g *ComputedGraph) SetMutable(id LocationId, name string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	loc := g.locationLocked(id)
	loc.mutables[name] = value
	k := nodeKey{id, name}
	g.value[k] = value
	g.onChangedLocked(k)
}

// onChangedLocked walks up-tree listeners and marks them dirty,
// transitively.
func (g *ComputedGraph) onChangedLocked(k nodeKey) {
	seen := map[nodeKey]bool{}
	var walk func(nodeKey)
	walk = func(n nodeKey) {
		for dep := range g.reverseEdges[n] {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.dirty[dep] = true
			delete(g.clean, dep)
			walk(dep)
		}
	}
	walk(k)
}

func (g *ComputedGraph) recordReadLocked(dep nodeKey) {
	if len(g.stack) == 0 {
		return
	}
	reader := g.stack[len(g.stack)-1]
	if reader == dep {
		return
	}
	if g.edges[reader] == nil {
		g.edges[reader] = map[nodeKey]struct{}{}
	}
	g.edges[reader][dep] = struct{}{}
	if g.reverseEdges[dep] == nil {
		g.reverseEdges[dep] = map[nodeKey]struct{}{}
	}
	g.reverseEdges[dep][reader] = struct{}{}
}

// Read returns a property's cached value, recomputing it first if dirty.
func (g *ComputedGraph) Read(id LocationId, name string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := nodeKey{id, name}
	if g.dirty[k] {
		if err := g.recomputeLocked(k); err != nil {
			return nil, err
		}
	}
	g.recordReadLocked(k)
	return g.value[k], nil
}

func (g *ComputedGraph) recomputeLocked(k nodeKey) error {
	if g.computing[k] {
		// Roll back: this compute attempt never happened.
		return ErrSelfRead
	}
	loc, ok := g.locations[k.loc]
	if !ok {
		return errors.New(errors.CodeNotFound, "computedgraph: unknown location "+k.loc.String())
	}
	def, ok := loc.properties[k.attr]
	if !ok {
		return errors.New(errors.CodeNotFound, "computedgraph: unknown property "+k.String())
	}

	// Clear stale dependency edges before recomputing, same as
	// pkg/depgraph's beginCompute: only edges that actually arise this
	// pass should survive.
	for dep := range g.edges[k] {
		delete(g.reverseEdges[dep], k)
	}
	delete(g.edges, k)

	g.computing[k] = true
	g.stack = append(g.stack, k)
	// fn reads through g.Read / g.ReadMutable, which take g.mu
	// themselves, so the lock is released for the duration of the call.
	g.mu.Unlock()
	val, err := def.fn(g, k.loc)
	g.mu.Lock()
	g.stack = g.stack[:len(g.stack)-1]
	g.computing[k] = false
	if err != nil {
		return err
	}

	maxDepLevel := -1
	for dep := range g.edges[k] {
		if lvl, ok := g.level[dep]; ok && lvl > maxDepLevel {
			maxDepLevel = lvl
		}
	}
	g.level[k] = maxDepLevel + 1
	g.value[k] = val
	g.dirty[k] = false
	g.clean[k] = true
	g.relevels[k] = 0
	return nil
}
