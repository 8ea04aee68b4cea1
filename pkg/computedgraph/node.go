// Package computedgraph implements ComputedGraph, the incremental
// re-evaluation engine over typed Locations used by the backend gateway
// to mirror reactive state to clients. It is the richer, slower cousin
// of pkg/depgraph's generic DependencyGraph substrate: where depgraph
// is "a simpler push-pull reactive substrate used by non-ComputedGraph
// callers," this package adds named multi-attribute Locations, lazy
// propagation, roots, and cycle detection via relevel counting.
package computedgraph

import "fmt"

// LocationId identifies a Location by its class name plus a serialized
// form of its immutable key attributes, matching the original's
// "instanceId is derived from the location class plus its immutable key
// attributes."
type LocationId struct {
	Class string
	Key   string
}

func (id LocationId) String() string { return id.Class + "/" + id.Key }

// nodeKey names one (Location, attribute) pair — a LocationProperty in
// spec terms, or a mutable slot.
type nodeKey struct {
	loc  LocationId
	attr string
}

func (k nodeKey) String() string { return fmt.Sprintf("%s.%s", k.loc, k.attr) }

// DependencyCycle is the sentinel value every member of a detected
// cycle is replaced with.
type DependencyCycle struct {
	Members []string
}

func (DependencyCycle) isSentinel() {}

// PropertyFunc computes a property's value, reading other Locations'
// attributes through g.Read / g.ReadMutable so the graph can record the
// dependency edges that actually arose.
type PropertyFunc func(g *ComputedGraph, loc LocationId) (any, error)

type propertyDef struct {
	fn   PropertyFunc
	lazy bool
}

// Location owns a set of immutable keys, settable mutables, and cached
// properties, all addressed by name.
type Location struct {
	id LocationId

	keys       map[string]any
	mutables   map[string]any
	properties map[string]propertyDef
}

func newLocation(id LocationId) *Location {
	return &Location{
		id:         id,
		keys:       map[string]any{},
		mutables:   map[string]any{},
		properties: map[string]propertyDef{},
	}
}

func (l *Location) ID() LocationId { return l.id }
