package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func indexOf(order []string, n string) int {
	for i, x := range order {
		if x == n {
			return i
		}
	}
	return -1
}

func TestTopoSort_Acyclic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := map[string][]string{
		"a": {"b", "c"},
		"b": {"d"},
		"c": {"d"},
	}

	order, cyclic, ok := TopoSort(nodes, edges)
	assert.True(t, ok)
	assert.Nil(t, cyclic)
	assert.Len(t, order, 4)
	assert.Less(t, indexOf(order, "a"), indexOf(order, "b"))
	assert.Less(t, indexOf(order, "b"), indexOf(order, "d"))
	assert.Less(t, indexOf(order, "c"), indexOf(order, "d"))
}

func TestTopoSort_Cyclic(t *testing.T) {
	nodes := []string{"1", "2", "3", "4"}
	edges := map[string][]string{
		"1": {"2"},
		"2": {"3"},
		"3": {"4"},
		"4": {"1"},
	}

	_, cyclic, ok := TopoSort(nodes, edges)
	assert.False(t, ok)
	assert.True(t, cyclic["1"])
	assert.True(t, cyclic["2"])
	assert.True(t, cyclic["3"])
	assert.True(t, cyclic["4"])
}

func TestStronglyConnectedComponents_FindsCycle(t *testing.T) {
	nodes := []string{"1", "2", "3", "4", "5"}
	edges := map[string][]string{
		"1": {"2"},
		"2": {"3"},
		"3": {"1"},
		"4": {"5"},
	}

	comps := StronglyConnectedComponents(nodes, edges, false)

	found := false
	for _, c := range comps {
		if len(c) == 3 {
			found = true
			assert.ElementsMatch(t, []string{"1", "2", "3"}, c)
		}
	}
	assert.True(t, found, "expected a 3-node strongly connected component")
}

func TestStronglyConnectedComponents_ExcludesSingletonsByDefault(t *testing.T) {
	nodes := []string{"1", "2"}
	edges := map[string][]string{
		"1": {"2"},
	}

	comps := StronglyConnectedComponents(nodes, edges, false)
	assert.Empty(t, comps)
}
