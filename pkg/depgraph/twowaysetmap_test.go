package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTwoWaySetMap_InsertAndLookup(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	m.insert("a", 1)
	m.insert("a", 2)
	m.insert("b", 2)

	assert.True(t, m.contains("a", 1))
	assert.ElementsMatch(t, []int{1, 2}, m.getValues("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, m.getKeys(2))
}

func TestTwoWaySetMap_Drop(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	m.insert("a", 1)
	m.insert("a", 2)

	m.drop("a", 1)
	assert.False(t, m.contains("a", 1))
	assert.True(t, m.contains("a", 2))
	assert.False(t, m.hasKey("x"))
}

func TestTwoWaySetMap_DropKeyRemovesFromValueIndex(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	m.insert("a", 1)
	m.insert("b", 1)

	m.dropKey("a")
	assert.False(t, m.hasKey("a"))
	assert.ElementsMatch(t, []string{"b"}, m.getKeys(1))
}

func TestTwoWaySetMap_DropValueRemovesFromKeyIndex(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	m.insert("a", 1)
	m.insert("a", 2)

	m.dropValue(1)
	assert.False(t, m.hasValue(1))
	assert.ElementsMatch(t, []int{2}, m.getValues("a"))
}

func TestTwoWaySetMap_Update(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	m.insert("a", 1)
	m.insert("a", 2)

	m.update("a", map[int]struct{}{2: {}, 3: {}})

	assert.ElementsMatch(t, []int{2, 3}, m.getValues("a"))
	assert.False(t, m.hasValue(1))
}

func TestTwoWaySetMap_EmptyLookups(t *testing.T) {
	m := newTwoWaySetMap[string, int]()
	assert.Empty(t, m.getValues("missing"))
	assert.Empty(t, m.getKeys(42))
	assert.Equal(t, 0, m.keyCount())
	assert.Equal(t, 0, m.valueCount())
}
