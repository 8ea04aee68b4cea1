package judgment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_VectorElementJOV(t *testing.T) {
	j := Type(TypeInt64)
	assert.True(t, j.IsValidVectorElementJOV())
	assert.Equal(t, j, j.VectorElementJOV())
}

func TestConstant_VectorElementJOVStripsConstant(t *testing.T) {
	c := Constant(TypeInt64, "10")
	assert.True(t, c.IsConstant())

	elem := c.VectorElementJOV()
	assert.True(t, elem.IsType())
	assert.Equal(t, TypeInt64, elem.TypeName())
}

func TestUnion_DedupsAndCollapsesSingleton(t *testing.T) {
	a := Type(TypeInt64)
	u := Union(a, a)
	assert.True(t, u.Equal(a))
}

func TestUnion_NotValidVectorElementJOV(t *testing.T) {
	u := Union(Type(TypeInt64), Type(TypeFloat64))
	assert.True(t, u.IsUnion())
	assert.False(t, u.IsValidVectorElementJOV())
}

func TestUnknown_IsNotValidVectorElementJOV(t *testing.T) {
	assert.False(t, Unknown().IsValidVectorElementJOV())
}

func TestJudgment_Equal(t *testing.T) {
	a := Type(TypeString)
	b := Type(TypeString)
	c := Type(TypeInt64)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestJudgment_Compare_TotalOrder(t *testing.T) {
	u := Unknown()
	union := Union(Type(TypeInt64), Type(TypeFloat64))
	typ := Type(TypeInt64)
	cst := Constant(TypeInt64, "5")

	assert.True(t, u.Compare(union) < 0)
	assert.True(t, union.Compare(typ) < 0)
	assert.True(t, typ.Compare(cst) < 0)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		name     string
		jov      Judgment
		expected int
	}{
		{"nothing", Type(TypeNothing), 0},
		{"bool", Type(TypeBool), 1},
		{"int64", Type(TypeInt64), 8},
		{"float64", Type(TypeFloat64), 8},
		{"string_not_pod", Type(TypeString), -1},
		{"union_not_pod", Union(Type(TypeInt64), Type(TypeBool)), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.jov.ByteSize())
		})
	}
}

func TestIsPOD(t *testing.T) {
	assert.True(t, Type(TypeInt64).IsPOD())
	assert.False(t, Type(TypeString).IsPOD())
}
