// Package judgment implements the Judgment value-set lattice and the
// ImplValContainer boxed-value handle that ForaValueArray and
// MutableVectorHandle store. Both are external-collaborator contracts in
// the wider system (the FORA type system itself is out of scope); this
// package gives them a concrete, total-ordered representation so the
// array/vector storage layer has something real to dispatch on.
package judgment

import (
	"fmt"
)

// Kind distinguishes the four Judgment variants.
type Kind uint8

const (
	KindType Kind = iota
	KindConstant
	KindUnion
	KindUnknown
)

// Judgment is a sum type over {type, constant, union, unknown} forming a
// total-order lattice: Unknown is the universal judgment (admits
// anything); Union is a deduplicated sorted set of member judgments;
// Constant narrows a Type to one concrete encoded value; Type names a
// primitive storage representation.
type Judgment struct {
	kind     Kind
	typeName string // valid for KindType and KindConstant
	constant string // encoded constant literal, valid for KindConstant
	members  []Judgment
}

// Primitive type names recognized by the storage layer for stride/offset
// decisions. Anything else is treated as a non-POD boxed type.
const (
	TypeNothing = "nothing"
	TypeInt64   = "int64"
	TypeFloat64 = "float64"
	TypeBool    = "bool"
	TypeString  = "string"
	TypeSymbol  = "symbol"
	TypeTuple   = "tuple"
)

func Type(name string) Judgment {
	return Judgment{kind: KindType, typeName: name}
}

func Constant(typeName, encoded string) Judgment {
	return Judgment{kind: KindType, typeName: typeName, constant: encoded}
}

func Unknown() Judgment {
	return Judgment{kind: KindUnknown}
}

// Union builds a deduplicated, sorted union judgment from members.
func Union(members ...Judgment) Judgment {
	seen := map[string]Judgment{}
	for _, m := range members {
		seen[m.key()] = m
	}
	if len(seen) == 1 {
		for _, m := range seen {
			return m
		}
	}
	out := make([]Judgment, 0, len(seen))
	for _, m := range seen {
		out = append(out, m)
	}
	sortJudgments(out)
	return Judgment{kind: KindUnion, members: out}
}

func sortJudgments(js []Judgment) {
	for i := 1; i < len(js); i++ {
		for j := i; j > 0 && js[j-1].key() > js[j].key(); j-- {
			js[j-1], js[j] = js[j], js[j-1]
		}
	}
}

func (j Judgment) Kind() Kind { return j.kind }

func (j Judgment) IsType() bool     { return j.kind == KindType && j.constant == "" }
func (j Judgment) IsConstant() bool { return j.kind == KindType && j.constant != "" }
func (j Judgment) IsUnion() bool    { return j.kind == KindUnion }
func (j Judgment) IsUnknown() bool  { return j.kind == KindUnknown }

// TypeName returns the underlying storage type name for Type and Constant
// judgments; empty for Union and Unknown.
func (j Judgment) TypeName() string { return j.typeName }

// ConstantValue returns the encoded constant literal; only meaningful
// when IsConstant() is true.
func (j Judgment) ConstantValue() string { return j.constant }

// Members returns the sorted member set of a Union judgment.
func (j Judgment) Members() []Judgment { return j.members }

// VectorElementJOV returns the judgment used to type elements of a
// vector homogeneous in j: for a Type/Constant it is the bare Type (a
// constant judgment still occupies a vector slot typed by its underlying
// representation); Union and Unknown are not valid vector element JOVs.
func (j Judgment) VectorElementJOV() Judgment {
	if j.kind == KindType {
		return Judgment{kind: KindType, typeName: j.typeName}
	}
	return j
}

// IsValidVectorElementJOV reports whether j may be the shared judgment of
// a homogeneous ForaValueArray storage mode.
func (j Judgment) IsValidVectorElementJOV() bool {
	return j.kind == KindType
}

func (j Judgment) key() string {
	switch j.kind {
	case KindType:
		if j.constant != "" {
			return "c:" + j.typeName + ":" + j.constant
		}
		return "t:" + j.typeName
	case KindUnion:
		s := "u:"
		for _, m := range j.members {
			s += m.key() + ","
		}
		return s
	default:
		return "unknown"
	}
}

// Equal reports structural equality, used by the judgment-table
// deduplication in ForaValueArray.
func (j Judgment) Equal(other Judgment) bool {
	return j.key() == other.key()
}

// Hash is a stable string hash suitable for a dedup map key; it is not
// required to match any particular numeric hash function.
func (j Judgment) Hash() string { return j.key() }

// Compare gives Judgment a total order: Unknown < Union < Type < Constant
// at the top level, then lexically by key within a level.
func (j Judgment) Compare(other Judgment) int {
	rank := func(k Judgment) int {
		switch {
		case k.kind == KindUnknown:
			return 0
		case k.kind == KindUnion:
			return 1
		case k.kind == KindType && k.constant == "":
			return 2
		default:
			return 3
		}
	}
	rj, ro := rank(j), rank(other)
	if rj != ro {
		return rj - ro
	}
	kj, ko := j.key(), other.key()
	switch {
	case kj < ko:
		return -1
	case kj > ko:
		return 1
	default:
		return 0
	}
}

// ByteSize returns the fixed storage stride in bytes for a Type
// judgment's natural representation, or -1 when the type is non-POD /
// variable width and must go through the offset table.
func (j Judgment) ByteSize() int {
	if j.kind != KindType {
		return -1
	}
	switch j.typeName {
	case TypeNothing:
		return 0
	case TypeBool:
		return 1
	case TypeInt64, TypeFloat64:
		return 8
	default:
		return -1
	}
}

// IsPOD reports whether values of this judgment can be bit-copied without
// running a constructor/destructor scatter pass.
func (j Judgment) IsPOD() bool {
	return j.ByteSize() >= 0
}

func (j Judgment) String() string {
	switch j.kind {
	case KindUnknown:
		return "unknown"
	case KindUnion:
		return fmt.Sprintf("union%v", j.members)
	default:
		if j.constant != "" {
			return fmt.Sprintf("%s(=%s)", j.typeName, j.constant)
		}
		return j.typeName
	}
}
