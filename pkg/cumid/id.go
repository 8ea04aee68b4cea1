// Package cumid defines the opaque content-hash identifiers that flow
// between the scheduler's subsystems: computation ids (root and split),
// machine ids, cumulus client ids, and external io task ids. All are
// 160-bit values with dense equality and a total order, derived with
// xxhash over their defining fields so that two processes constructing
// the "same" id from the same inputs agree without coordination.
package cumid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ID160 is an opaque 160-bit content hash: two xxhash64 sums (the second
// over the input prefixed with one extra byte), concatenated and followed
// by the low 32 bits of their XOR. It supports dense equality and a total
// byte-order comparison.
type ID160 [20]byte

// HashBytes derives an ID160 from arbitrary content.
func HashBytes(parts ...[]byte) ID160 {
	h1 := xxhash.New()
	for _, p := range parts {
		h1.Write(p)
	}
	sum1 := h1.Sum64()

	h2 := xxhash.New()
	h2.Write([]byte{0xC5})
	for _, p := range parts {
		h2.Write(p)
	}
	sum2 := h2.Sum64()

	var id ID160
	binary.BigEndian.PutUint64(id[0:8], sum1)
	binary.BigEndian.PutUint64(id[8:16], sum2)
	binary.BigEndian.PutUint32(id[16:20], uint32(sum1^sum2))
	return id
}

// NewSalt returns a fresh random salt suitable for seeding a root
// ComputationId or a machine identity when no natural content exists to
// hash (e.g. distinguishing two roots with an identical definition).
func NewSalt() []byte {
	u := uuid.New()
	return u[:]
}

func (id ID160) String() string {
	return hex.EncodeToString(id[:])
}

// Compare implements a total order: -1, 0, 1.
func (id ID160) Compare(other ID160) int {
	return bytes.Compare(id[:], other[:])
}

func (id ID160) Less(other ID160) bool {
	return id.Compare(other) < 0
}

func (id ID160) IsZero() bool {
	return id == ID160{}
}

// MachineId identifies a worker machine in the cluster.
type MachineId struct{ ID160 }

// NewMachineId derives a MachineId from a configured identity seed and a
// process salt, so restarts on the same configured seed are stable while
// two machines with an empty seed still disambiguate via the salt.
func NewMachineId(seed string, salt []byte) MachineId {
	return MachineId{HashBytes([]byte("machine"), []byte(seed), salt)}
}

// CumulusClientId identifies a client session submitting root computations.
type CumulusClientId struct{ ID160 }

func NewCumulusClientId(seed string, salt []byte) CumulusClientId {
	return CumulusClientId{HashBytes([]byte("client"), []byte(seed), salt)}
}

// ExternalIoTaskId identifies an outstanding external IO request (e.g. a
// page fetch) whose completion the scheduler core awaits but does not
// itself perform.
type ExternalIoTaskId struct{ ID160 }

func NewExternalIoTaskId(parts ...[]byte) ExternalIoTaskId {
	all := append([][]byte{[]byte("io-task")}, parts...)
	return ExternalIoTaskId{HashBytes(all...)}
}

// SplitTreeAddress locates a split computation beneath its root: depth is
// the number of scheduler-introduced subdivisions, path is the sequence
// of child indices taken from the root to reach this split.
type SplitTreeAddress struct {
	Depth int
	Path  []uint32
}

func (a SplitTreeAddress) bytes() []byte {
	buf := make([]byte, 4+4*len(a.Path))
	binary.BigEndian.PutUint32(buf[0:4], uint32(a.Depth))
	for i, p := range a.Path {
		binary.BigEndian.PutUint32(buf[4+4*i:8+4*i], p)
	}
	return buf
}

func (a SplitTreeAddress) String() string {
	return fmt.Sprintf("depth=%d path=%v", a.Depth, a.Path)
}

// Child returns the address of the next split below a, appending idx to
// the path.
func (a SplitTreeAddress) Child(idx uint32) SplitTreeAddress {
	path := make([]uint32, len(a.Path)+1)
	copy(path, a.Path)
	path[len(a.Path)] = idx
	return SplitTreeAddress{Depth: a.Depth + 1, Path: path}
}

// ComputationId is either a root (a definition hash plus a disambiguating
// salt) or a split (a root id plus a SplitTreeAddress). The zero value is
// not a valid id.
type ComputationId struct {
	root ID160
	// isSplit distinguishes a root ComputationId (isSplit == false, addr
	// is the zero value) from a split one.
	isSplit bool
	rootOf  ID160 // root this split descends from; equals root when !isSplit
	addr    SplitTreeAddress
}

// NewRootComputationId derives a root ComputationId from a
// definition-hash and a salt disambiguating repeated submissions of an
// otherwise identical definition.
func NewRootComputationId(definitionHash []byte, salt []byte) ComputationId {
	id := HashBytes([]byte("root"), definitionHash, salt)
	return ComputationId{root: id, rootOf: id}
}

// NewSplitComputationId builds a split id beneath root at addr. The
// resulting id is content-derived so the same root+address always
// produces the same split id.
func NewSplitComputationId(root ComputationId, addr SplitTreeAddress) ComputationId {
	if root.isSplit {
		panic("cumid: split computation id must be created from a root, not another split")
	}
	id := HashBytes([]byte("split"), root.root[:], addr.bytes())
	return ComputationId{root: id, isSplit: true, rootOf: root.root, addr: addr}
}

func (c ComputationId) IsSplit() bool { return c.isSplit }
func (c ComputationId) IsRoot() bool  { return !c.isSplit }

// RootId returns the id of the root this computation belongs to: itself
// if it is already a root.
func (c ComputationId) RootId() ComputationId {
	if !c.isSplit {
		return c
	}
	return ComputationId{root: c.rootOf, rootOf: c.rootOf}
}

// SplitAddress returns the split address, valid only when IsSplit().
func (c ComputationId) SplitAddress() SplitTreeAddress {
	return c.addr
}

func (c ComputationId) ID() ID160 { return c.root }

func (c ComputationId) String() string {
	if c.isSplit {
		return fmt.Sprintf("split(%s,%s)", c.rootOf, c.addr)
	}
	return fmt.Sprintf("root(%s)", c.root)
}

func (c ComputationId) Equal(other ComputationId) bool {
	return c.root == other.root && c.isSplit == other.isSplit && c.rootOf == other.rootOf && c.addr.Depth == other.addr.Depth && pathEqual(c.addr.Path, other.addr.Path)
}

func pathEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c ComputationId) Less(other ComputationId) bool {
	return c.root.Less(other.root)
}
