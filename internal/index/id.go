package index

import (
	"math"

	"github.com/xiang66/ccls/pkg/types"
)

// RawID is the untyped storage of every id
type RawID uint32

const invalidRaw RawID = math.MaxUint32

// ID is an index into the entity collection for T within one IndexFile.
// Ids are not stable across parses; the Usr is.
type ID[T any] RawID

type (
	FileID = ID[IndexFile]
	TypeID = ID[IndexType]
	FuncID = ID[IndexFunc]
	VarID  = ID[IndexVar]
)

// AnyID is an id with its kind erased, used in heterogeneous references
type AnyID RawID

// InvalidID returns the unset id for T
func InvalidID[T any]() ID[T] {
	return ID[T](invalidRaw)
}

// Valid reports whether the id is set
func (id ID[T]) Valid() bool {
	return RawID(id) != invalidRaw
}

// Raw returns the untyped index
func (id ID[T]) Raw() RawID {
	return RawID(id)
}

// Erase drops the kind tag
func (id ID[T]) Erase() AnyID {
	return AnyID(id)
}

// Kind returns the symbol kind T stands for
func (id ID[T]) Kind() types.SymbolKind {
	return kindOf[T]()
}

// Idx pairs the erased id with its kind
func (id ID[T]) Idx() SymbolIdx {
	return SymbolIdx{ID: id.Erase(), Kind: kindOf[T]()}
}

// Valid reports whether the erased id is set
func (id AnyID) Valid() bool {
	return RawID(id) != invalidRaw
}

// InvalidAnyID is the unset erased id
const InvalidAnyID = AnyID(invalidRaw)

// Assume narrows a symbol handle to a typed id. It fails when the handle's
// kind tag does not match T.
func Assume[T any](idx SymbolIdx) (ID[T], bool) {
	if kindOf[T]() != idx.Kind || idx.Kind == types.KindInvalid {
		return InvalidID[T](), false
	}
	return ID[T](idx.ID), true
}

func kindOf[T any]() types.SymbolKind {
	var p *T
	switch any(p).(type) {
	case *IndexFile:
		return types.KindFile
	case *IndexType:
		return types.KindType
	case *IndexFunc:
		return types.KindFunc
	case *IndexVar:
		return types.KindVar
	default:
		return types.KindInvalid
	}
}

// SymbolIdx is a uniform handle to some symbol of some kind
type SymbolIdx struct {
	ID   AnyID            `json:"id"`
	Kind types.SymbolKind `json:"kind"`
}

// Compare orders by id, then kind
func (s SymbolIdx) Compare(o SymbolIdx) int {
	switch {
	case s.ID < o.ID:
		return -1
	case s.ID > o.ID:
		return 1
	case s.Kind < o.Kind:
		return -1
	case s.Kind > o.Kind:
		return 1
	default:
		return 0
	}
}

// Less reports whether s orders before o
func (s SymbolIdx) Less(o SymbolIdx) bool {
	return s.Compare(o) < 0
}
