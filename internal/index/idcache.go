package index

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/xiang66/ccls/pkg/types"
)

// usrMap is one bijection between USRs and ids of a single kind
type usrMap[T any] struct {
	toID  map[types.Usr]ID[T]
	toUsr map[ID[T]]types.Usr
}

func newUsrMap[T any]() usrMap[T] {
	return usrMap[T]{
		toID:  make(map[types.Usr]ID[T]),
		toUsr: make(map[ID[T]]types.Usr),
	}
}

func (m *usrMap[T]) set(usr types.Usr, id ID[T]) {
	m.toID[usr] = id
	m.toUsr[id] = usr
}

// allocate returns the id of usr, minting the next sequential id n when the
// usr has not been seen. It fails when n does not fit an id.
func (m *usrMap[T]) allocate(usr types.Usr, n int) (id ID[T], created bool, err error) {
	if id, found := m.toID[usr]; found {
		return id, false, nil
	}
	raw, err := safecast.Conv[uint32](n)
	if err != nil || RawID(raw) == invalidRaw {
		return InvalidID[T](), false, fmt.Errorf("%w: %d entities", ErrIDSpaceExhausted, n)
	}
	id = ID[T](raw)
	m.set(usr, id)
	return id, true, nil
}

// IDCache maps USRs to local ids, per kind, for one IndexFile
type IDCache struct {
	PrimaryFile string

	types usrMap[IndexType]
	funcs usrMap[IndexFunc]
	vars  usrMap[IndexVar]
}

// NewIDCache creates an empty cache for primaryFile
func NewIDCache(primaryFile string) IDCache {
	return IDCache{
		PrimaryFile: primaryFile,
		types:       newUsrMap[IndexType](),
		funcs:       newUsrMap[IndexFunc](),
		vars:        newUsrMap[IndexVar](),
	}
}

// TypeID looks up the id minted for usr
func (c *IDCache) TypeID(usr types.Usr) (TypeID, bool) {
	id, ok := c.types.toID[usr]
	return id, ok
}

// FuncID looks up the id minted for usr
func (c *IDCache) FuncID(usr types.Usr) (FuncID, bool) {
	id, ok := c.funcs.toID[usr]
	return id, ok
}

// VarID looks up the id minted for usr
func (c *IDCache) VarID(usr types.Usr) (VarID, bool) {
	id, ok := c.vars.toID[usr]
	return id, ok
}

// TypeUsr is the reverse of TypeID
func (c *IDCache) TypeUsr(id TypeID) (types.Usr, bool) {
	usr, ok := c.types.toUsr[id]
	return usr, ok
}

// FuncUsr is the reverse of FuncID
func (c *IDCache) FuncUsr(id FuncID) (types.Usr, bool) {
	usr, ok := c.funcs.toUsr[id]
	return usr, ok
}

// VarUsr is the reverse of VarID
func (c *IDCache) VarUsr(id VarID) (types.Usr, bool) {
	usr, ok := c.vars.toUsr[id]
	return usr, ok
}

// Usr resolves any handle back to its USR
func (c *IDCache) Usr(idx SymbolIdx) (types.Usr, bool) {
	switch idx.Kind {
	case types.KindType:
		return c.TypeUsr(TypeID(idx.ID))
	case types.KindFunc:
		return c.FuncUsr(FuncID(idx.ID))
	case types.KindVar:
		return c.VarUsr(VarID(idx.ID))
	}
	return "", false
}

// Len returns the number of USRs known per kind
func (c *IDCache) Len() (numTypes, numFuncs, numVars int) {
	return len(c.types.toID), len(c.funcs.toID), len(c.vars.toID)
}
