package index

import (
	"slices"

	"github.com/xiang66/ccls/pkg/types"
)

// Reference is a source range pointing at a (kind, id) target
type Reference struct {
	Range types.Range      `json:"range"`
	ID    AnyID            `json:"id"`
	Kind  types.SymbolKind `json:"kind"`
	Role  types.Role       `json:"role"`
}

// Valid reports whether the range is set
func (r Reference) Valid() bool {
	return r.Range.Valid()
}

// Idx returns the target handle
func (r Reference) Idx() SymbolIdx {
	return SymbolIdx{ID: r.ID, Kind: r.Kind}
}

// Compare orders lexicographically over (range, id, kind, role)
func (r Reference) Compare(o Reference) int {
	if c := r.Range.Compare(o.Range); c != 0 {
		return c
	}
	if c := r.Idx().Compare(o.Idx()); c != 0 {
		return c
	}
	switch {
	case r.Role < o.Role:
		return -1
	case r.Role > o.Role:
		return 1
	}
	return 0
}

func (r Reference) compareTarget(o Reference) int {
	if c := r.Range.Compare(o.Range); c != 0 {
		return c
	}
	return r.Idx().Compare(o.Idx())
}

// sameTarget ignores the role
func (r Reference) sameTarget(o Reference) bool {
	return r.Range == o.Range && r.ID == o.ID && r.Kind == o.Kind
}

// SymbolRef is an occurrence whose id/kind name the referenced entity
type SymbolRef struct {
	Reference
}

// NewSymbolRef builds a SymbolRef
func NewSymbolRef(rng types.Range, idx SymbolIdx, role types.Role) SymbolRef {
	return SymbolRef{Reference{Range: rng, ID: idx.ID, Kind: idx.Kind, Role: role}}
}

// Use is an occurrence whose id/kind name the lexically enclosing entity
type Use struct {
	Reference
	File FileID `json:"file"`
}

// NewUse builds a Use
func NewUse(rng types.Range, idx SymbolIdx, role types.Role, file FileID) Use {
	return Use{Reference: Reference{Range: rng, ID: idx.ID, Kind: idx.Kind, Role: role}, File: file}
}

// Compare orders by the reference tuple, then file
func (u Use) Compare(o Use) int {
	if c := u.Reference.Compare(o.Reference); c != 0 {
		return c
	}
	switch {
	case u.File < o.File:
		return -1
	case u.File > o.File:
		return 1
	}
	return 0
}

// SortUses sorts and removes exact duplicates
func SortUses(uses []Use) []Use {
	slices.SortFunc(uses, Use.Compare)
	return slices.CompactFunc(uses, func(a, b Use) bool { return a.Compare(b) == 0 })
}

// SortSymbolRefs sorts and removes exact duplicates
func SortSymbolRefs(refs []SymbolRef) []SymbolRef {
	slices.SortFunc(refs, func(a, b SymbolRef) int { return a.Compare(b.Reference) })
	return slices.CompactFunc(refs, func(a, b SymbolRef) bool { return a.Compare(b.Reference) == 0 })
}

// MergeUseRoles sorts uses and collapses entries that differ only by role,
// OR-ing their roles together
func MergeUseRoles(uses []Use) []Use {
	slices.SortFunc(uses, func(a, b Use) int {
		if c := a.compareTarget(b.Reference); c != 0 {
			return c
		}
		if a.File != b.File {
			if a.File < b.File {
				return -1
			}
			return 1
		}
		return int(a.Role) - int(b.Role)
	})
	out := uses[:0]
	for _, u := range uses {
		if n := len(out); n > 0 && out[n-1].sameTarget(u.Reference) && out[n-1].File == u.File {
			out[n-1].Role |= u.Role
			continue
		}
		out = append(out, u)
	}
	return out
}

// MergeRefRoles is MergeUseRoles for SymbolRefs
func MergeRefRoles(refs []SymbolRef) []SymbolRef {
	refs = SortSymbolRefs(refs)
	out := refs[:0]
	for _, r := range refs {
		if n := len(out); n > 0 && out[n-1].sameTarget(r.Reference) {
			out[n-1].Role |= r.Role
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortIDs[T any](ids []ID[T]) []ID[T] {
	slices.Sort(ids)
	return slices.Compact(ids)
}

// uniqueIDs drops repeated ids keeping first-seen order
func uniqueIDs[T any](ids []ID[T]) []ID[T] {
	seen := make(map[ID[T]]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
