package index

import (
	"slices"

	"go.lsp.dev/protocol"

	"github.com/xiang66/ccls/pkg/types"
)

// NameInfo holds one owning name string and the offsets slicing the
// qualified and short names out of it
type NameInfo struct {
	DetailedName    string `json:"detailed_name"`
	QualNameOffset  int16  `json:"qual_name_offset"`
	ShortNameOffset int16  `json:"short_name_offset"`
	ShortNameSize   int16  `json:"short_name_size"`
}

// Name returns the qualified or short view of DetailedName
func (n *NameInfo) Name(qualified bool) string {
	if !n.SlicesValid() {
		return ""
	}
	end := int(n.ShortNameOffset) + int(n.ShortNameSize)
	if qualified {
		return n.DetailedName[n.QualNameOffset:end]
	}
	return n.DetailedName[n.ShortNameOffset:end]
}

// SlicesValid reports whether the offsets obey
// 0 <= qual <= short and short+size <= len(detailed)
func (n *NameInfo) SlicesValid() bool {
	return n.QualNameOffset >= 0 &&
		n.QualNameOffset <= n.ShortNameOffset &&
		n.ShortNameSize >= 0 &&
		int(n.ShortNameOffset)+int(n.ShortNameSize) <= len(n.DetailedName)
}

// TypeDef is the metadata of a type (class, struct, enum, typedef...)
type TypeDef struct {
	NameInfo
	Hover    string `json:"hover,omitempty"`
	Comments string `json:"comments,omitempty"`

	// A type is only ever spelled at its definition; forward declarations
	// are recorded in IndexType.Declarations.
	Spell  *Use `json:"spell,omitempty"`
	Extent *Use `json:"extent,omitempty"`

	// Immediate parent types.
	Bases []TypeID `json:"bases"`

	// Types, functions and variables declared inside this type.
	Types []TypeID `json:"types"`
	Funcs []FuncID `json:"funcs"`
	Vars  []VarID  `json:"vars"`

	File FileID `json:"file"`
	// Set when this type comes from a typedef or using declaration.
	AliasOf *TypeID             `json:"alias_of,omitempty"`
	Kind    protocol.SymbolKind `json:"kind"`
}

// Equal compares every field, including documentation
func (d *TypeDef) Equal(o *TypeDef) bool {
	return d.NameInfo == o.NameInfo && d.Hover == o.Hover && d.Comments == o.Comments &&
		usePtrEqual(d.Spell, o.Spell) && usePtrEqual(d.Extent, o.Extent) &&
		idPtrEqual(d.AliasOf, o.AliasOf) && slices.Equal(d.Bases, o.Bases) &&
		slices.Equal(d.Types, o.Types) && slices.Equal(d.Funcs, o.Funcs) &&
		slices.Equal(d.Vars, o.Vars) && d.Kind == o.Kind
}

// FuncDef is the metadata of a function or method
type FuncDef struct {
	NameInfo
	Hover    string `json:"hover,omitempty"`
	Comments string `json:"comments,omitempty"`
	Spell    *Use   `json:"spell,omitempty"`
	Extent   *Use   `json:"extent,omitempty"`

	// Methods this method overrides.
	Bases []FuncID `json:"bases"`

	// Local variables and parameters.
	Vars []VarID `json:"vars"`

	// Functions this function calls.
	Callees []SymbolRef `json:"callees"`

	File FileID `json:"file"`
	// Type which declares this one when it is a method.
	DeclaringType *TypeID            `json:"declaring_type,omitempty"`
	Kind          protocol.SymbolKind `json:"kind"`
	Storage       types.StorageClass  `json:"storage"`
}

// Equal compares every field, including documentation
func (d *FuncDef) Equal(o *FuncDef) bool {
	return d.NameInfo == o.NameInfo && d.Hover == o.Hover && d.Comments == o.Comments &&
		usePtrEqual(d.Spell, o.Spell) && usePtrEqual(d.Extent, o.Extent) &&
		idPtrEqual(d.DeclaringType, o.DeclaringType) && slices.Equal(d.Bases, o.Bases) &&
		slices.Equal(d.Vars, o.Vars) && slices.Equal(d.Callees, o.Callees) &&
		d.Kind == o.Kind && d.Storage == o.Storage
}

// VarDef is the metadata of a variable, field, parameter or enumerator
type VarDef struct {
	NameInfo
	Hover    string `json:"hover,omitempty"`
	Comments string `json:"comments,omitempty"`
	Spell    *Use   `json:"spell,omitempty"`
	Extent   *Use   `json:"extent,omitempty"`

	File FileID `json:"file"`
	// Type of the variable.
	Type *TypeID `json:"type,omitempty"`

	Kind protocol.SymbolKind `json:"kind"`
	// A variable may be declared both extern and defined.
	Storage types.StorageClass `json:"storage"`
}

// IsLocal reports whether the variable is a function-local or parameter:
// a Variable-kind entity spelled inside a function scope
func (d *VarDef) IsLocal() bool {
	if d.Kind != protocol.SymbolKindVariable {
		return false
	}
	scope := d.Spell
	if scope == nil {
		scope = d.Extent
	}
	return scope != nil && scope.Kind == types.KindFunc
}

// Equal compares every field, including documentation
func (d *VarDef) Equal(o *VarDef) bool {
	return d.NameInfo == o.NameInfo && d.Hover == o.Hover && d.Comments == o.Comments &&
		usePtrEqual(d.Spell, o.Spell) && usePtrEqual(d.Extent, o.Extent) &&
		idPtrEqual(d.Type, o.Type) && d.Kind == o.Kind && d.Storage == o.Storage
}

func usePtrEqual(a, b *Use) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idPtrEqual[T any](a, b *ID[T]) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idPtr[T any](id ID[T]) *ID[T] {
	return &id
}
