package index

import (
	"slices"

	"github.com/xiang66/ccls/pkg/types"
)

// IndexType is a type entity: its Def plus accumulated occurrences
type IndexType struct {
	Usr types.Usr `json:"usr"`
	ID  TypeID    `json:"id"`
	Def TypeDef   `json:"def"`

	Declarations []Use `json:"declarations"`

	// Immediate derived types.
	Derived []TypeID `json:"derived"`

	// Declared variables of this type.
	Instances []VarID `json:"instances"`

	// Every usage, useful for things like renames.
	Uses []Use `json:"uses"`
}

// FuncDeclaration is one forward declaration of a function
type FuncDeclaration struct {
	// Range of only the function name.
	Spell Use `json:"spell"`
	// Location of the parameter names.
	ParamSpellings []types.Range `json:"param_spellings"`
}

// IndexFunc is a function entity
type IndexFunc struct {
	Usr types.Usr `json:"usr"`
	ID  FuncID    `json:"id"`
	Def FuncDef   `json:"def"`

	Declarations []FuncDeclaration `json:"declarations"`

	// Methods which directly override this one.
	Derived []FuncID `json:"derived"`

	// Calls and other usages. Uses outside any function context name the
	// file-level scope.
	Uses []Use `json:"uses"`
}

// IndexVar is a variable entity
type IndexVar struct {
	Usr types.Usr `json:"usr"`
	ID  VarID     `json:"id"`
	Def VarDef    `json:"def"`

	Declarations []Use `json:"declarations"`
	Uses         []Use `json:"uses"`
}

func (t *IndexType) finalize() {
	t.Declarations = MergeUseRoles(t.Declarations)
	t.Uses = MergeUseRoles(t.Uses)
	t.Derived = sortIDs(t.Derived)
	t.Instances = sortIDs(t.Instances)
	t.Def.Bases = uniqueIDs(t.Def.Bases)
	t.Def.Types = uniqueIDs(t.Def.Types)
	t.Def.Funcs = uniqueIDs(t.Def.Funcs)
	t.Def.Vars = uniqueIDs(t.Def.Vars)
}

func (f *IndexFunc) finalize() {
	slices.SortStableFunc(f.Declarations, func(a, b FuncDeclaration) int { return a.Spell.Compare(b.Spell) })
	f.Declarations = slices.CompactFunc(f.Declarations, func(a, b FuncDeclaration) bool {
		return a.Spell.Compare(b.Spell) == 0
	})
	f.Uses = MergeUseRoles(f.Uses)
	f.Derived = sortIDs(f.Derived)
	f.Def.Bases = uniqueIDs(f.Def.Bases)
	f.Def.Vars = uniqueIDs(f.Def.Vars)
	f.Def.Callees = MergeRefRoles(f.Def.Callees)
}

func (v *IndexVar) finalize() {
	v.Declarations = MergeUseRoles(v.Declarations)
	v.Uses = MergeUseRoles(v.Uses)
}
