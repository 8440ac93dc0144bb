package index

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/xiang66/ccls/pkg/types"
)

// Cache format versions. A major bump is a breaking layout change and
// invalidates every cache file; a minor bump is an additive change that
// only the MessagePack form cares about.
const (
	MajorVersion = 17
	MinorVersion = 0
)

var (
	// ErrIDSpaceExhausted is returned when a file holds more entities than ids
	ErrIDSpaceExhausted = errors.New("id space exhausted")
	// ErrCorruptIndex is returned when a loaded IndexFile violates the
	// usr/id bijection
	ErrCorruptIndex = errors.New("corrupt index file")
)

// IndexInclude is one #include directive
type IndexInclude struct {
	// Line that has the include directive. A line is good enough for
	// clicking.
	Line int `json:"line"`
	// Absolute path of the included file.
	ResolvedPath string `json:"resolved_path"`
}

// ExternalRef records the USR of a relationship target that is not declared
// in this file, so a later USR join can rewire the edge
type ExternalRef struct {
	From       SymbolIdx        `json:"from"`
	Relation   types.Relation   `json:"relation"`
	TargetUsr  types.Usr        `json:"target_usr"`
	TargetKind types.SymbolKind `json:"target_kind"`
}

// IndexFile is the index of one physical file produced by one parse
type IndexFile struct {
	IDCache IDCache `json:"-"`

	ID                   FileID           `json:"id"`
	Path                 string           `json:"path"`
	Args                 []string         `json:"args"`
	LastModificationTime int64            `json:"last_modification_time"`
	Language             types.LanguageID `json:"language"`
	ContentHash          uint64           `json:"content_hash"`

	// The translation unit source whose parse produced this file. When a
	// header changes this is what gets reparsed.
	ImportFile string `json:"import_file"`

	// Source ranges that were not processed.
	SkippedByPreprocessor []types.Range `json:"skipped_by_preprocessor"`

	Includes     []IndexInclude `json:"includes"`
	Dependencies []string       `json:"dependencies"`

	Types []IndexType `json:"types"`
	Funcs []IndexFunc `json:"funcs"`
	Vars  []IndexVar  `json:"vars"`

	ExternalRefs []ExternalRef `json:"external_refs"`

	// Diagnostics found when indexing this file. Not serialized.
	Diagnostics []types.Diagnostic `json:"-"`
	// File contents at the time of index. Not serialized.
	FileContents string `json:"-"`
}

// NewIndexFile creates an empty index for path
func NewIndexFile(path, contents string) *IndexFile {
	return &IndexFile{
		IDCache:      NewIDCache(path),
		Path:         path,
		FileContents: contents,
	}
}

// ToTypeID returns the local id of usr, creating the entity on first sight
func (f *IndexFile) ToTypeID(usr types.Usr) (TypeID, error) {
	id, created, err := f.IDCache.types.allocate(usr, len(f.Types))
	if err != nil {
		return id, err
	}
	if created {
		f.Types = append(f.Types, IndexType{Usr: usr, ID: id, Def: TypeDef{File: f.ID}})
	}
	return id, nil
}

// ToFuncID returns the local id of usr, creating the entity on first sight
func (f *IndexFile) ToFuncID(usr types.Usr) (FuncID, error) {
	id, created, err := f.IDCache.funcs.allocate(usr, len(f.Funcs))
	if err != nil {
		return id, err
	}
	if created {
		f.Funcs = append(f.Funcs, IndexFunc{Usr: usr, ID: id, Def: FuncDef{File: f.ID}})
	}
	return id, nil
}

// ToVarID returns the local id of usr, creating the entity on first sight
func (f *IndexFile) ToVarID(usr types.Usr) (VarID, error) {
	id, created, err := f.IDCache.vars.allocate(usr, len(f.Vars))
	if err != nil {
		return id, err
	}
	if created {
		f.Vars = append(f.Vars, IndexVar{Usr: usr, ID: id, Def: VarDef{File: f.ID}})
	}
	return id, nil
}

// ToID dispatches on kind
func (f *IndexFile) ToID(usr types.Usr, kind types.SymbolKind) (SymbolIdx, error) {
	switch kind {
	case types.KindType:
		id, err := f.ToTypeID(usr)
		return id.Idx(), err
	case types.KindFunc:
		id, err := f.ToFuncID(usr)
		return id.Idx(), err
	case types.KindVar:
		id, err := f.ToVarID(usr)
		return id.Idx(), err
	}
	return SymbolIdx{ID: InvalidAnyID}, fmt.Errorf("cannot allocate %s id for %q", kind, usr)
}

// Type resolves a type id minted by this file. An id from elsewhere is a
// programming error and panics.
func (f *IndexFile) Type(id TypeID) *IndexType {
	return &f.Types[id]
}

// Func resolves a function id minted by this file
func (f *IndexFile) Func(id FuncID) *IndexFunc {
	return &f.Funcs[id]
}

// Var resolves a variable id minted by this file
func (f *IndexFile) Var(id VarID) *IndexVar {
	return &f.Vars[id]
}

// Lookup finds the handle of an already-seen usr
func (f *IndexFile) Lookup(usr types.Usr) (SymbolIdx, bool) {
	if id, ok := f.IDCache.TypeID(usr); ok {
		return id.Idx(), true
	}
	if id, ok := f.IDCache.FuncID(usr); ok {
		return id.Idx(), true
	}
	if id, ok := f.IDCache.VarID(usr); ok {
		return id.Idx(), true
	}
	return SymbolIdx{ID: InvalidAnyID}, false
}

// Finalize sorts and deduplicates every reference list. It is idempotent.
func (f *IndexFile) Finalize() {
	for i := range f.Types {
		f.Types[i].finalize()
	}
	for i := range f.Funcs {
		f.Funcs[i].finalize()
	}
	for i := range f.Vars {
		f.Vars[i].finalize()
	}
	slices.SortFunc(f.SkippedByPreprocessor, types.Range.Compare)
	f.SkippedByPreprocessor = slices.Compact(f.SkippedByPreprocessor)
	f.Dependencies = slices.Compact(slices.Sorted(slices.Values(f.Dependencies)))
	slices.SortFunc(f.ExternalRefs, ExternalRef.Compare)
	f.ExternalRefs = slices.Compact(f.ExternalRefs)
}

// Compare orders by (from, relation, target usr, target kind)
func (r ExternalRef) Compare(o ExternalRef) int {
	if c := r.From.Compare(o.From); c != 0 {
		return c
	}
	if c := cmp.Compare(r.Relation, o.Relation); c != 0 {
		return c
	}
	if c := strings.Compare(string(r.TargetUsr), string(o.TargetUsr)); c != 0 {
		return c
	}
	return cmp.Compare(r.TargetKind, o.TargetKind)
}

// USRs returns every USR with an entity in this file, by kind
func (f *IndexFile) USRs() map[types.Usr]types.SymbolKind {
	out := make(map[types.Usr]types.SymbolKind, len(f.Types)+len(f.Funcs)+len(f.Vars))
	for i := range f.Types {
		out[f.Types[i].Usr] = types.KindType
	}
	for i := range f.Funcs {
		out[f.Funcs[i].Usr] = types.KindFunc
	}
	for i := range f.Vars {
		out[f.Vars[i].Usr] = types.KindVar
	}
	return out
}

// RebuildIDCache restores the usr/id maps of a deserialized file and
// verifies the bijection
func (f *IndexFile) RebuildIDCache() error {
	f.IDCache = NewIDCache(f.Path)
	for i := range f.Types {
		if err := rebuild(&f.IDCache.types, f.Types[i].Usr, f.Types[i].ID, i); err != nil {
			return err
		}
	}
	for i := range f.Funcs {
		if err := rebuild(&f.IDCache.funcs, f.Funcs[i].Usr, f.Funcs[i].ID, i); err != nil {
			return err
		}
	}
	for i := range f.Vars {
		if err := rebuild(&f.IDCache.vars, f.Vars[i].Usr, f.Vars[i].ID, i); err != nil {
			return err
		}
	}
	return nil
}

func rebuild[T any](m *usrMap[T], usr types.Usr, id ID[T], pos int) error {
	if int(id) != pos {
		return fmt.Errorf("%w: %s %q has id %d at position %d", ErrCorruptIndex, id.Kind(), usr, id, pos)
	}
	if _, dup := m.toID[usr]; dup {
		return fmt.Errorf("%w: duplicate %s usr %q", ErrCorruptIndex, id.Kind(), usr)
	}
	m.set(usr, id)
	return nil
}

// ToString renders the file as indented JSON
func (f *IndexFile) ToString() (string, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render index file: %w", err)
	}
	return string(data), nil
}
