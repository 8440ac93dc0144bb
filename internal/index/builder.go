package index

import (
	"fmt"
	"slices"

	"go.lsp.dev/protocol"

	"github.com/xiang66/ccls/pkg/types"
)

// FileRouter decides which IndexFile an event located in path belongs to
type FileRouter interface {
	// File returns the IndexFile for path, creating it on first touch, or
	// nil when this parse must not index the file.
	File(path string) *IndexFile
}

// Anomaly reasons counted by the builder
const (
	AnomalyEmptyUsr      = "empty usr"
	AnomalyMissingName   = "missing name"
	AnomalyNameTooLong   = "name too long"
	AnomalyBadKind       = "unexpected kind"
	AnomalySelfAlias     = "self-referential alias"
	AnomalyMissingScope  = "missing container"
	AnomalyIDExhausted   = "id space exhausted"
	AnomalyMissingTarget = "missing relation target"
)

// Stats counts what happened while applying one event stream
type Stats struct {
	Events    int
	Dropped   int // events located in files owned by another worker
	Anomalies map[string]int
}

// AnomalyCount returns the total number of skipped anomalous events
func (s Stats) AnomalyCount() int {
	n := 0
	for _, c := range s.Anomalies {
		n += c
	}
	return n
}

// Builder turns one parse's event stream into per-file indexes
type Builder struct {
	router     FileRouter
	importFile string
	args       []string
	language   types.LanguageID

	ns       *NamespaceHelper
	files    []*IndexFile
	byPath   map[string]*IndexFile
	included map[string]struct{}
	stats    Stats
}

// NewBuilder starts a pass over the translation unit rooted at importFile.
// The main file is touched first so it is always part of the result.
func NewBuilder(router FileRouter, importFile string, args []string) *Builder {
	b := &Builder{
		router:     router,
		importFile: importFile,
		args:       args,
		language:   types.SourceFileLanguage(importFile),
		ns:         NewNamespaceHelper(),
		byPath:     make(map[string]*IndexFile),
		included:   make(map[string]struct{}),
		stats:      Stats{Anomalies: make(map[string]int)},
	}
	b.file(importFile)
	return b
}

// file returns the IndexFile for path, initializing its metadata on first
// touch, or nil when the router declines it
func (b *Builder) file(path string) *IndexFile {
	if f, ok := b.byPath[path]; ok {
		return f
	}
	f := b.router.File(path)
	b.byPath[path] = f
	if f == nil {
		return nil
	}
	f.ID = FileID(len(b.files))
	f.ImportFile = b.importFile
	f.Args = b.args
	f.Language = types.SourceFileLanguage(path)
	if f.Language == types.LanguageUnknown {
		f.Language = b.language
	}
	b.files = append(b.files, f)
	return f
}

func (b *Builder) anomaly(reason string) {
	b.stats.Anomalies[reason]++
}

// ApplyResult applies every event of a parse and attaches diagnostics to
// the files they were reported in
func (b *Builder) ApplyResult(pr *types.ParseResult) {
	for i := range pr.Events {
		b.Apply(&pr.Events[i])
	}
	for _, d := range pr.Diagnostics {
		if f := b.byPath[d.File]; f != nil {
			f.Diagnostics = append(f.Diagnostics, d)
		}
	}
}

// Apply applies one event. Anomalous events are counted and skipped.
func (b *Builder) Apply(ev *types.Event) {
	b.stats.Events++
	f := b.file(ev.File)
	if f == nil {
		b.stats.Dropped++
		return
	}

	switch ev.Op {
	case types.OpInclude:
		f.Includes = append(f.Includes, IndexInclude{Line: ev.Line, ResolvedPath: ev.ResolvedPath})
		if ev.ResolvedPath != "" {
			f.Dependencies = append(f.Dependencies, ev.ResolvedPath)
			b.included[ev.ResolvedPath] = struct{}{}
		}
		return
	case types.OpSkipped:
		f.SkippedByPreprocessor = append(f.SkippedByPreprocessor, ev.Range)
		return
	}

	if !ev.Usr.Valid() {
		b.anomaly(AnomalyEmptyUsr)
		return
	}

	var err error
	switch ev.Op {
	case types.OpDeclaration:
		err = b.declare(f, ev)
	case types.OpReference:
		err = b.reference(f, ev)
	case types.OpRelation:
		err = b.relate(f, ev)
	default:
		b.anomaly(AnomalyBadKind)
	}
	if err != nil {
		b.anomaly(AnomalyIDExhausted)
	}
}

// scope resolves the lexically enclosing entity of an occurrence, creating
// a placeholder when the container has not been declared yet
func (b *Builder) scope(f *IndexFile, c *types.Container) (SymbolIdx, error) {
	fileScope := SymbolIdx{ID: f.ID.Erase(), Kind: types.KindFile}
	if c == nil {
		return fileScope, nil
	}
	if !c.Usr.Valid() {
		if !c.Anonymous {
			b.anomaly(AnomalyMissingScope)
		}
		return fileScope, nil
	}
	if c.Kind.ValidateKind() != nil {
		return fileScope, nil
	}
	return f.ToID(c.Usr, c.Kind)
}

func (b *Builder) declare(f *IndexFile, ev *types.Event) error {
	if ev.Name == "" {
		b.anomaly(AnomalyMissingName)
		return nil
	}
	qualified, shortOffset, shortSize, err := b.ns.QualifiedName(ev.Container, ev.Name)
	if err != nil {
		b.anomaly(AnomalyNameTooLong)
		return nil
	}
	name := NameInfo{DetailedName: qualified, ShortNameOffset: shortOffset, ShortNameSize: shortSize}

	scope, err := b.scope(f, ev.Container)
	if err != nil {
		return err
	}
	role := types.RoleDeclaration
	if ev.IsDefinition {
		role |= types.RoleDefinition
	}
	spell := NewUse(ev.Range, scope, role, f.ID)
	extent := NewUse(ev.Extent, scope, role, f.ID)

	switch ev.Kind {
	case types.KindType:
		id, err := f.ToTypeID(ev.Usr)
		if err != nil {
			return err
		}
		t := f.Type(id)
		fillName(&t.Def.NameInfo, name, ev.IsDefinition)
		t.Def.Kind = symbolKind(ev.SymKind, t.Def.Kind, protocol.SymbolKindClass)
		fillDocs(&t.Def.Hover, &t.Def.Comments, ev)
		if ev.IsDefinition {
			t.Def.Spell, t.Def.Extent = &spell, &extent
		} else {
			t.Declarations = append(t.Declarations, spell)
		}
		if parent, ok := Assume[IndexType](scope); ok && parent != id {
			pt := f.Type(parent)
			pt.Def.Types = append(pt.Def.Types, id)
		}

	case types.KindFunc:
		id, err := f.ToFuncID(ev.Usr)
		if err != nil {
			return err
		}
		fn := f.Func(id)
		fillName(&fn.Def.NameInfo, name, ev.IsDefinition)
		fillDocs(&fn.Def.Hover, &fn.Def.Comments, ev)
		if ev.Storage != types.StorageInvalid {
			fn.Def.Storage = ev.Storage
		}
		defaultKind := protocol.SymbolKindFunction
		if parent, ok := Assume[IndexType](scope); ok {
			defaultKind = protocol.SymbolKindMethod
			fn.Def.DeclaringType = idPtr(parent)
			pt := f.Type(parent)
			pt.Def.Funcs = append(pt.Def.Funcs, id)
		}
		fn.Def.Kind = symbolKind(ev.SymKind, fn.Def.Kind, defaultKind)
		if ev.IsDefinition {
			fn.Def.Spell, fn.Def.Extent = &spell, &extent
		} else {
			fn.Declarations = append(fn.Declarations, FuncDeclaration{
				Spell:          spell,
				ParamSpellings: slices.Clone(ev.ParamSpellings),
			})
		}

	case types.KindVar:
		id, err := f.ToVarID(ev.Usr)
		if err != nil {
			return err
		}
		v := f.Var(id)
		fillName(&v.Def.NameInfo, name, ev.IsDefinition)
		fillDocs(&v.Def.Hover, &v.Def.Comments, ev)
		if ev.Storage != types.StorageInvalid {
			v.Def.Storage = ev.Storage
		}
		defaultKind := protocol.SymbolKindVariable
		if parent, ok := Assume[IndexType](scope); ok {
			defaultKind = protocol.SymbolKindField
			pt := f.Type(parent)
			pt.Def.Vars = append(pt.Def.Vars, id)
		} else if parent, ok := Assume[IndexFunc](scope); ok {
			pf := f.Func(parent)
			pf.Def.Vars = append(pf.Def.Vars, id)
		}
		v.Def.Kind = symbolKind(ev.SymKind, v.Def.Kind, defaultKind)
		if ev.IsDefinition {
			v.Def.Spell, v.Def.Extent = &spell, &extent
		} else {
			v.Declarations = append(v.Declarations, spell)
		}

	default:
		b.anomaly(AnomalyBadKind)
	}
	return nil
}

func (b *Builder) reference(f *IndexFile, ev *types.Event) error {
	if ev.Kind.ValidateKind() != nil {
		b.anomaly(AnomalyBadKind)
		return nil
	}
	scope, err := b.scope(f, ev.Container)
	if err != nil {
		return err
	}
	target, err := f.ToID(ev.Usr, ev.Kind)
	if err != nil {
		return err
	}
	role := ev.Role
	if role == types.RoleNone {
		role = types.RoleReference
	}
	use := NewUse(ev.Range, scope, role, f.ID)

	switch ev.Kind {
	case types.KindType:
		t := f.Type(TypeID(target.ID))
		t.Uses = append(t.Uses, use)
	case types.KindFunc:
		fn := f.Func(FuncID(target.ID))
		fn.Uses = append(fn.Uses, use)
		if caller, ok := Assume[IndexFunc](scope); ok && role.Has(types.RoleCall) {
			c := f.Func(caller)
			c.Def.Callees = append(c.Def.Callees, NewSymbolRef(ev.Range, target, role))
		}
	case types.KindVar:
		v := f.Var(VarID(target.ID))
		v.Uses = append(v.Uses, use)
	}
	return nil
}

func (b *Builder) relate(f *IndexFile, ev *types.Event) error {
	if !ev.TargetUsr.Valid() {
		b.anomaly(AnomalyMissingTarget)
		return nil
	}
	if ev.Relation == types.RelationAliasOf && ev.TargetUsr == ev.Usr {
		b.anomaly(AnomalySelfAlias)
		return nil
	}
	wantKind, wantTarget := relationKinds(ev.Relation)
	if wantKind == types.KindInvalid || ev.Kind != wantKind ||
		(ev.TargetKind != types.KindInvalid && ev.TargetKind != wantTarget) {
		b.anomaly(AnomalyBadKind)
		return nil
	}

	_, known := f.Lookup(ev.TargetUsr)
	subject, err := f.ToID(ev.Usr, wantKind)
	if err != nil {
		return err
	}
	target, err := f.ToID(ev.TargetUsr, wantTarget)
	if err != nil {
		return err
	}
	if !known || !declaredHere(f, target) {
		f.ExternalRefs = append(f.ExternalRefs, ExternalRef{
			From:       subject,
			Relation:   ev.Relation,
			TargetUsr:  ev.TargetUsr,
			TargetKind: wantTarget,
		})
	}

	switch ev.Relation {
	case types.RelationBase:
		sub, tgt := TypeID(subject.ID), TypeID(target.ID)
		f.Type(sub).Def.Bases = append(f.Type(sub).Def.Bases, tgt)
		f.Type(tgt).Derived = append(f.Type(tgt).Derived, sub)
	case types.RelationAliasOf:
		f.Type(TypeID(subject.ID)).Def.AliasOf = idPtr(TypeID(target.ID))
	case types.RelationOverride:
		sub, tgt := FuncID(subject.ID), FuncID(target.ID)
		f.Func(sub).Def.Bases = append(f.Func(sub).Def.Bases, tgt)
		f.Func(tgt).Derived = append(f.Func(tgt).Derived, sub)
	case types.RelationVarType:
		v, t := VarID(subject.ID), TypeID(target.ID)
		f.Var(v).Def.Type = idPtr(t)
		f.Type(t).Instances = append(f.Type(t).Instances, v)
	case types.RelationInstance:
		v, t := VarID(subject.ID), TypeID(target.ID)
		f.Type(t).Instances = append(f.Type(t).Instances, v)
	}
	return nil
}

// Finish finalizes every touched file and returns them in first-touch
// order, main file first. The main file depends on every other file of the
// translation unit.
func (b *Builder) Finish() ([]*IndexFile, Stats) {
	if len(b.files) > 0 && b.files[0].Path == b.importFile {
		main := b.files[0]
		for _, f := range b.files[1:] {
			main.Dependencies = append(main.Dependencies, f.Path)
		}
		for path := range b.included {
			if path != main.Path {
				main.Dependencies = append(main.Dependencies, path)
			}
		}
	}
	for _, f := range b.files {
		f.Finalize()
	}
	return b.files, b.stats
}

func relationKinds(r types.Relation) (subject, target types.SymbolKind) {
	switch r {
	case types.RelationBase, types.RelationAliasOf:
		return types.KindType, types.KindType
	case types.RelationOverride:
		return types.KindFunc, types.KindFunc
	case types.RelationVarType, types.RelationInstance:
		return types.KindVar, types.KindType
	}
	return types.KindInvalid, types.KindInvalid
}

// declaredHere reports whether the entity behind idx has a spelling or
// declaration in f
func declaredHere(f *IndexFile, idx SymbolIdx) bool {
	switch idx.Kind {
	case types.KindType:
		t := f.Type(TypeID(idx.ID))
		return t.Def.Spell != nil || len(t.Declarations) > 0
	case types.KindFunc:
		fn := f.Func(FuncID(idx.ID))
		return fn.Def.Spell != nil || len(fn.Declarations) > 0
	case types.KindVar:
		v := f.Var(VarID(idx.ID))
		return v.Def.Spell != nil || len(v.Declarations) > 0
	}
	return false
}

// fillName keeps the first name seen unless a definition supplies one
func fillName(dst *NameInfo, name NameInfo, definition bool) {
	if dst.DetailedName == "" || definition {
		*dst = name
	}
}

func fillDocs(hover, comments *string, ev *types.Event) {
	if ev.Hover != "" {
		*hover = ev.Hover
	}
	if ev.Comments != "" {
		*comments = ev.Comments
	}
}

func symbolKind(fromParser int, current, fallback protocol.SymbolKind) protocol.SymbolKind {
	if fromParser > 0 {
		return protocol.SymbolKind(fromParser)
	}
	if current != 0 {
		return current
	}
	return fallback
}

// String summarizes the stats for logging
func (s Stats) String() string {
	return fmt.Sprintf("%d events, %d dropped, %d anomalies", s.Events, s.Dropped, s.AnomalyCount())
}
