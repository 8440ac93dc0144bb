package storage

import (
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/pkg/types"
)

// SymbolsFromIndex flattens the occurrences of every entity in f into
// storage rows
func SymbolsFromIndex(f *index.IndexFile) []*Symbol {
	var out []*Symbol
	add := func(usr types.Usr, kind types.SymbolKind, symKind int, name *index.NameInfo, role string, u index.Use) {
		r := u.Range
		out = append(out, &Symbol{
			Usr:           string(usr),
			Kind:          kind.String(),
			SymKind:       symKind,
			QualifiedName: name.Name(true),
			ShortName:     name.Name(false),
			Role:          role,
			RoleBits:      int(u.Role),
			StartLine:     r.Start.Line,
			StartCol:      r.Start.Column,
			EndLine:       r.End.Line,
			EndCol:        r.End.Column,
		})
	}

	for i := range f.Types {
		t := &f.Types[i]
		if t.Def.Spell != nil {
			add(t.Usr, types.KindType, int(t.Def.Kind), &t.Def.NameInfo, RoleDefinition, *t.Def.Spell)
		}
		for _, d := range t.Declarations {
			add(t.Usr, types.KindType, int(t.Def.Kind), &t.Def.NameInfo, RoleDeclaration, d)
		}
		for _, u := range t.Uses {
			add(t.Usr, types.KindType, int(t.Def.Kind), &t.Def.NameInfo, RoleReference, u)
		}
	}
	for i := range f.Funcs {
		fn := &f.Funcs[i]
		if fn.Def.Spell != nil {
			add(fn.Usr, types.KindFunc, int(fn.Def.Kind), &fn.Def.NameInfo, RoleDefinition, *fn.Def.Spell)
		}
		for _, d := range fn.Declarations {
			add(fn.Usr, types.KindFunc, int(fn.Def.Kind), &fn.Def.NameInfo, RoleDeclaration, d.Spell)
		}
		for _, u := range fn.Uses {
			add(fn.Usr, types.KindFunc, int(fn.Def.Kind), &fn.Def.NameInfo, RoleReference, u)
		}
	}
	for i := range f.Vars {
		v := &f.Vars[i]
		if v.Def.Spell != nil {
			add(v.Usr, types.KindVar, int(v.Def.Kind), &v.Def.NameInfo, RoleDefinition, *v.Def.Spell)
		}
		for _, d := range v.Declarations {
			add(v.Usr, types.KindVar, int(v.Def.Kind), &v.Def.NameInfo, RoleDeclaration, d)
		}
		for _, u := range v.Uses {
			add(v.Usr, types.KindVar, int(v.Def.Kind), &v.Def.NameInfo, RoleReference, u)
		}
	}
	return out
}

// IncludesFromIndex converts the #include directives of f
func IncludesFromIndex(f *index.IndexFile) []*Include {
	out := make([]*Include, 0, len(f.Includes))
	for _, inc := range f.Includes {
		out = append(out, &Include{Line: inc.Line, ResolvedPath: inc.ResolvedPath})
	}
	return out
}

// FileFromIndex builds the file row of f. ParseError and the project are
// left to the caller.
func FileFromIndex(projectID int64, f *index.IndexFile) *File {
	return &File{
		ProjectID:   projectID,
		FilePath:    f.Path,
		ImportFile:  f.ImportFile,
		Language:    f.Language.String(),
		ContentHash: f.ContentHash,
		Args:        f.Args,
		SizeBytes:   int64(len(f.FileContents)),
	}
}
