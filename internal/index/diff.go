package index

import (
	"fmt"
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/xiang66/ccls/pkg/types"
)

// KindUpdate lists the USRs of one kind that changed between two versions
type KindUpdate struct {
	Added   []types.Usr `json:"added,omitempty"`
	Removed []types.Usr `json:"removed,omitempty"`
	Changed []types.Usr `json:"changed,omitempty"`
}

func (k KindUpdate) empty() bool {
	return len(k.Added) == 0 && len(k.Removed) == 0 && len(k.Changed) == 0
}

// FileUpdate is the difference between two successive indexes of one file
type FileUpdate struct {
	Path  string     `json:"path"`
	Types KindUpdate `json:"types"`
	Funcs KindUpdate `json:"funcs"`
	Vars  KindUpdate `json:"vars"`
}

// Empty reports whether nothing changed
func (u FileUpdate) Empty() bool {
	return u.Types.empty() && u.Funcs.empty() && u.Vars.empty()
}

// String summarizes the update for logging
func (u FileUpdate) String() string {
	count := func(k KindUpdate) string {
		return fmt.Sprintf("+%d -%d ~%d", len(k.Added), len(k.Removed), len(k.Changed))
	}
	return fmt.Sprintf("%s: types %s, funcs %s, vars %s", u.Path, count(u.Types), count(u.Funcs), count(u.Vars))
}

// symbolShape is the id-independent part of an entity used to detect
// changes. Ids are local to one parse so they cannot be compared directly.
type symbolShape struct {
	name     NameInfo
	hover    string
	comments string
	kind     int
	spell    types.Range
	extent   types.Range
	decls    []types.Range
	uses     []types.Range
}

func (s *symbolShape) equal(o *symbolShape) bool {
	return s.name == o.name && s.hover == o.hover && s.comments == o.comments &&
		s.kind == o.kind && s.spell == o.spell && s.extent == o.extent &&
		slices.Equal(s.decls, o.decls) && slices.Equal(s.uses, o.uses)
}

func useRange(u *Use) types.Range {
	if u == nil {
		return types.Range{}
	}
	return u.Range
}

func useRanges(uses []Use) []types.Range {
	out := make([]types.Range, len(uses))
	for i := range uses {
		out[i] = uses[i].Range
	}
	return out
}

func typeShapes(f *IndexFile) map[types.Usr]*symbolShape {
	out := make(map[types.Usr]*symbolShape, len(f.Types))
	for i := range f.Types {
		t := &f.Types[i]
		out[t.Usr] = &symbolShape{
			name: t.Def.NameInfo, hover: t.Def.Hover, comments: t.Def.Comments, kind: int(t.Def.Kind),
			spell: useRange(t.Def.Spell), extent: useRange(t.Def.Extent),
			decls: useRanges(t.Declarations), uses: useRanges(t.Uses),
		}
	}
	return out
}

func funcShapes(f *IndexFile) map[types.Usr]*symbolShape {
	out := make(map[types.Usr]*symbolShape, len(f.Funcs))
	for i := range f.Funcs {
		fn := &f.Funcs[i]
		decls := make([]types.Range, len(fn.Declarations))
		for j := range fn.Declarations {
			decls[j] = fn.Declarations[j].Spell.Range
		}
		out[fn.Usr] = &symbolShape{
			name: fn.Def.NameInfo, hover: fn.Def.Hover, comments: fn.Def.Comments, kind: int(fn.Def.Kind),
			spell: useRange(fn.Def.Spell), extent: useRange(fn.Def.Extent),
			decls: decls, uses: useRanges(fn.Uses),
		}
	}
	return out
}

func varShapes(f *IndexFile) map[types.Usr]*symbolShape {
	out := make(map[types.Usr]*symbolShape, len(f.Vars))
	for i := range f.Vars {
		v := &f.Vars[i]
		out[v.Usr] = &symbolShape{
			name: v.Def.NameInfo, hover: v.Def.Hover, comments: v.Def.Comments, kind: int(v.Def.Kind),
			spell: useRange(v.Def.Spell), extent: useRange(v.Def.Extent),
			decls: useRanges(v.Declarations), uses: useRanges(v.Uses),
		}
	}
	return out
}

func diffShapes(prev, cur map[types.Usr]*symbolShape) KindUpdate {
	var u KindUpdate
	for usr, c := range cur {
		p, ok := prev[usr]
		switch {
		case !ok:
			u.Added = append(u.Added, usr)
		case !p.equal(c):
			u.Changed = append(u.Changed, usr)
		}
	}
	for usr := range prev {
		if _, ok := cur[usr]; !ok {
			u.Removed = append(u.Removed, usr)
		}
	}
	slices.Sort(u.Added)
	slices.Sort(u.Removed)
	slices.Sort(u.Changed)
	return u
}

// Diff compares two indexes of the same file. A nil prev means everything
// in cur is new.
func Diff(prev, cur *IndexFile) FileUpdate {
	if prev == nil {
		prev = &IndexFile{}
	}
	if cur == nil {
		cur = &IndexFile{Path: prev.Path}
	}
	return FileUpdate{
		Path:  cur.Path,
		Types: diffShapes(typeShapes(prev), typeShapes(cur)),
		Funcs: diffShapes(funcShapes(prev), funcShapes(cur)),
		Vars:  diffShapes(varShapes(prev), varShapes(cur)),
	}
}

// RenderDiff returns a unified diff of the JSON renderings of two versions
func RenderDiff(prev, cur *IndexFile) (string, error) {
	render := func(f *IndexFile) (string, error) {
		if f == nil {
			return "", nil
		}
		return f.ToString()
	}
	a, err := render(prev)
	if err != nil {
		return "", err
	}
	b, err := render(cur)
	if err != nil {
		return "", err
	}
	name := ""
	if cur != nil {
		name = cur.Path
	} else if prev != nil {
		name = prev.Path
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: name + " (previous)",
		ToFile:   name + " (current)",
		Context:  3,
	})
}
