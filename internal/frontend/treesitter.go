package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tsc "github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/xiang66/ccls/pkg/types"
)

// TreeSitter is a syntactic C/C++ frontend. It follows #include directives
// through the include path and emits declarations, references and relations
// resolved by name. It does no template instantiation or overload
// resolution.
type TreeSitter struct {
	includeDirs []string
}

// NewTreeSitter creates a frontend searching includeDirs after any -I
// directories found in the parse arguments
func NewTreeSitter(includeDirs []string) *TreeSitter {
	return &TreeSitter{includeDirs: includeDirs}
}

// Name implements Frontend
func (ts *TreeSitter) Name() string { return "tree-sitter" }

// Parse implements Frontend
func (ts *TreeSitter) Parse(ctx context.Context, path string, args []string, snapshot []types.FileContents) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAborted, err)
	}

	w := &walker{
		ctx:     ctx,
		snap:    snapshotMap(snapshot),
		dirs:    append(includeDirsFromArgs(args), ts.includeDirs...),
		cLang:   isCLanguage(path, args),
		result:  &types.ParseResult{MainFile: path},
		visited: make(map[string]bool),
		symbols: make(map[string]symbol),
	}

	src, err := w.read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoSource, path, err)
	}
	if err := w.file(path, src); err != nil {
		return nil, err
	}
	return w.result, nil
}

// includeDirsFromArgs extracts -I, -isystem and -iquote directories
func includeDirsFromArgs(args []string) []string {
	var dirs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		for _, flag := range []string{"-I", "-isystem", "-iquote"} {
			if !strings.HasPrefix(arg, flag) {
				continue
			}
			dir := strings.TrimPrefix(arg, flag)
			if dir == "" && i+1 < len(args) {
				i++
				dir = args[i]
			}
			if dir != "" {
				dirs = append(dirs, dir)
			}
			break
		}
	}
	return dirs
}

func isCLanguage(path string, args []string) bool {
	for i, arg := range args {
		switch {
		case arg == "-xc", arg == "-x" && i+1 < len(args) && args[i+1] == "c":
			return true
		case strings.HasPrefix(arg, "-x"):
			return false
		}
	}
	return types.SourceFileLanguage(path) == types.LanguageC
}

// symbol is a declared name known to the walker
type symbol struct {
	usr  types.Usr
	kind types.SymbolKind
	// container represents a type or namespace as an enclosing scope
	container *types.Container
	// typeName is the qualified type of a variable, used to resolve members
	typeName string
}

type scope struct {
	container *types.Container
	prefix    string // qualified name prefix, "ns::Foo::"
	usrPrefix string
	fnUsr     types.Usr // set in function scopes
	locals    map[string]symbol
}

type walker struct {
	ctx     context.Context
	snap    map[string]string
	dirs    []string
	cLang   bool
	result  *types.ParseResult
	visited map[string]bool
	symbols map[string]symbol

	// per file
	path   string
	base   string
	src    []byte
	scopes []*scope
}

func (w *walker) read(path string) ([]byte, error) {
	if content, ok := w.snap[path]; ok {
		return []byte(content), nil
	}
	return os.ReadFile(path)
}

func (w *walker) language() *sitter.Language {
	if w.cLang {
		return tsc.GetLanguage()
	}
	return cpp.GetLanguage()
}

// file parses one physical file, recursing into its includes
func (w *walker) file(path string, src []byte) error {
	if w.visited[path] {
		return nil
	}
	w.visited[path] = true
	if err := w.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrAborted, err)
	}
	w.result.Files = append(w.result.Files, types.FileContents{Path: path, Content: string(src)})

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(w.language())
	tree, err := parser.ParseCtx(w.ctx, nil, src)
	if err != nil {
		if w.ctx.Err() != nil {
			return fmt.Errorf("%w: %w", types.ErrAborted, err)
		}
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	savedPath, savedBase, savedSrc, savedScopes := w.path, w.base, w.src, w.scopes
	defer func() {
		w.path, w.base, w.src, w.scopes = savedPath, savedBase, savedSrc, savedScopes
	}()
	w.path, w.base, w.src = path, filepath.Base(path), src
	w.scopes = []*scope{{usrPrefix: "c:"}}

	root := tree.RootNode()
	if root.HasError() {
		w.syntaxErrors(root)
	}
	return w.children(root)
}

func (w *walker) syntaxErrors(n *sitter.Node) {
	if n.Type() == "ERROR" || n.IsMissing() {
		w.result.AddDiagnostic(w.path, w.rangeOf(n), "syntax error near "+strings.TrimSpace(firstLine(n.Content(w.src))))
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			w.syntaxErrors(c)
		}
	}
}

func (w *walker) cur() *scope { return w.scopes[len(w.scopes)-1] }

func (w *walker) push(s *scope) { w.scopes = append(w.scopes, s) }

func (w *walker) pop() { w.scopes = w.scopes[:len(w.scopes)-1] }

// fnScope returns the innermost function scope, or nil
func (w *walker) fnScope() *scope {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if w.scopes[i].locals != nil {
			return w.scopes[i]
		}
	}
	return nil
}

func (w *walker) emit(ev types.Event) {
	ev.File = w.path
	w.result.Events = append(w.result.Events, ev)
}

func (w *walker) rangeOf(n *sitter.Node) types.Range {
	s, e := n.StartPoint(), n.EndPoint()
	return types.Range{
		Start: types.Position{Line: int(s.Row), Column: int(s.Column)},
		End:   types.Position{Line: int(e.Row), Column: int(e.Column)},
	}
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func (w *walker) children(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := w.visit(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

// visit handles declaration-level nodes
func (w *walker) visit(n *sitter.Node) error {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "comment", "access_specifier", "preproc_def", "preproc_function_def", "preproc_call":
		return nil
	case "preproc_include":
		return w.include(n)
	case "preproc_if", "preproc_ifdef", "preproc_elif", "preproc_else":
		return w.conditional(n)
	case "namespace_definition":
		return w.namespace(n)
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		w.record(n)
	case "function_definition":
		w.function(n)
	case "declaration", "field_declaration":
		w.declaration(n)
	case "type_definition":
		w.typedef(n)
	case "alias_declaration":
		w.alias(n)
	case "linkage_specification":
		if body := n.ChildByFieldName("body"); body != nil {
			if body.Type() == "declaration_list" {
				return w.children(body)
			}
			return w.visit(body)
		}
	case "expression_statement":
		w.expr(n)
	default:
		return w.children(n)
	}
	return nil
}

func (w *walker) include(n *sitter.Node) error {
	pathNode := n.ChildByFieldName("path")
	if pathNode == nil {
		return nil
	}
	spec := strings.Trim(w.text(pathNode), "\"<>")
	resolved := w.resolveInclude(spec, pathNode.Type() == "string_literal")
	w.emit(types.Event{
		Op:           types.OpInclude,
		Line:         int(n.StartPoint().Row),
		Range:        w.rangeOf(pathNode),
		ResolvedPath: resolved,
	})
	if resolved == "" {
		return nil
	}
	src, err := w.read(resolved)
	if err != nil {
		// Unreadable includes stay recorded with no content.
		return nil
	}
	return w.file(resolved, src)
}

func (w *walker) resolveInclude(spec string, quoted bool) string {
	var candidates []string
	if filepath.IsAbs(spec) {
		candidates = append(candidates, spec)
	}
	if quoted {
		candidates = append(candidates, filepath.Join(filepath.Dir(w.path), spec))
	}
	for _, d := range w.dirs {
		candidates = append(candidates, filepath.Join(d, spec))
	}
	for _, c := range candidates {
		if _, ok := w.snap[c]; ok {
			return c
		}
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
	}
	return ""
}

// conditional records "#if 0" regions as skipped and walks every other
// branch
func (w *walker) conditional(n *sitter.Node) error {
	cond := n.ChildByFieldName("condition")
	alt := n.ChildByFieldName("alternative")
	if n.Type() == "preproc_if" && cond != nil && strings.TrimSpace(w.text(cond)) == "0" {
		skipped := w.rangeOf(n)
		if alt != nil {
			skipped.End = w.rangeOf(alt).Start
		}
		w.emit(types.Event{Op: types.OpSkipped, Range: skipped})
		if alt != nil {
			return w.visit(alt)
		}
		return nil
	}
	name := n.ChildByFieldName("name")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if sameNode(c, cond) || sameNode(c, name) {
			continue
		}
		if err := w.visit(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) namespace(n *sitter.Node) error {
	cur := w.cur()
	nameNode := n.ChildByFieldName("name")
	name := w.text(nameNode)
	anonymous := name == ""

	var usr types.Usr
	if anonymous {
		usr = types.Usr(cur.usrPrefix + "@aN")
	} else {
		usr = types.Usr(cur.usrPrefix + "@N@" + name)
	}
	sym := w.typeSymbol(cur, name, usr, anonymous)

	spell := w.rangeOf(n)
	declName := name
	if nameNode != nil {
		spell = w.rangeOf(nameNode)
	}
	if anonymous {
		declName = "(anonymous namespace)"
	}
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindType, SymKind: symNamespace,
		Name: declName, Range: spell, Extent: w.rangeOf(n), IsDefinition: true, Container: cur.container,
	})

	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	w.push(&scope{container: sym.container, prefix: childPrefix(cur, name), usrPrefix: string(usr)})
	defer w.pop()
	return w.children(body)
}

// typeSymbol registers or reuses the symbol for a type or namespace
func (w *walker) typeSymbol(cur *scope, name string, usr types.Usr, anonymous bool) symbol {
	key := cur.prefix + name
	if anonymous {
		key = string(usr)
	}
	if sym, ok := w.symbols[key]; ok && sym.usr == usr {
		return sym
	}
	sym := symbol{
		usr:  usr,
		kind: types.KindType,
		container: &types.Container{
			Handle:    string(usr),
			Usr:       usr,
			Kind:      types.KindType,
			Name:      name,
			Anonymous: anonymous,
			Parent:    cur.container,
		},
	}
	w.symbols[key] = sym
	return sym
}

func childPrefix(cur *scope, name string) string {
	if name == "" {
		return cur.prefix
	}
	return cur.prefix + name + "::"
}

// LSP symbol kind numbers used by the frontend
const (
	symNamespace  = 3
	symClass      = 5
	symEnum       = 10
	symStruct     = 23
	symEnumMember = 22
)

// record handles class, struct, union and enum specifiers. It returns the
// symbol of the named type, if any.
func (w *walker) record(n *sitter.Node) (symbol, bool) {
	cur := w.cur()
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	name := w.text(nameNode)
	if name == "" && body == nil {
		return symbol{}, false
	}

	if body == nil {
		sym, ok := w.lookup(name)
		if !ok || sym.container == nil {
			sym = w.typeSymbol(cur, name, types.Usr(cur.usrPrefix+recordTag(n.Type())+name), false)
		}
		parent := n.Parent()
		if parent != nil && parent.Type() == "declaration" && parent.ChildByFieldName("declarator") == nil {
			w.emit(types.Event{
				Op: types.OpDeclaration, Usr: sym.usr, Kind: types.KindType, Name: sym.container.Name,
				Range: w.rangeOf(nameNode), Extent: w.rangeOf(n), Container: cur.container,
				Comments: w.comments(parent),
			})
		} else {
			w.typeReference(nameNode, sym)
		}
		return sym, true
	}

	anonymous := name == ""
	var usr types.Usr
	if anonymous {
		usr = types.Usr(fmt.Sprintf("%s%sa%d", cur.usrPrefix, strings.TrimSuffix(recordTag(n.Type()), "@"), n.StartByte()))
	} else {
		usr = types.Usr(cur.usrPrefix + recordTag(n.Type()) + name)
	}
	sym := w.typeSymbol(cur, name, usr, anonymous)

	spell := w.rangeOf(n)
	if nameNode != nil {
		spell = w.rangeOf(nameNode)
	}
	declName := name
	if anonymous {
		declName = "(anonymous " + strings.TrimSuffix(n.Type(), "_specifier") + ")"
	}
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindType, SymKind: recordKind(n.Type()),
		Name: declName, Range: spell, Extent: w.rangeOf(n), IsDefinition: true,
		Container: cur.container, Comments: w.comments(n), Hover: w.hover(n, body),
	})

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "base_class_clause" {
			w.bases(c, sym)
		}
	}

	inner := &scope{container: sym.container, prefix: childPrefix(cur, name), usrPrefix: string(usr)}
	if n.Type() == "enum_specifier" {
		scoped := strings.HasPrefix(w.text(n), "enum class") || strings.HasPrefix(w.text(n), "enum struct")
		w.enumerators(body, inner, cur, scoped)
		return sym, !anonymous
	}
	w.push(inner)
	_ = w.children(body)
	w.pop()
	return sym, !anonymous
}

func recordTag(nodeType string) string {
	switch nodeType {
	case "union_specifier":
		return "@U@"
	case "enum_specifier":
		return "@E@"
	default:
		return "@S@"
	}
}

func recordKind(nodeType string) int {
	switch nodeType {
	case "class_specifier":
		return symClass
	case "enum_specifier":
		return symEnum
	default:
		return symStruct
	}
}

func (w *walker) bases(clause *sitter.Node, derived symbol) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "type_identifier", "qualified_identifier", "template_type":
		default:
			continue
		}
		name := w.text(c)
		if c.Type() == "template_type" {
			name = w.text(c.ChildByFieldName("name"))
		}
		target, ok := w.lookup(name)
		if !ok {
			target = symbol{usr: types.Usr("c:@S@" + strings.ReplaceAll(name, "::", "@S@")), kind: types.KindType}
		}
		w.typeReference(c, target)
		w.emit(types.Event{
			Op: types.OpRelation, Usr: derived.usr, Kind: types.KindType,
			Relation: types.RelationBase, TargetUsr: target.usr, TargetKind: types.KindType,
		})
	}
}

func (w *walker) enumerators(body *sitter.Node, inner, outer *scope, scoped bool) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		e := body.NamedChild(i)
		if e.Type() != "enumerator" {
			continue
		}
		nameNode := e.ChildByFieldName("name")
		name := w.text(nameNode)
		if name == "" {
			continue
		}
		usr := types.Usr(inner.usrPrefix + "@" + name)
		w.emit(types.Event{
			Op: types.OpDeclaration, Usr: usr, Kind: types.KindVar, SymKind: symEnumMember,
			Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(e), IsDefinition: true,
			Container: inner.container, Comments: w.comments(e),
		})
		sym := symbol{usr: usr, kind: types.KindVar}
		w.symbols[inner.prefix+name] = sym
		if !scoped {
			w.symbols[outer.prefix+name] = sym
		}
		if v := e.ChildByFieldName("value"); v != nil {
			w.expr(v)
		}
	}
}

// typeOf resolves the type node of a declaration, walking inline record
// definitions and emitting a reference for named types
func (w *walker) typeOf(n *sitter.Node) (symbol, bool) {
	if n == nil {
		return symbol{}, false
	}
	switch n.Type() {
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		return w.record(n)
	case "type_identifier", "qualified_identifier":
		sym, ok := w.lookup(w.text(n))
		if ok && sym.kind == types.KindType {
			w.typeReference(n, sym)
			return sym, true
		}
	case "template_type":
		sym, ok := w.lookup(w.text(n.ChildByFieldName("name")))
		if ok && sym.kind == types.KindType {
			w.typeReference(n.ChildByFieldName("name"), sym)
			return sym, true
		}
	}
	return symbol{}, false
}

func (w *walker) typeReference(n *sitter.Node, sym symbol) {
	if n == nil || !sym.usr.Valid() {
		return
	}
	w.emit(types.Event{
		Op: types.OpReference, Usr: sym.usr, Kind: types.KindType, Range: w.rangeOf(n),
		Role: types.RoleReference, Container: w.cur().container,
	})
}

// qualifiedTypeName returns the lookup key of a type symbol
func (w *walker) qualifiedTypeName(sym symbol) string {
	for name, s := range w.symbols {
		if s.usr == sym.usr && s.kind == types.KindType {
			return name
		}
	}
	return ""
}

// lookup resolves name from the innermost scope outward
func (w *walker) lookup(name string) (symbol, bool) {
	name = strings.TrimPrefix(name, "::")
	if name == "" {
		return symbol{}, false
	}
	for i := len(w.scopes) - 1; i >= 0; i-- {
		s := w.scopes[i]
		if sym, ok := s.locals[name]; ok {
			return sym, true
		}
		if sym, ok := w.symbols[s.prefix+name]; ok {
			return sym, true
		}
	}
	return symbol{}, false
}

func storageOf(n *sitter.Node, src []byte) types.StorageClass {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "storage_class_specifier" {
			continue
		}
		switch c.Content(src) {
		case "extern":
			return types.StorageExtern
		case "static":
			return types.StorageStatic
		case "register":
			return types.StorageRegister
		case "auto":
			return types.StorageAuto
		}
	}
	return types.StorageNone
}

var declaratorTypes = map[string]bool{
	"identifier": true, "field_identifier": true, "init_declarator": true,
	"pointer_declarator": true, "reference_declarator": true, "array_declarator": true,
	"function_declarator": true, "qualified_identifier": true, "parenthesized_declarator": true,
	"type_identifier": true,
}

// declarators returns every declarator child of a declaration
func declarators(n, typeNode *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if sameNode(c, typeNode) || !declaratorTypes[c.Type()] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// funcDeclarator finds the function_declarator wrapped by n, if any
func funcDeclarator(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "reference_declarator", "parenthesized_declarator", "attributed_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(int(n.NamedChildCount()) - 1)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

// declaratorName finds the identifier a variable declarator introduces
func declaratorName(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "type_identifier":
			return n
		case "init_declarator", "pointer_declarator", "array_declarator", "parenthesized_declarator", "attributed_declarator":
			n = n.ChildByFieldName("declarator")
		case "reference_declarator":
			if n.NamedChildCount() == 0 {
				return nil
			}
			n = n.NamedChild(int(n.NamedChildCount()) - 1)
		default:
			return nil
		}
	}
	return nil
}

// declaration handles namespace, class and block level declarations
func (w *walker) declaration(n *sitter.Node) {
	cur := w.cur()
	typeNode := n.ChildByFieldName("type")
	typeSym, hasType := w.typeOf(typeNode)
	storage := storageOf(n, w.src)
	inClass := n.Type() == "field_declaration"

	for _, d := range declarators(n, typeNode) {
		if fd := funcDeclarator(d); fd != nil {
			w.functionDecl(n, fd, storage)
			continue
		}
		nameNode := declaratorName(d)
		if nameNode == nil {
			continue
		}
		name, owner := w.splitQualified(nameNode)
		if name == "" {
			continue
		}
		fn := w.fnScope()

		var usr types.Usr
		isDef := storage != types.StorageExtern && !(inClass && storage == types.StorageStatic)
		switch {
		case fn != nil:
			usr = w.localUsr(fn, nameNode, name)
		case inClass:
			usr = types.Usr(cur.usrPrefix + "@FI@" + name)
			if storage == types.StorageStatic {
				usr = types.Usr(cur.usrPrefix + "@" + name)
			}
		case owner != nil:
			usr = types.Usr(string(owner.usr) + "@" + name)
		case w.cLang && storage == types.StorageStatic:
			usr = types.Usr("c:" + w.base + "@" + name)
		default:
			usr = types.Usr(cur.usrPrefix + "@" + name)
		}

		container := cur.container
		if owner != nil {
			container = owner.container
		}
		w.emit(types.Event{
			Op: types.OpDeclaration, Usr: usr, Kind: types.KindVar, Storage: storage,
			Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(d), IsDefinition: isDef,
			Container: container, Comments: w.comments(n), Hover: w.hover(n, nil),
		})

		sym := symbol{usr: usr, kind: types.KindVar}
		if hasType {
			sym.typeName = w.qualifiedTypeName(typeSym)
			w.emit(types.Event{
				Op: types.OpRelation, Usr: usr, Kind: types.KindVar,
				Relation: types.RelationVarType, TargetUsr: typeSym.usr, TargetKind: types.KindType,
			})
		}
		if fn != nil {
			fn.locals[name] = sym
		} else if owner == nil {
			w.symbols[cur.prefix+name] = sym
		}

		if d.Type() == "init_declarator" {
			if v := d.ChildByFieldName("value"); v != nil {
				w.expr(v)
			}
		}
	}
	if inClass {
		if v := n.ChildByFieldName("default_value"); v != nil {
			w.expr(v)
		}
	}
}

// splitQualified splits A::B::name into the resolved owner of A::B and name
func (w *walker) splitQualified(n *sitter.Node) (string, *symbol) {
	if n.Type() != "qualified_identifier" {
		return w.text(n), nil
	}
	full := strings.TrimPrefix(w.text(n), "::")
	i := strings.LastIndex(full, "::")
	if i < 0 {
		return full, nil
	}
	ownerName, name := full[:i], full[i+2:]
	if j := strings.Index(ownerName, "<"); j >= 0 {
		ownerName = ownerName[:j]
	}
	owner, ok := w.lookup(ownerName)
	if !ok || owner.container == nil {
		cur := w.cur()
		usr := types.Usr(cur.usrPrefix + "@S@" + strings.ReplaceAll(ownerName, "::", "@S@"))
		owner = w.typeSymbol(cur, ownerName, usr, false)
	}
	return name, &owner
}

func (w *walker) localUsr(fn *scope, nameNode *sitter.Node, name string) types.Usr {
	return types.Usr(fmt.Sprintf("c:%s@%d@%s@%s", w.base, nameNode.StartByte(), strings.TrimPrefix(string(fn.fnUsr), "c:"), name))
}

// functionUsr builds the usr of a function from its owner, name and
// parameter types
func (w *walker) functionUsr(owner *scope, ownerSym *symbol, name string, params *sitter.Node, storage types.StorageClass) types.Usr {
	prefix := owner.usrPrefix
	if ownerSym != nil {
		prefix = string(ownerSym.usr)
	} else if storage == types.StorageStatic && owner.container == nil {
		prefix = "c:" + w.base
	}
	return types.Usr(prefix + "@F@" + name + "#" + w.signature(params))
}

func (w *walker) signature(params *sitter.Node) string {
	if params == nil {
		return ""
	}
	var parts []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "parameter_declaration", "optional_parameter_declaration":
		case "variadic_parameter":
			parts = append(parts, "...")
			continue
		default:
			continue
		}
		typ := strings.Join(strings.Fields(w.text(p.ChildByFieldName("type"))), " ")
		decl := p.ChildByFieldName("declarator")
		if typ == "void" && decl == nil && params.NamedChildCount() == 1 {
			break
		}
		parts = append(parts, typ+declaratorSuffix(decl))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "#") + "#"
}

func declaratorSuffix(n *sitter.Node) string {
	var b strings.Builder
	for n != nil {
		switch n.Type() {
		case "pointer_declarator", "abstract_pointer_declarator":
			b.WriteString("*")
		case "reference_declarator", "abstract_reference_declarator":
			b.WriteString("&")
		case "array_declarator", "abstract_array_declarator":
			b.WriteString("[]")
		}
		next := n.ChildByFieldName("declarator")
		if next == nil && n.Type() == "reference_declarator" && n.NamedChildCount() > 0 {
			next = n.NamedChild(0)
		}
		n = next
	}
	return b.String()
}

// functionDecl handles a function prototype
func (w *walker) functionDecl(decl, fd *sitter.Node, storage types.StorageClass) {
	cur := w.cur()
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return
	}
	name, owner := w.splitQualified(nameNode)
	if name == "" {
		return
	}
	params := fd.ChildByFieldName("parameters")
	usr := w.functionUsr(cur, owner, name, params, storage)

	var spellings []types.Range
	if params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			w.typeOf(p.ChildByFieldName("type"))
			if pn := declaratorName(p.ChildByFieldName("declarator")); pn != nil {
				spellings = append(spellings, w.rangeOf(pn))
			}
		}
	}

	container := cur.container
	if owner != nil {
		container = owner.container
	}
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindFunc, Storage: storage,
		Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(decl),
		Container: container, Comments: w.comments(decl), Hover: w.hover(decl, nil),
		ParamSpellings: spellings,
	})
	w.registerFunc(cur, owner, name, usr)
}

func (w *walker) registerFunc(cur *scope, owner *symbol, name string, usr types.Usr) {
	key := cur.prefix + name
	if owner != nil {
		key = w.qualifiedTypeName(*owner) + "::" + name
	}
	w.symbols[key] = symbol{usr: usr, kind: types.KindFunc}
}

// function handles a function definition and its body
func (w *walker) function(n *sitter.Node) {
	cur := w.cur()
	fd := funcDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	nameNode := fd.ChildByFieldName("declarator")
	if nameNode == nil {
		return
	}
	name, owner := w.splitQualified(nameNode)
	if name == "" {
		return
	}
	storage := storageOf(n, w.src)
	params := fd.ChildByFieldName("parameters")
	usr := w.functionUsr(cur, owner, name, params, storage)
	body := n.ChildByFieldName("body")

	w.typeOf(n.ChildByFieldName("type"))

	container := cur.container
	if owner != nil {
		container = owner.container
	}
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindFunc, Storage: storage,
		Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(n), IsDefinition: true,
		Container: container, Comments: w.comments(n), Hover: w.hover(n, body),
	})
	w.registerFunc(cur, owner, name, usr)

	pushed := 0
	if owner != nil {
		w.push(&scope{container: owner.container, prefix: w.qualifiedTypeName(*owner) + "::", usrPrefix: string(owner.usr)})
		pushed++
	}
	fnContainer := &types.Container{Handle: string(usr), Usr: usr, Kind: types.KindFunc, Name: name, Parent: container}
	w.push(&scope{container: fnContainer, prefix: w.cur().prefix, usrPrefix: string(usr), fnUsr: usr, locals: make(map[string]symbol)})
	pushed++
	defer func() {
		for ; pushed > 0; pushed-- {
			w.pop()
		}
	}()

	if params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			w.parameter(params.NamedChild(i))
		}
	}
	if body != nil {
		w.expr(body)
	}
}

func (w *walker) parameter(p *sitter.Node) {
	switch p.Type() {
	case "parameter_declaration", "optional_parameter_declaration":
	default:
		return
	}
	fn := w.fnScope()
	typeSym, hasType := w.typeOf(p.ChildByFieldName("type"))
	nameNode := declaratorName(p.ChildByFieldName("declarator"))
	if nameNode == nil || fn == nil {
		return
	}
	name := w.text(nameNode)
	usr := w.localUsr(fn, nameNode, name)
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindVar, Storage: types.StorageNone,
		Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(p), IsDefinition: true,
		Container: fn.container, Hover: strings.Join(strings.Fields(w.text(p)), " "),
	})
	sym := symbol{usr: usr, kind: types.KindVar}
	if hasType {
		sym.typeName = w.qualifiedTypeName(typeSym)
		w.emit(types.Event{
			Op: types.OpRelation, Usr: usr, Kind: types.KindVar,
			Relation: types.RelationVarType, TargetUsr: typeSym.usr, TargetKind: types.KindType,
		})
	}
	fn.locals[name] = sym
	if v := p.ChildByFieldName("default_value"); v != nil {
		w.expr(v)
	}
}

func (w *walker) typedef(n *sitter.Node) {
	cur := w.cur()
	target, hasTarget := w.typeOf(n.ChildByFieldName("type"))
	for _, d := range declarators(n, n.ChildByFieldName("type")) {
		nameNode := declaratorName(d)
		if nameNode == nil {
			continue
		}
		w.aliasDecl(cur, n, nameNode, target, hasTarget)
	}
}

func (w *walker) alias(n *sitter.Node) {
	cur := w.cur()
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	var target symbol
	var hasTarget bool
	if desc := n.ChildByFieldName("type"); desc != nil {
		target, hasTarget = w.typeOf(desc.ChildByFieldName("type"))
	}
	w.aliasDecl(cur, n, nameNode, target, hasTarget)
}

func (w *walker) aliasDecl(cur *scope, n, nameNode *sitter.Node, target symbol, hasTarget bool) {
	name := w.text(nameNode)
	usr := types.Usr(cur.usrPrefix + "@T@" + name)
	w.typeSymbol(cur, name, usr, false)
	w.emit(types.Event{
		Op: types.OpDeclaration, Usr: usr, Kind: types.KindType, SymKind: symClass,
		Name: name, Range: w.rangeOf(nameNode), Extent: w.rangeOf(n), IsDefinition: true,
		Container: cur.container, Comments: w.comments(n), Hover: w.hover(n, nil),
	})
	if hasTarget && target.usr != usr {
		w.emit(types.Event{
			Op: types.OpRelation, Usr: usr, Kind: types.KindType,
			Relation: types.RelationAliasOf, TargetUsr: target.usr, TargetKind: types.KindType,
		})
	}
}

// expr walks statements and expressions inside a function body or an
// initializer, emitting references
func (w *walker) expr(n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "comment", "string_literal", "raw_string_literal", "number_literal", "char_literal",
		"primitive_type", "true", "false", "null", "nullptr":
		return
	case "declaration":
		w.declaration(n)
		return
	case "class_specifier", "struct_specifier", "union_specifier", "enum_specifier":
		w.record(n)
		return
	case "call_expression":
		w.call(n)
		return
	case "identifier":
		w.identifier(n, w.roleOf(n))
		return
	case "qualified_identifier":
		if sym, ok := w.lookup(w.text(n)); ok {
			w.reference(n, sym, w.roleOf(n))
		}
		return
	case "field_expression":
		w.expr(n.ChildByFieldName("argument"))
		if sym, ok := w.member(n); ok {
			w.reference(n.ChildByFieldName("field"), sym, w.roleOf(n))
		}
		return
	case "type_identifier", "template_type":
		w.typeOf(n)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.expr(n.NamedChild(i))
	}
}

func (w *walker) roleOf(n *sitter.Node) types.Role {
	parent := n.Parent()
	if parent == nil {
		return types.RoleRead
	}
	switch parent.Type() {
	case "assignment_expression":
		if sameNode(parent.ChildByFieldName("left"), n) {
			if w.text(parent.ChildByFieldName("operator")) == "=" {
				return types.RoleWrite
			}
			return types.RoleRead | types.RoleWrite
		}
	case "update_expression":
		return types.RoleRead | types.RoleWrite
	case "pointer_expression":
		if w.text(parent.ChildByFieldName("operator")) == "&" {
			return types.RoleAddress
		}
	}
	return types.RoleRead
}

func (w *walker) identifier(n *sitter.Node, role types.Role) {
	sym, ok := w.lookup(w.text(n))
	if !ok {
		return
	}
	if sym.kind == types.KindFunc {
		role = types.RoleReference | types.RoleAddress
	}
	w.reference(n, sym, role)
}

func (w *walker) reference(n *sitter.Node, sym symbol, role types.Role) {
	if n == nil {
		return
	}
	if sym.kind == types.KindType {
		w.typeReference(n, sym)
		return
	}
	w.emit(types.Event{
		Op: types.OpReference, Usr: sym.usr, Kind: sym.kind, Range: w.rangeOf(n),
		Role: role, Container: w.cur().container,
	})
}

// member resolves obj.field and ptr->field through the object's type
func (w *walker) member(n *sitter.Node) (symbol, bool) {
	field := w.text(n.ChildByFieldName("field"))
	arg := n.ChildByFieldName("argument")
	if field == "" || arg == nil {
		return symbol{}, false
	}
	typeName := ""
	switch arg.Type() {
	case "identifier":
		if sym, ok := w.lookup(w.text(arg)); ok {
			typeName = sym.typeName
		}
	case "this":
		for i := len(w.scopes) - 1; i >= 0; i-- {
			if c := w.scopes[i].container; c != nil && c.Kind == types.KindType {
				typeName = strings.TrimSuffix(w.scopes[i].prefix, "::")
				break
			}
		}
	}
	if typeName == "" {
		return symbol{}, false
	}
	sym, ok := w.symbols[typeName+"::"+field]
	return sym, ok
}

func (w *walker) call(n *sitter.Node) {
	fn := n.ChildByFieldName("function")
	if fn != nil {
		var target *sitter.Node
		var sym symbol
		var ok bool
		switch fn.Type() {
		case "identifier", "qualified_identifier":
			target = fn
			sym, ok = w.lookup(w.text(fn))
		case "field_expression":
			w.expr(fn.ChildByFieldName("argument"))
			target = fn.ChildByFieldName("field")
			sym, ok = w.member(fn)
		case "template_function":
			target = fn.ChildByFieldName("name")
			sym, ok = w.lookup(w.text(target))
		default:
			w.expr(fn)
		}
		if ok && sym.kind == types.KindFunc {
			w.reference(target, sym, types.RoleCall)
		} else if ok {
			w.reference(target, sym, types.RoleRead)
		}
	}
	w.expr(n.ChildByFieldName("arguments"))
}

// comments collects the comment block directly above n
func (w *walker) comments(n *sitter.Node) string {
	var lines []string
	next := n
	for c := n.PrevNamedSibling(); c != nil && c.Type() == "comment"; c = c.PrevNamedSibling() {
		if c.EndPoint().Row+1 < next.StartPoint().Row {
			break
		}
		lines = append([]string{cleanComment(w.text(c))}, lines...)
		next = c
	}
	return strings.Join(lines, "\n")
}

func cleanComment(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "///"), strings.HasPrefix(s, "//!"):
		s = s[3:]
	case strings.HasPrefix(s, "//"):
		s = s[2:]
	case strings.HasPrefix(s, "/*"):
		s = strings.TrimSuffix(strings.TrimLeft(s[2:], "*!"), "*/")
	}
	return strings.TrimSpace(s)
}

// hover renders the declaration head of n, cut before stop
func (w *walker) hover(n, stop *sitter.Node) string {
	end := n.EndByte()
	if stop != nil {
		end = stop.StartByte()
	}
	text := string(w.src[n.StartByte():end])
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSuffix(strings.TrimSpace(text), ";")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
