package types

// EventOp distinguishes the records of the parser event stream
type EventOp uint8

const (
	// OpDeclaration declares (or defines, when IsDefinition) the entity Usr
	OpDeclaration EventOp = iota + 1
	// OpReference is an occurrence of Usr inside the lexical scope Container
	OpReference
	// OpRelation links the entity Usr to TargetUsr through Relation
	OpRelation
	// OpInclude is an #include directive in File
	OpInclude
	// OpSkipped is a preprocessor-inactive region of File
	OpSkipped
)

// Relation names a relationship edge between two entities
type Relation uint8

const (
	RelationNone Relation = iota
	// RelationBase: type Usr derives from type TargetUsr
	RelationBase
	// RelationAliasOf: type Usr is a typedef/using of TargetUsr
	RelationAliasOf
	// RelationOverride: function Usr overrides function TargetUsr
	RelationOverride
	// RelationVarType: variable Usr has type TargetUsr
	RelationVarType
	// RelationInstance: variable Usr is an instance of type TargetUsr
	RelationInstance
)

func (r Relation) String() string {
	switch r {
	case RelationBase:
		return "base"
	case RelationAliasOf:
		return "alias_of"
	case RelationOverride:
		return "override"
	case RelationVarType:
		return "var_type"
	case RelationInstance:
		return "instance"
	default:
		return "none"
	}
}

// Container is an opaque handle to a lexical container (namespace, record,
// function) as reported by the parser. Handle identifies the container for
// memoization; Parent links outward.
type Container struct {
	Handle    string
	Usr       Usr
	Kind      SymbolKind
	Name      string
	Anonymous bool
	Parent    *Container
}

// Event is one record of the parser's declaration/reference stream
type Event struct {
	Op   EventOp
	File string // physical file the event is located in

	// Entity the event is about. For OpReference this is the referenced
	// target; Container names the enclosing scope.
	Usr     Usr
	Kind    SymbolKind
	SymKind int // LSP symbol kind number, 0 when unknown
	Storage StorageClass
	Name    string

	Range        Range
	Extent       Range
	Role         Role
	Container    *Container
	IsDefinition bool

	Hover          string
	Comments       string
	ParamSpellings []Range

	// OpRelation
	Relation   Relation
	TargetUsr  Usr
	TargetKind SymbolKind

	// OpInclude
	Line         int
	ResolvedPath string
}

// Diagnostic is a parser message attached to a file
type Diagnostic struct {
	File     string
	Range    Range
	Severity int
	Message  string
}

// FileContents is an in-memory snapshot of one file keyed by absolute path
type FileContents struct {
	Path    string
	Content string
}

// ParseResult is the output of one parse of a translation unit
type ParseResult struct {
	MainFile string
	Events   []Event

	// Contents of every file read during the parse
	Files []FileContents

	// Errors encountered during parsing
	Diagnostics []Diagnostic
}

// HasErrors returns true if any diagnostics were reported
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Diagnostics) > 0
}

// AddDiagnostic adds a parser diagnostic to the result
func (pr *ParseResult) AddDiagnostic(file string, rng Range, msg string) {
	pr.Diagnostics = append(pr.Diagnostics, Diagnostic{
		File:     file,
		Range:    rng,
		Severity: 1,
		Message:  msg,
	})
}

// Contents returns the snapshot of path read during the parse
func (pr *ParseResult) Contents(path string) (string, bool) {
	for _, f := range pr.Files {
		if f.Path == path {
			return f.Content, true
		}
	}
	return "", false
}
