package storage

import (
	"context"
	"time"
)

// Storage persists indexed files and the USR to location table used to
// answer navigation queries across files
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)

	// Symbol occurrence operations
	ReplaceSymbols(ctx context.Context, fileID int64, symbols []*Symbol) error
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error)
	FindSymbolsByUsr(ctx context.Context, projectID int64, usr string) ([]*Symbol, error)
	SymbolAt(ctx context.Context, projectID int64, filePath string, line, col int) (*Symbol, error)
	SearchSymbols(ctx context.Context, projectID int64, query string, limit int) ([]*Symbol, error)

	// Include graph operations
	ReplaceIncludes(ctx context.Context, fileID int64, includes []*Include) error
	ListIncluders(ctx context.Context, projectID int64, includedPath string) ([]*File, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage
}

// Project represents an indexed C/C++ source tree
type Project struct {
	ID            int64
	RootPath      string
	TotalFiles    int
	TotalSymbols  int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File is one physical file with an IndexFile in the cache
type File struct {
	ID          int64
	ProjectID   int64
	FilePath    string // Absolute
	ImportFile  string // Translation unit whose parse indexed this file
	Language    string
	ContentHash uint64
	Args        []string
	ModTime     time.Time
	SizeBytes   int64
	ParseError  *string // Nullable
	// Number of event anomalies skipped while indexing
	Anomalies     int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Symbol is one occurrence of a USR: its definition, a declaration or a use
type Symbol struct {
	ID            int64
	FileID        int64
	FilePath      string // Filled on reads
	Usr           string
	Kind          string // type, func or var
	SymKind       int    // LSP symbol kind
	QualifiedName string
	ShortName     string
	Role          string
	RoleBits      int
	StartLine     int
	StartCol      int
	EndLine       int
	EndCol        int
	CreatedAt     time.Time
}

// Occurrence roles stored in Symbol.Role
const (
	RoleDefinition  = "definition"
	RoleDeclaration = "declaration"
	RoleReference   = "reference"
)

// Include is one #include edge
type Include struct {
	ID           int64
	FileID       int64
	Line         int
	ResolvedPath string
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	SymbolsCount  int
	DefsCount     int
	IncludesCount int
	FailedFiles   int
	IndexSizeMB   float64
	LastIndexedAt time.Time
	IndexDuration time.Duration
	Health        HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible bool
	BuildMode          string
}
