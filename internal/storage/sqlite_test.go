package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func setupProject(t *testing.T, s *SQLiteStorage) *Project {
	t.Helper()
	project := &Project{RootPath: "/proj", IndexVersion: "17"}
	require.NoError(t, s.CreateProject(context.Background(), project))
	return project
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	var version string
	err := storage.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestMigrationsIdempotentAndRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, storage.db))

	require.NoError(t, RollbackMigration(ctx, storage.db))
	v, err := schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	v, err = schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestReset(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)
	file := &File{ProjectID: project.ID, FilePath: "/proj/a.cc", Language: "cpp"}
	require.NoError(t, storage.UpsertFile(ctx, file))

	require.NoError(t, storage.Reset(ctx))

	v, err := schemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
	_, err = storage.GetProject(ctx, "/proj")
	assert.ErrorIs(t, err, ErrNotFound)

	// The schema is usable again
	setupProject(t, storage)
}

func TestProjects(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)
	assert.Greater(t, project.ID, int64(0))

	err := storage.CreateProject(ctx, &Project{RootPath: "/proj", IndexVersion: "17"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = storage.GetProject(ctx, "/nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	project.TotalFiles = 10
	project.TotalSymbols = 100
	project.LastIndexedAt = time.Now()
	require.NoError(t, storage.UpdateProject(ctx, project))

	updated, err := storage.GetProject(ctx, "/proj")
	require.NoError(t, err)
	assert.Equal(t, 10, updated.TotalFiles)
	assert.Equal(t, 100, updated.TotalSymbols)
	assert.False(t, updated.LastIndexedAt.IsZero())
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)

	parseErr := "expected ';'"
	file := &File{
		ProjectID:   project.ID,
		FilePath:    "/proj/a.h",
		ImportFile:  "/proj/a.cc",
		Language:    "c++",
		ContentHash: ^uint64(0) - 7, // does not fit int64
		Args:        []string{"-std=c++17", "-I/proj/include"},
		ParseError:  &parseErr,
		Anomalies:   2,
	}
	require.NoError(t, storage.UpsertFile(ctx, file))
	firstID := file.ID

	got, err := storage.GetFile(ctx, project.ID, "/proj/a.h")
	require.NoError(t, err)
	assert.Equal(t, file.ContentHash, got.ContentHash)
	assert.Equal(t, file.Args, got.Args)
	assert.Equal(t, "/proj/a.cc", got.ImportFile)
	require.NotNil(t, got.ParseError)
	assert.Equal(t, parseErr, *got.ParseError)
	assert.Equal(t, 2, got.Anomalies)

	file.ImportFile = "/proj/b.cc"
	file.ParseError = nil
	require.NoError(t, storage.UpsertFile(ctx, file))
	assert.Equal(t, firstID, file.ID)

	got, err = storage.GetFile(ctx, project.ID, "/proj/a.h")
	require.NoError(t, err)
	assert.Equal(t, "/proj/b.cc", got.ImportFile)
	assert.Nil(t, got.ParseError)

	_, err = storage.GetFile(ctx, project.ID, "/proj/missing.h")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDeleteFiles(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)

	for _, p := range []string{"/proj/c.cc", "/proj/a.cc", "/proj/b.cc"} {
		require.NoError(t, storage.UpsertFile(ctx, &File{ProjectID: project.ID, FilePath: p, ImportFile: p}))
	}
	files, err := storage.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "/proj/a.cc", files[0].FilePath)

	require.NoError(t, storage.DeleteFile(ctx, files[0].ID))
	files, err = storage.ListFiles(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

// indexedFile builds a small IndexFile: a function f defined on line 1 and
// called on line 4
func indexedFile(t *testing.T) *index.IndexFile {
	t.Helper()
	f := index.NewIndexFile("/proj/a.cc", "void f() {}\n\nint main() {\n  f();\n}\n")
	f.ImportFile = f.Path
	f.Language = types.LanguageCpp

	fid, err := f.ToFuncID("c:@F@f#")
	require.NoError(t, err)
	mainID, err := f.ToFuncID("c:@F@main#")
	require.NoError(t, err)

	fn := f.Func(fid)
	fn.Def.DetailedName = "void f()"
	fn.Def.QualNameOffset = 5
	fn.Def.ShortNameOffset = 5
	fn.Def.ShortNameSize = 1
	spell := index.NewUse(types.NewRange(0, 5, 6), f.ID.Idx(), types.RoleDefinition, f.ID)
	fn.Def.Spell = &spell
	fn.Uses = []index.Use{index.NewUse(types.NewRange(3, 2, 3), mainID.Idx(), types.RoleCall, f.ID)}
	fn.Declarations = []index.FuncDeclaration{{Spell: index.NewUse(types.NewRange(10, 5, 6), f.ID.Idx(), types.RoleDeclaration, f.ID)}}

	f.Includes = []index.IndexInclude{{Line: 0, ResolvedPath: "/proj/a.h"}}
	f.Finalize()
	return f
}

func TestSymbolsAndNavigation(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)
	idx := indexedFile(t)

	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	file := FileFromIndex(project.ID, idx)
	require.NoError(t, tx.UpsertFile(ctx, file))
	require.NoError(t, tx.ReplaceSymbols(ctx, file.ID, SymbolsFromIndex(idx)))
	require.NoError(t, tx.ReplaceIncludes(ctx, file.ID, IncludesFromIndex(idx)))

	// Reads inside the transaction see its writes
	inTx, err := tx.FindSymbolsByUsr(ctx, project.ID, "c:@F@f#")
	require.NoError(t, err)
	assert.Len(t, inTx, 3)
	require.NoError(t, tx.Commit())

	syms, err := storage.FindSymbolsByUsr(ctx, project.ID, "c:@F@f#")
	require.NoError(t, err)
	require.Len(t, syms, 3)
	roles := map[string]int{}
	for _, s := range syms {
		roles[s.Role]++
		assert.Equal(t, "/proj/a.cc", s.FilePath)
		assert.Equal(t, "f", s.QualifiedName)
		assert.Equal(t, "func", s.Kind)
	}
	assert.Equal(t, map[string]int{RoleDefinition: 1, RoleDeclaration: 1, RoleReference: 1}, roles)

	at, err := storage.SymbolAt(ctx, project.ID, "/proj/a.cc", 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "c:@F@f#", at.Usr)
	assert.Equal(t, RoleReference, at.Role)
	assert.Equal(t, int(types.RoleCall), at.RoleBits)

	_, err = storage.SymbolAt(ctx, project.ID, "/proj/a.cc", 3, 3)
	assert.ErrorIs(t, err, ErrNotFound, "ranges are half open")

	found, err := storage.SearchSymbols(ctx, project.ID, "f", 10)
	require.NoError(t, err)
	for _, s := range found {
		assert.NotEqual(t, RoleReference, s.Role)
	}
	assert.Len(t, found, 2)

	found, err = storage.SearchSymbols(ctx, project.ID, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, found, "LIKE wildcards are escaped")

	includers, err := storage.ListIncluders(ctx, project.ID, "/proj/a.h")
	require.NoError(t, err)
	require.Len(t, includers, 1)
	assert.Equal(t, "/proj/a.cc", includers[0].FilePath)

	// Replacing drops the previous occurrences
	require.NoError(t, storage.ReplaceSymbols(ctx, file.ID, nil))
	listed, err := storage.ListSymbolsByFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDeleteFileCascades(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)
	idx := indexedFile(t)

	file := FileFromIndex(project.ID, idx)
	require.NoError(t, storage.UpsertFile(ctx, file))
	require.NoError(t, storage.ReplaceSymbols(ctx, file.ID, SymbolsFromIndex(idx)))
	require.NoError(t, storage.DeleteFile(ctx, file.ID))

	syms, err := storage.FindSymbolsByUsr(ctx, project.ID, "c:@F@f#")
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	project := setupProject(t, storage)
	idx := indexedFile(t)

	file := FileFromIndex(project.ID, idx)
	require.NoError(t, storage.UpsertFile(ctx, file))
	require.NoError(t, storage.ReplaceSymbols(ctx, file.ID, SymbolsFromIndex(idx)))
	require.NoError(t, storage.ReplaceIncludes(ctx, file.ID, IncludesFromIndex(idx)))

	msg := "fatal"
	require.NoError(t, storage.UpsertFile(ctx, &File{ProjectID: project.ID, FilePath: "/proj/broken.cc", ParseError: &msg}))

	status, err := storage.GetStatus(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FilesCount)
	assert.Equal(t, 1, status.FailedFiles)
	assert.Equal(t, 1, status.SymbolsCount, "main has no occurrence of its own")
	assert.Equal(t, 1, status.DefsCount)
	assert.Equal(t, 1, status.IncludesCount)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.Equal(t, BuildMode, status.Health.BuildMode)

	_, err = storage.GetStatus(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNestedTxRejected(t *testing.T) {
	storage := setupTestDB(t)
	tx, err := storage.BeginTx(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(context.Background())
	assert.Error(t, err)
}
