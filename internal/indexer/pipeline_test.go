package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiang66/ccls/internal/cache"
	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/frontend"
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/serializer"
	"github.com/xiang66/ccls/internal/storage"
	"github.com/xiang66/ccls/pkg/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setupProject writes a header shared by two translation units
func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "h.h"), "// Does f.\nvoid f();\n")
	writeFile(t, filepath.Join(root, "a.cc"), "#include \"h.h\"\nvoid f() {}\nint main() { f(); return 0; }\n")
	writeFile(t, filepath.Join(root, "b.cc"), "#include \"h.h\"\nvoid g() { f(); }\n")
	writeFile(t, filepath.Join(root, "build", "gen.cc"), "int generated;\n")
	writeFile(t, filepath.Join(root, "README"), "not a source\n")
	return root
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workers = 2
	cfg.BatchSize = 1
	cfg.CacheDir = ""
	return cfg
}

func setupPipeline(t *testing.T, cfg *config.Config, indexers ...Indexer) *Pipeline {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	c, err := cache.New("", serializer.FormatJSON, 64)
	require.NoError(t, err)
	if len(indexers) == 0 {
		for range cfg.Workers {
			indexers = append(indexers, NewWorker(frontend.NewTreeSitter(nil)))
		}
	}
	pool := NewPool(consumer.NewSharedState(), indexers...)
	t.Cleanup(func() {
		_ = pool.Close()
		_ = store.Close()
	})
	return NewPipeline(cfg, store, c, pool, nil)
}

func TestDiscoverFiles(t *testing.T) {
	root := setupProject(t)
	files, err := discoverFiles(root, testConfig())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(root, "a.cc"), filepath.Join(root, "b.cc")}, files)
}

func TestIndexProject(t *testing.T) {
	root := setupProject(t)
	p := setupPipeline(t, testConfig())
	ctx := context.Background()

	stats, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesFailed, "%v", stats.ErrorMessages)
	assert.Equal(t, 3, stats.FilesWritten, "the header is written by exactly one unit")
	assert.Positive(t, stats.SymbolsIndexed)
	assert.Len(t, stats.Updates, 3)

	project := p.Project()
	require.NotNil(t, project)
	assert.Equal(t, root, project.RootPath)
	assert.Equal(t, 3, project.TotalFiles)
	assert.False(t, project.LastIndexedAt.IsZero())

	header, err := p.Cache().Load(filepath.Join(root, "h.h"))
	require.NoError(t, err)
	require.NotNil(t, header)
	assert.Contains(t, []string{filepath.Join(root, "a.cc"), filepath.Join(root, "b.cc")}, header.ImportFile)

	occurrences, err := p.Storage().FindSymbolsByUsr(ctx, project.ID, "c:@F@f#")
	require.NoError(t, err)
	var defs, calls int
	for _, s := range occurrences {
		switch {
		case s.Role == storage.RoleDefinition && s.FilePath == filepath.Join(root, "a.cc"):
			defs++
		case s.Role == storage.RoleReference && types.Role(s.RoleBits).Has(types.RoleCall):
			calls++
		}
	}
	assert.Equal(t, 1, defs)
	assert.Equal(t, 2, calls, "one call from each unit")

	// Nothing changed
	stats, err = p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)
	assert.Empty(t, stats.Updates)

	// One unit changed
	writeFile(t, filepath.Join(root, "b.cc"), "#include \"h.h\"\nvoid g() { f(); }\nvoid k() {}\n")
	stats, err = p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	require.Len(t, stats.Updates, 1)
	assert.Equal(t, filepath.Join(root, "b.cc"), stats.Updates[0].Path)
	assert.Equal(t, []types.Usr{"c:@F@k#"}, stats.Updates[0].Funcs.Added)
}

func TestIndexProjectHeaderChangeReparsesOwner(t *testing.T) {
	root := setupProject(t)
	p := setupPipeline(t, testConfig())
	ctx := context.Background()

	_, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)

	headerPath := filepath.Join(root, "h.h")
	writeFile(t, headerPath, "// Does f.\nvoid f();\nint counter;\n")
	stats, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed, "both units depend on the header")

	header, err := p.Cache().Load(headerPath)
	require.NoError(t, err)
	require.NotNil(t, header)
	_, ok := header.IDCache.VarID("c:@counter")
	assert.True(t, ok)
}

func hasUnit(w *Worker, path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.units[path]
	return ok
}

func TestIndexProjectRemovesDeletedFiles(t *testing.T) {
	root := setupProject(t)
	cfg := testConfig()
	w1, w2 := NewWorker(frontend.NewTreeSitter(nil)), NewWorker(frontend.NewTreeSitter(nil))
	p := setupPipeline(t, cfg, w1, w2)
	ctx := context.Background()
	b := filepath.Join(root, "b.cc")

	_, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	require.True(t, hasUnit(w1, b) || hasUnit(w2, b))
	projectID := p.Project().ID

	// An editor buffer keeps a file alive after it is gone from disk
	content, err := os.ReadFile(b)
	require.NoError(t, err)
	p.WorkingFiles().Open(b, string(content), nil)
	require.NoError(t, os.Remove(b))

	stats, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesRemoved)
	_, err = p.Storage().GetFile(ctx, projectID, b)
	require.NoError(t, err)

	p.WorkingFiles().Close(b)
	stats, err = p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Zero(t, stats.FilesIndexed, "a.cc and the header did not change")
	require.Len(t, stats.Updates, 1)
	assert.Equal(t, b, stats.Updates[0].Path)
	assert.Equal(t, []types.Usr{"c:@F@g#"}, stats.Updates[0].Funcs.Removed)
	assert.Empty(t, stats.Updates[0].Funcs.Added)

	_, err = p.Storage().GetFile(ctx, projectID, b)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	cached, err := p.Cache().Load(b)
	require.NoError(t, err)
	assert.Nil(t, cached)
	occurrences, err := p.Storage().FindSymbolsByUsr(ctx, projectID, "c:@F@g#")
	require.NoError(t, err)
	assert.Empty(t, occurrences)
	assert.False(t, hasUnit(w1, b))
	assert.False(t, hasUnit(w2, b))
	assert.Equal(t, 2, p.Project().TotalFiles)

	// The header is still reachable through the remaining unit
	_, err = p.IndexFile(ctx, filepath.Join(root, "h.h"), nil)
	require.NoError(t, err)

	stats, err = p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesRemoved)
}

func TestPipelineReset(t *testing.T) {
	root := setupProject(t)
	p := setupPipeline(t, testConfig())
	ctx := context.Background()

	_, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	require.Positive(t, p.Shared().Len())
	require.Positive(t, p.Cache().Len())

	require.True(t, p.lock.TryAcquire())
	assert.ErrorIs(t, p.Reset(ctx), ErrIndexingInProgress)
	p.lock.Release()

	require.NoError(t, p.Reset(ctx))
	assert.Nil(t, p.Project())
	assert.Zero(t, p.Shared().Len())
	assert.Zero(t, p.Cache().Len())
	_, err = p.Storage().GetProject(ctx, root)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 3, stats.FilesWritten)
}

func TestIndexProjectFailures(t *testing.T) {
	root := t.TempDir()
	good, bad := filepath.Join(root, "good.cc"), filepath.Join(root, "bad.cc")
	writeFile(t, good, "int x;\n")
	writeFile(t, bad, "int y;\n")

	boom := errors.New("frontend exploded")
	ti := NewTestIndexer(
		TestEntry{Path: good, Files: []*index.IndexFile{index.NewIndexFile(good, "int x;\n")}},
		TestEntry{Path: bad, Err: boom},
	)
	p := setupPipeline(t, testConfig(), ti)
	ctx := context.Background()

	stats, err := p.IndexProject(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "frontend exploded")

	row, err := p.Storage().GetFile(ctx, p.Project().ID, bad)
	require.NoError(t, err)
	require.NotNil(t, row.ParseError)
	assert.Contains(t, *row.ParseError, "frontend exploded")
	assert.Equal(t, "cpp", row.Language)

	status, err := p.Storage().GetStatus(ctx, p.Project().ID)
	require.NoError(t, err)
	assert.Equal(t, 1, status.FailedFiles)
}

func TestIndexProjectInProgress(t *testing.T) {
	p := setupPipeline(t, testConfig(), NewTestIndexer())
	require.True(t, p.lock.TryAcquire())
	defer p.lock.Release()

	_, err := p.IndexProject(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrIndexingInProgress)
}

func TestIndexFileWithWorkingContents(t *testing.T) {
	root := setupProject(t)
	p := setupPipeline(t, testConfig())
	ctx := context.Background()

	_, err := p.IndexFile(ctx, filepath.Join(root, "a.cc"), nil)
	require.ErrorIs(t, err, storage.ErrNotFound, "no project open yet")

	_, err = p.IndexProject(ctx, root, nil)
	require.NoError(t, err)

	headerPath := filepath.Join(root, "h.h")
	header, err := p.Cache().Load(headerPath)
	require.NoError(t, err)
	before := header.USRs()

	// Editing a main file leaves the header alone
	mainPath := header.ImportFile
	mainContent, err := os.ReadFile(mainPath)
	require.NoError(t, err)
	snapshot := []types.FileContents{{Path: mainPath, Content: string(mainContent) + "int extra;\n"}}
	updates, err := p.IndexFile(ctx, mainPath, snapshot)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, mainPath, updates[0].Path)
	assert.Equal(t, []types.Usr{"c:@extra"}, updates[0].Vars.Added)

	header, err = p.Cache().Load(headerPath)
	require.NoError(t, err)
	assert.Equal(t, before, header.USRs())

	// A header is reindexed through its import file
	snapshot = []types.FileContents{{Path: headerPath, Content: "// Does f.\nvoid f();\nvoid h2();\n"}}
	updates, err = p.IndexFile(ctx, headerPath, snapshot)
	require.NoError(t, err)
	var headerUpdate *index.FileUpdate
	for i := range updates {
		if updates[i].Path == headerPath {
			headerUpdate = &updates[i]
		}
	}
	require.NotNil(t, headerUpdate)
	assert.Equal(t, []types.Usr{"c:@F@h2#"}, headerUpdate.Funcs.Added)

	_, err = p.IndexFile(ctx, filepath.Join(root, "orphan.h"), nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
