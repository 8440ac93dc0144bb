package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/xiang66/ccls/internal/cache"
	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/storage"
	"github.com/xiang66/ccls/internal/tu"
	"github.com/xiang66/ccls/internal/workfiles"
	"github.com/xiang66/ccls/pkg/types"
)

// ErrIndexingInProgress is returned when a project run is already active
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Statistics contains statistics about an indexing run
type Statistics struct {
	FilesIndexed   int
	FilesSkipped   int
	FilesFailed    int
	FilesWritten   int // IndexFiles persisted, headers included
	FilesRemoved   int // Indexed files no longer on disk
	SymbolsIndexed int
	Updates        []index.FileUpdate
	Duration       time.Duration
	ErrorMessages  []string
}

// Pipeline discovers translation units, parses them on the pool and
// persists every resulting IndexFile to the cache and the database
type Pipeline struct {
	cfg   *config.Config
	store storage.Storage
	cache *cache.Cache
	pool  *Pool
	work  *workfiles.Store

	lock      IndexLock
	persistMu sync.Mutex
	project   atomic.Pointer[storage.Project]
}

// NewPipeline wires the pipeline. work may be nil when no editor is attached.
func NewPipeline(cfg *config.Config, store storage.Storage, c *cache.Cache, pool *Pool, work *workfiles.Store) *Pipeline {
	if work == nil {
		work = workfiles.NewStore()
	}
	return &Pipeline{
		cfg:   cfg,
		store: store,
		cache: c,
		pool:  pool,
		work:  work,
	}
}

// Project returns the project opened by the last run, or nil
func (p *Pipeline) Project() *storage.Project {
	return p.project.Load()
}

// Config returns the pipeline configuration
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Cache returns the IndexFile cache
func (p *Pipeline) Cache() *cache.Cache {
	return p.cache
}

// WorkingFiles returns the editor overlay
func (p *Pipeline) WorkingFiles() *workfiles.Store {
	return p.work
}

// Storage returns the database
func (p *Pipeline) Storage() storage.Storage {
	return p.store
}

// Shared returns the header claims of the worker pool
func (p *Pipeline) Shared() *consumer.SharedState {
	return p.pool.Shared()
}

// outcome is the result of one translation unit
type outcome struct {
	path    string
	files   []*index.IndexFile
	skipped bool
	err     error
}

// IndexProject indexes every translation unit under rootPath. A nil cfg
// uses the pipeline configuration.
func (p *Pipeline) IndexProject(ctx context.Context, rootPath string, cfg *config.Config) (*Statistics, error) {
	if !p.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer p.lock.Release()

	if cfg == nil {
		cfg = p.cfg
	}
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	project, err := p.OpenProject(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	files, err := discoverFiles(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	if err := p.indexFiles(ctx, project, files, cfg, stats); err != nil {
		return nil, fmt.Errorf("failed to index files: %w", err)
	}

	// After the reparses, so units including a deleted header were seen as changed
	if err := p.removeDeleted(ctx, project, stats); err != nil {
		return nil, fmt.Errorf("failed to remove deleted files: %w", err)
	}

	if err := p.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

// OpenProject returns the project rooted at rootPath, creating it on first
// use, and makes it the target of IndexFile
func (p *Pipeline) OpenProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := p.store.GetProject(ctx, rootPath)
	if errors.Is(err, storage.ErrNotFound) {
		project = &storage.Project{
			RootPath:     rootPath,
			IndexVersion: storage.CurrentSchemaVersion,
		}
		err = p.store.CreateProject(ctx, project)
	}
	if err != nil {
		return nil, err
	}
	p.project.Store(project)
	return project, nil
}

// discoverFiles finds every translation unit under root
func discoverFiles(root string, cfg *config.Config) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && cfg.Excluded(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if cfg.IsSource(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// indexFiles parses files concurrently and persists the results one batch
// per transaction
func (p *Pipeline) indexFiles(ctx context.Context, project *storage.Project, files []string, cfg *config.Config, stats *Statistics) error {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	semaphore := make(chan struct{}, workers)

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	snapshot := p.work.Snapshot()
	defaultArgs := cfg.Args()
	stale := p.plan(files, snapshot)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex // Protects stats

	for i := 0; i < len(files); i += batchSize {
		batch := files[i:min(i+batchSize, len(files))]

		g.Go(func() error {
			outcomes := make([]outcome, len(batch))
			var wg sync.WaitGroup
			for j, path := range batch {
				if _, ok := stale[path]; !ok {
					outcomes[j] = outcome{path: path, skipped: true}
					continue
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case semaphore <- struct{}{}:
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer func() { <-semaphore }()
					outcomes[j] = p.indexUnit(gctx, path, defaultArgs, snapshot)
				}()
			}
			wg.Wait()

			return p.persistBatch(gctx, project, outcomes, stats, &mu)
		})
	}

	return g.Wait()
}

// plan returns the translation units that need a parse. Changed headers are
// released up front so exactly one of the reparses claims each of them.
func (p *Pipeline) plan(files []string, snapshot []types.FileContents) map[string]struct{} {
	stale := make(map[string]struct{})
	for _, path := range files {
		changed, err := p.changedFiles(path, snapshot)
		if err != nil {
			log.Printf("indexer: reindexing %s: %v", path, err)
			stale[path] = struct{}{}
			continue
		}
		if changed == nil {
			continue
		}
		stale[path] = struct{}{}
		for _, dep := range changed {
			if dep != path {
				p.pool.Shared().Release(dep)
			}
		}
	}
	return stale
}

// indexUnit parses one translation unit with its per-file args override
func (p *Pipeline) indexUnit(ctx context.Context, path string, defaultArgs []string, snapshot []types.FileContents) outcome {
	args := defaultArgs
	if override, ok := p.work.Args(path); ok {
		args = override
	}
	files, err := p.pool.Index(ctx, path, args, snapshot)
	return outcome{path: path, files: files, err: err}
}

// changedFiles returns path and the dependencies of its cached index whose
// content differs from the cache. nil means nothing changed.
func (p *Pipeline) changedFiles(path string, snapshot []types.FileContents) ([]string, error) {
	prev, err := p.cache.Load(path)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		return []string{path}, nil
	}

	var changed []string
	check := func(file string, cached uint64) {
		content, ok := currentContent(file, snapshot)
		if !ok || xxh3.HashString(content) != cached {
			changed = append(changed, file)
		}
	}
	check(path, prev.ContentHash)
	for _, dep := range prev.Dependencies {
		depIndex, err := p.cache.Load(dep)
		if err != nil || depIndex == nil {
			// Never indexed or unreadable
			continue
		}
		check(dep, depIndex.ContentHash)
	}
	if len(changed) > 0 && changed[0] != path {
		changed = append([]string{path}, changed...)
	}
	return changed, nil
}

// currentContent prefers the working copy over the disk
func currentContent(path string, snapshot []types.FileContents) (string, bool) {
	for _, fc := range snapshot {
		if fc.Path == path {
			return fc.Content, true
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// persistBatch writes the outcomes of one batch in a single transaction
func (p *Pipeline) persistBatch(ctx context.Context, project *storage.Project, outcomes []outcome, stats *Statistics, mu *sync.Mutex) error {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, o := range outcomes {
		if o.path == "" {
			continue
		}
		switch {
		case o.skipped, errors.Is(o.err, ErrStaleResult):
			mu.Lock()
			stats.FilesSkipped++
			mu.Unlock()
			continue
		case o.err != nil:
			mu.Lock()
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", o.path, o.err))
			mu.Unlock()
			if err := p.recordFailure(ctx, tx, project, o.path, o.err); err != nil {
				return err
			}
			continue
		}

		updates, symbols, err := p.persistFiles(ctx, tx, project, o.files)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.FilesIndexed++
		stats.FilesWritten += len(o.files)
		stats.SymbolsIndexed += symbols
		stats.Updates = append(stats.Updates, updates...)
		mu.Unlock()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistFiles stores files in the cache and the database and returns the
// non-empty updates against the previous versions
func (p *Pipeline) persistFiles(ctx context.Context, store storage.Storage, project *storage.Project, files []*index.IndexFile) ([]index.FileUpdate, int, error) {
	var (
		updates []index.FileUpdate
		symbols int
	)
	for _, f := range files {
		var modTime time.Time
		if info, err := os.Stat(f.Path); err == nil {
			modTime = info.ModTime()
			f.LastModificationTime = modTime.Unix()
		}

		prev, err := p.cache.Load(f.Path)
		if err != nil {
			log.Printf("indexer: ignoring unreadable cache entry for %s: %v", f.Path, err)
			prev = nil
		}
		if update := index.Diff(prev, f); !update.Empty() {
			updates = append(updates, update)
		}
		if err := p.cache.Store(f); err != nil {
			return nil, 0, fmt.Errorf("failed to cache %s: %w", f.Path, err)
		}

		row := storage.FileFromIndex(project.ID, f)
		row.ModTime = modTime
		if len(f.Diagnostics) > 0 {
			msg := f.Diagnostics[0].Message
			row.ParseError = &msg
		}
		if err := store.UpsertFile(ctx, row); err != nil {
			return nil, 0, err
		}
		syms := storage.SymbolsFromIndex(f)
		if err := store.ReplaceSymbols(ctx, row.ID, syms); err != nil {
			return nil, 0, fmt.Errorf("failed to store symbols: %w", err)
		}
		if err := store.ReplaceIncludes(ctx, row.ID, storage.IncludesFromIndex(f)); err != nil {
			return nil, 0, fmt.Errorf("failed to store includes: %w", err)
		}
		symbols += len(syms)
	}
	return updates, symbols, nil
}

// recordFailure marks a failed translation unit. A crashed reparse keeps
// the rows and cache of the last good parse.
func (p *Pipeline) recordFailure(ctx context.Context, store storage.Storage, project *storage.Project, path string, cause error) error {
	if errors.Is(cause, ErrParseCrashed) || errors.Is(cause, types.ErrAborted) {
		return nil
	}
	msg := cause.Error()
	row, err := store.GetFile(ctx, project.ID, path)
	if errors.Is(err, storage.ErrNotFound) {
		row = &storage.File{
			ProjectID: project.ID,
			FilePath:  path,
			Language:  types.SourceFileLanguage(path).String(),
		}
	} else if err != nil {
		return err
	}
	row.ParseError = &msg
	if errors.Is(cause, tu.ErrParserFatal) {
		log.Printf("indexer: %s: %v", path, cause)
	}
	return store.UpsertFile(ctx, row)
}

// removeDeleted drops the rows, cache entries, claims and worker units of
// indexed files that are gone from disk. Files open in an editor are kept.
func (p *Pipeline) removeDeleted(ctx context.Context, project *storage.Project, stats *Statistics) error {
	rows, err := p.store.ListFiles(ctx, project.ID)
	if err != nil {
		return err
	}
	var gone []*storage.File
	for _, row := range rows {
		if _, open := p.work.Get(row.FilePath); open {
			continue
		}
		if _, err := os.Stat(row.FilePath); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, row)
		}
	}
	if len(gone) == 0 {
		return nil
	}

	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var updates []index.FileUpdate
	for _, row := range gone {
		symbols, err := tx.ListSymbolsByFile(ctx, row.ID)
		if err != nil {
			return err
		}
		if update := removalUpdate(row.FilePath, symbols); !update.Empty() {
			updates = append(updates, update)
		}
		if err := tx.DeleteFile(ctx, row.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", row.FilePath, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, row := range gone {
		if err := p.cache.Remove(row.FilePath); err != nil {
			log.Printf("indexer: failed to remove cache entry for %s: %v", row.FilePath, err)
		}
		p.pool.Shared().Release(row.FilePath)
		p.pool.Forget(row.FilePath)
	}
	stats.FilesRemoved += len(gone)
	stats.Updates = append(stats.Updates, updates...)
	return nil
}

// removalUpdate lists every symbol declared in a deleted file as removed
func removalUpdate(path string, symbols []*storage.Symbol) index.FileUpdate {
	update := index.FileUpdate{Path: path}
	seen := make(map[string]bool)
	for _, s := range symbols {
		if s.Role == storage.RoleReference || seen[s.Usr] {
			continue
		}
		seen[s.Usr] = true
		usr := types.Usr(s.Usr)
		switch s.Kind {
		case "type":
			update.Types.Removed = append(update.Types.Removed, usr)
		case "func":
			update.Funcs.Removed = append(update.Funcs.Removed, usr)
		case "var":
			update.Vars.Removed = append(update.Vars.Removed, usr)
		}
	}
	slices.Sort(update.Types.Removed)
	slices.Sort(update.Funcs.Removed)
	slices.Sort(update.Vars.Removed)
	return update
}

// updateProjectStats refreshes the project's file and symbol counts
func (p *Pipeline) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := p.store.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}
	project.TotalFiles = status.FilesCount
	project.TotalSymbols = status.SymbolsCount
	project.LastIndexedAt = time.Now()
	return p.store.UpdateProject(ctx, project)
}

// IndexFile reindexes one file with the given working contents. A header is
// reindexed through the translation unit that imports it.
func (p *Pipeline) IndexFile(ctx context.Context, path string, snapshot []types.FileContents) ([]index.FileUpdate, error) {
	project := p.project.Load()
	if project == nil {
		return nil, fmt.Errorf("%w: no project open", storage.ErrNotFound)
	}

	main, err := p.importFile(ctx, project, path)
	if err != nil {
		return nil, err
	}
	if main != path {
		p.pool.Shared().Release(path)
	}

	args := p.cfg.Args()
	if override, ok := p.work.Args(main); ok {
		args = override
	}
	files, err := p.pool.Index(ctx, main, args, snapshot)
	if err != nil {
		return nil, err
	}

	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updates, _, err := p.persistFiles(ctx, tx, project, files)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updates, nil
}

// importFile maps path to the translation unit that indexes it. A unit
// deleted since it last indexed the header does not count.
func (p *Pipeline) importFile(ctx context.Context, project *storage.Project, path string) (string, error) {
	if !types.IsHeader(path) {
		return path, nil
	}
	if f, err := p.cache.Load(path); err == nil && f != nil && p.available(f.ImportFile) {
		return f.ImportFile, nil
	}
	if row, err := p.store.GetFile(ctx, project.ID, path); err == nil && p.available(row.ImportFile) {
		return row.ImportFile, nil
	}
	includers, err := p.store.ListIncluders(ctx, project.ID, path)
	if err != nil {
		return "", err
	}
	for _, f := range includers {
		if p.available(f.ImportFile) {
			return f.ImportFile, nil
		}
	}
	return "", fmt.Errorf("%w: no translation unit includes %s", storage.ErrNotFound, path)
}

// available reports whether a translation unit can be parsed: it is open
// in an editor or present on disk
func (p *Pipeline) available(path string) bool {
	if path == "" {
		return false
	}
	if _, open := p.work.Get(path); open {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}
