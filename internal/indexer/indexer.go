package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/frontend"
	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/tu"
	"github.com/xiang66/ccls/pkg/types"
)

var (
	// ErrParseCrashed is returned when a reparse crashed. The previous
	// index of the file stays valid.
	ErrParseCrashed = errors.New("parser crashed")
	// ErrNoEntry is returned by TestIndexer for a path it has no entry for
	ErrNoEntry = errors.New("no test entry for path")
)

// Indexer turns one translation unit into per-file indexes
type Indexer interface {
	// Index parses file and returns the IndexFiles of every file the parse
	// owns: always the main file, plus each header shared claimed for it.
	// A nil shared owns every file the parse touches.
	Index(ctx context.Context, shared *consumer.SharedState, file string, args []string, contents []types.FileContents) ([]*index.IndexFile, error)
}

// frontendInitMu serializes frontend setup across workers
var frontendInitMu sync.Mutex

// Worker indexes with a real frontend. It keeps the translation unit of
// every main file it has parsed so later requests reparse instead of
// starting over. A Worker serves one request at a time.
type Worker struct {
	fe frontend.Frontend

	mu    sync.Mutex
	units map[string]*tu.Unit
}

// NewWorker creates a worker around fe
func NewWorker(fe frontend.Frontend) *Worker {
	frontendInitMu.Lock()
	defer frontendInitMu.Unlock()
	return &Worker{
		fe:    fe,
		units: make(map[string]*tu.Unit),
	}
}

// Index implements Indexer
func (w *Worker) Index(ctx context.Context, shared *consumer.SharedState, file string, args []string, contents []types.FileContents) ([]*index.IndexFile, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	unit, err := w.unit(ctx, file, args, contents)
	if err != nil {
		return nil, err
	}
	ast := unit.AST()

	fc := consumer.NewFileConsumer(shared, file, ast.Files)
	b := index.NewBuilder(fc, file, args)
	b.ApplyResult(ast)
	files, stats := b.Finish()
	if ctx.Err() != nil {
		// The caller is gone and nobody persists these files
		fc.ReleaseAll()
		return nil, types.ErrAborted
	}
	if stats.AnomalyCount() > 0 {
		log.Printf("indexer: %s: %s", file, stats)
	}
	return files, nil
}

// unit returns a freshly parsed unit for file. A cached unit is reparsed
// unless the args changed, in which case it is replaced.
func (w *Worker) unit(ctx context.Context, file string, args []string, contents []types.FileContents) (*tu.Unit, error) {
	if u, ok := w.units[file]; ok {
		if slices.Equal(u.Args(), args) {
			switch u.Reparse(ctx, contents) {
			case tu.StatusSuccess:
				return u, nil
			case tu.StatusAborted:
				return nil, types.ErrAborted
			default:
				return nil, fmt.Errorf("%w: %s: %w", ErrParseCrashed, file, u.LastError())
			}
		}
		u.Dispose()
		delete(w.units, file)
	}

	u, err := tu.Create(ctx, w.fe, file, args, contents)
	if err != nil {
		return nil, err
	}
	w.units[file] = u
	return u, nil
}

// Forget disposes the cached unit of file
func (w *Worker) Forget(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if u, ok := w.units[file]; ok {
		u.Dispose()
		delete(w.units, file)
	}
}

// Close disposes every cached unit
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, u := range w.units {
		u.Dispose()
		delete(w.units, path)
	}
	return nil
}

// TestEntry is the canned answer of a TestIndexer for one main file
type TestEntry struct {
	Path  string
	Files []*index.IndexFile
	Err   error
}

// TestIndexer returns canned results and counts requests per path
type TestIndexer struct {
	mu      sync.Mutex
	entries map[string]TestEntry
	counts  map[string]int
}

// NewTestIndexer creates a TestIndexer answering for entries
func NewTestIndexer(entries ...TestEntry) *TestIndexer {
	t := &TestIndexer{
		entries: make(map[string]TestEntry, len(entries)),
		counts:  make(map[string]int),
	}
	for _, e := range entries {
		t.entries[e.Path] = e
	}
	return t
}

// Index implements Indexer. Files other than the main file are only
// returned when shared lets this parse claim them.
func (t *TestIndexer) Index(ctx context.Context, shared *consumer.SharedState, file string, args []string, contents []types.FileContents) ([]*index.IndexFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ErrAborted
	}

	t.mu.Lock()
	entry, ok := t.entries[file]
	t.counts[file]++
	t.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoEntry, file)
	}
	if entry.Err != nil {
		return nil, entry.Err
	}

	out := make([]*index.IndexFile, 0, len(entry.Files))
	for _, f := range entry.Files {
		if f.Path != file && shared != nil && !shared.Claim(f.Path) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// NumIndexes returns how many requests were made for path
func (t *TestIndexer) NumIndexes(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[path]
}
