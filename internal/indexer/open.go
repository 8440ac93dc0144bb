package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xiang66/ccls/internal/cache"
	"github.com/xiang66/ccls/internal/config"
	"github.com/xiang66/ccls/internal/consumer"
	"github.com/xiang66/ccls/internal/frontend"
	"github.com/xiang66/ccls/internal/storage"
	"github.com/xiang66/ccls/internal/workfiles"
)

// Open builds a pipeline from cfg: the database at cfg.DBPath, the cache
// under cfg.CacheDir and one tree-sitter worker per configured worker
func Open(cfg *config.Config) (*Pipeline, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	c, err := cache.New(cfg.CacheDir, cfg.Format(), cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	workers := make([]Indexer, 0, cfg.Workers)
	for range max(cfg.Workers, 1) {
		workers = append(workers, NewWorker(frontend.NewTreeSitter(cfg.IncludeDirs)))
	}
	pool := NewPool(consumer.NewSharedState(), workers...)

	return NewPipeline(cfg, store, c, pool, workfiles.NewStore()), nil
}

// Close stops the workers and closes the database
func (p *Pipeline) Close() error {
	return errors.Join(p.pool.Close(), p.store.Close())
}

// Reset empties the database and the cache and releases every claim. The
// next run indexes the project from scratch.
func (p *Pipeline) Reset(ctx context.Context) error {
	if !p.lock.TryAcquire() {
		return ErrIndexingInProgress
	}
	defer p.lock.Release()

	r, ok := p.store.(interface{ Reset(context.Context) error })
	if !ok {
		return errors.New("storage does not support reset")
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if err := r.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	if err := p.cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	p.pool.Shared().Reset()
	p.project.Store(nil)
	return nil
}
