// Package cache keeps the last good IndexFile of every indexed path.
//
// Entries live in a bounded in-memory LRU backed by a cache directory on
// disk. The disk copy survives restarts and is what lets a crashed or
// aborted reparse keep serving the previous index. A disk entry written by
// a different index major version reads as a miss.
package cache

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/internal/serializer"
)

// DefaultSize is the number of IndexFiles kept in memory
const DefaultSize = 1024

// Cache is safe for concurrent use
type Cache struct {
	dir    string
	format serializer.Format

	mu  sync.Mutex // serializes disk writes
	mem *lru.Cache[string, *index.IndexFile]
}

// New creates a cache. An empty dir keeps entries in memory only.
func New(dir string, format serializer.Format, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	mem, err := lru.New[string, *index.IndexFile](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}
	return &Cache{dir: dir, format: format, mem: mem}, nil
}

// Dir returns the cache directory, empty for a memory-only cache
func (c *Cache) Dir() string {
	return c.dir
}

// entryPath maps a source path to its cache file. Separators are escaped
// so every entry sits directly in the cache dir.
func (c *Cache) entryPath(path, ext string) string {
	name := strings.NewReplacer("/", "@", "\\", "@", ":", "@").Replace(path)
	return filepath.Join(c.dir, name+ext)
}

// Load returns the last good index of path. A missing or outdated entry
// returns nil without error.
func (c *Cache) Load(path string) (*index.IndexFile, error) {
	if f, ok := c.mem.Get(path); ok {
		return f, nil
	}
	if c.dir == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.entryPath(path, c.format.Ext()))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	f, err := serializer.Deserialize(c.format, path, data, index.MajorVersion)
	if errors.Is(err, serializer.ErrVersionMismatch) {
		log.Printf("cache: dropping outdated entry for %s", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if content, ok := c.LoadContent(path); ok {
		f.FileContents = content
	}
	c.mem.Add(path, f)
	return f, nil
}

// LoadContent returns the file contents stored with the last index of path
func (c *Cache) LoadContent(path string) (string, bool) {
	if f, ok := c.mem.Peek(path); ok && f.FileContents != "" {
		return f.FileContents, true
	}
	if c.dir == "" {
		return "", false
	}
	data, err := os.ReadFile(c.entryPath(path, ""))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Store records f as the last good index of its path
func (c *Cache) Store(f *index.IndexFile) error {
	c.mem.Add(f.Path, f)
	if c.dir == "" {
		return nil
	}

	data, err := serializer.Serialize(c.format, f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := writeAtomic(c.entryPath(f.Path, c.format.Ext()), data); err != nil {
		return err
	}
	return writeAtomic(c.entryPath(f.Path, ""), []byte(f.FileContents))
}

// Remove forgets path in memory and on disk
func (c *Cache) Remove(path string) error {
	c.mem.Remove(path)
	if c.dir == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range []string{c.entryPath(path, c.format.Ext()), c.entryPath(path, "")} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Clear drops every entry in memory and on disk
func (c *Cache) Clear() error {
	c.mem.Purge()
	if c.dir == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Len returns the number of entries held in memory
func (c *Cache) Len() int {
	return c.mem.Len()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("cache: failed to remove temp file: %v", err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
