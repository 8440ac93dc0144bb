// Package consumer decides which parse owns which physical file.
//
// Many translation units include the same headers. SharedState is the one
// piece of state shared by all workers: the first parse to claim a header
// indexes it and every other parse skips it until the header is released
// again, which happens when it changes on disk.
package consumer

import (
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/xiang66/ccls/internal/index"
	"github.com/xiang66/ccls/pkg/types"
)

// SharedState records which files have been claimed by some parse
type SharedState struct {
	mu    sync.Mutex
	files map[string]struct{}
}

// NewSharedState creates an empty claim set
func NewSharedState() *SharedState {
	return &SharedState{files: make(map[string]struct{})}
}

// Claim marks path as owned. It returns true for the first caller only.
func (s *SharedState) Claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; ok {
		return false
	}
	s.files[path] = struct{}{}
	return true
}

// Claimed reports whether path is currently owned
func (s *SharedState) Claimed(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

// Release lets the next parse that touches path claim it again
func (s *SharedState) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// Reset releases every file
func (s *SharedState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.files)
}

// Len returns the number of claimed files
func (s *SharedState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// FileConsumer routes the files of one parse. It is used by a single
// goroutine and implements index.FileRouter.
type FileConsumer struct {
	shared    *SharedState
	parseFile string
	contents  map[string]string
	local     map[string]*index.IndexFile
	claimed   []string
}

// NewFileConsumer creates a router for the parse of parseFile. The main
// file is always owned by its own parse. A nil shared state owns every
// file, for parses that are not coordinated with other workers.
func NewFileConsumer(shared *SharedState, parseFile string, contents []types.FileContents) *FileConsumer {
	c := &FileConsumer{
		shared:    shared,
		parseFile: parseFile,
		contents:  make(map[string]string, len(contents)),
		local:     make(map[string]*index.IndexFile),
	}
	for _, fc := range contents {
		c.contents[fc.Path] = fc.Content
	}
	return c
}

// File implements index.FileRouter
func (c *FileConsumer) File(path string) *index.IndexFile {
	if f, ok := c.local[path]; ok {
		return f
	}
	if path == "" {
		return nil
	}
	if path != c.parseFile {
		if c.shared != nil && !c.shared.Claim(path) {
			c.local[path] = nil
			return nil
		}
		c.claimed = append(c.claimed, path)
	}

	content := c.contents[path]
	f := index.NewIndexFile(path, content)
	f.ContentHash = xxh3.HashString(content)
	c.local[path] = f
	return f
}

// Claimed returns the files this parse claimed, in claim order
func (c *FileConsumer) Claimed() []string {
	return c.claimed
}

// ReleaseAll gives back every claim made by this parse. Used when the parse
// is discarded.
func (c *FileConsumer) ReleaseAll() {
	if c.shared != nil {
		for _, path := range c.claimed {
			c.shared.Release(path)
		}
	}
	c.claimed = nil
}
