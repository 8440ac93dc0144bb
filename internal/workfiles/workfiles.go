// Package workfiles tracks files open in an editor whose content may differ
// from disk. Every parse reads through a snapshot of these files.
package workfiles

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/xiang66/ccls/pkg/types"
)

// ErrNotOpen is returned when updating a file that was never opened
var ErrNotOpen = errors.New("file is not open")

// WorkingFile is the editor's view of one file
type WorkingFile struct {
	Path    string
	Content string
	Version int
	// Args replaces the project args for this path when set.
	Args []string
}

// Store is safe for concurrent use
type Store struct {
	mu    sync.RWMutex
	files map[string]*WorkingFile
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{files: make(map[string]*WorkingFile)}
}

// Open records the content of path. Reopening replaces content and args.
func (s *Store) Open(path, content string, args []string) *WorkingFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf := &WorkingFile{Path: path, Content: content, Args: slices.Clone(args)}
	if prev, ok := s.files[path]; ok {
		wf.Version = prev.Version + 1
	}
	s.files[path] = wf
	return copyOf(wf)
}

// Update replaces the content of an open file and bumps its version
func (s *Store) Update(path, content string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.files[path]
	if !ok {
		return 0, ErrNotOpen
	}
	wf.Content = content
	wf.Version++
	return wf.Version, nil
}

// Close forgets path; later parses read it from disk
func (s *Store) Close(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
}

// Get returns a copy of the working file
func (s *Store) Get(path string) (*WorkingFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.files[path]
	if !ok {
		return nil, false
	}
	return copyOf(wf), true
}

// Args returns the per-file argument override of path
func (s *Store) Args(path string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.files[path]
	if !ok || wf.Args == nil {
		return nil, false
	}
	return slices.Clone(wf.Args), true
}

// Snapshot returns the content of every open file ordered by path
func (s *Store) Snapshot() []types.FileContents {
	s.mu.RLock()
	out := make([]types.FileContents, 0, len(s.files))
	for _, wf := range s.files {
		out = append(out, types.FileContents{Path: wf.Path, Content: wf.Content})
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b types.FileContents) int { return strings.Compare(a.Path, b.Path) })
	return out
}

// Len returns the number of open files
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

func copyOf(wf *WorkingFile) *WorkingFile {
	c := *wf
	c.Args = slices.Clone(wf.Args)
	return &c
}
