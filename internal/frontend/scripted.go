package frontend

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiang66/ccls/pkg/types"
)

// Step is one scripted outcome of a parse
type Step struct {
	Result *types.ParseResult
	Err    error
	// Panic, when set, makes the parse panic with this value.
	Panic any
}

// Scripted replays pre-recorded parse outcomes per path. Each parse
// consumes one step; the last step repeats. Snapshot contents for the main
// file are copied into the result's Files.
type Scripted struct {
	mu    sync.Mutex
	steps map[string][]Step
	calls map[string]int
}

// NewScripted creates an empty scripted frontend
func NewScripted() *Scripted {
	return &Scripted{
		steps: make(map[string][]Step),
		calls: make(map[string]int),
	}
}

// Add queues steps for path
func (s *Scripted) Add(path string, steps ...Step) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps[path] = append(s.steps[path], steps...)
	return s
}

// Calls returns how many times path was parsed
func (s *Scripted) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Name implements Frontend
func (s *Scripted) Name() string { return "scripted" }

// Parse implements Frontend
func (s *Scripted) Parse(ctx context.Context, path string, args []string, snapshot []types.FileContents) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAborted, err)
	}

	s.mu.Lock()
	n := s.calls[path]
	s.calls[path]++
	queue := s.steps[path]
	s.mu.Unlock()

	if len(queue) == 0 {
		return nil, fmt.Errorf("%w: no script for %s", ErrNoSource, path)
	}
	step := queue[min(n, len(queue)-1)]
	if step.Panic != nil {
		panic(step.Panic)
	}
	if step.Err != nil || step.Result == nil {
		return nil, step.Err
	}

	res := *step.Result
	res.Files = append([]types.FileContents(nil), res.Files...)
	snap := snapshotMap(snapshot)
	for i := range res.Files {
		if content, ok := snap[res.Files[i].Path]; ok {
			res.Files[i].Content = content
		}
	}
	return &res, nil
}
