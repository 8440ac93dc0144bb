package frontend

import (
	"context"
	"errors"

	"github.com/xiang66/ccls/pkg/types"
)

// ErrNoSource is returned when the main file of a parse cannot be read
var ErrNoSource = errors.New("main file not readable")

// Frontend parses one translation unit into an event stream. The returned
// ParseResult is the AST the rest of the system sees.
//
// A Frontend may panic on malformed input; callers run it under
// tu.RunSafely.
type Frontend interface {
	// Parse parses path with args. Snapshot entries replace on-disk contents
	// for their paths.
	Parse(ctx context.Context, path string, args []string, snapshot []types.FileContents) (*types.ParseResult, error)

	// Name identifies the frontend in logs
	Name() string
}

// snapshotMap indexes snapshot contents by path
func snapshotMap(snapshot []types.FileContents) map[string]string {
	m := make(map[string]string, len(snapshot))
	for _, fc := range snapshot {
		m[fc.Path] = fc.Content
	}
	return m
}
