package tu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xiang66/ccls/internal/frontend"
	"github.com/xiang66/ccls/pkg/types"
)

var (
	// ErrParserFatal is returned when the first parse produced no AST.
	// It is not retried.
	ErrParserFatal = errors.New("parser produced no translation unit")
	// ErrDisposed is returned when using a unit after Dispose
	ErrDisposed = errors.New("translation unit disposed")
)

// State is the lifecycle state of a Unit
type State int

const (
	StateCreated State = iota
	StateParsed
	StateReparsed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateParsed:
		return "parsed"
	case StateReparsed:
		return "reparsed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Status is the outcome of a reparse
type Status int

const (
	StatusSuccess Status = iota
	StatusCrashed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusCrashed:
		return "crashed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Unit owns the parsed form of one translation unit. It is not shared
// between workers.
type Unit struct {
	mu      sync.Mutex
	fe      frontend.Frontend
	path    string
	args    []string
	ast     *types.ParseResult
	state   State
	lastErr error
}

// Create parses path for the first time inside RunSafely. A crash or a
// missing AST is reported as ErrParserFatal.
func Create(ctx context.Context, fe frontend.Frontend, path string, args []string, snapshot []types.FileContents) (*Unit, error) {
	u := &Unit{fe: fe, path: path, args: args, state: StateCreated}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAborted, err)
	}

	ast, err := u.parse(ctx, snapshot)
	if err != nil {
		if errors.Is(err, types.ErrAborted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrParserFatal, path, err)
	}
	if ast == nil {
		return nil, fmt.Errorf("%w: %s", ErrParserFatal, path)
	}
	u.ast = ast
	u.state = StateParsed
	return u, nil
}

func (u *Unit) parse(ctx context.Context, snapshot []types.FileContents) (*types.ParseResult, error) {
	var ast *types.ParseResult
	err := RunSafely(func() error {
		var err error
		ast, err = u.fe.Parse(ctx, u.path, u.args, snapshot)
		return err
	})
	return ast, err
}

// Reparse reparses with new snapshot contents. On a crash the previous AST
// stays current.
func (u *Unit) Reparse(ctx context.Context, snapshot []types.FileContents) Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.state == StateDisposed {
		u.lastErr = ErrDisposed
		return StatusAborted
	}
	if err := ctx.Err(); err != nil {
		u.lastErr = fmt.Errorf("%w: %w", types.ErrAborted, err)
		return StatusAborted
	}

	ast, err := u.parse(ctx, snapshot)
	switch {
	case errors.Is(err, types.ErrAborted):
		u.lastErr = err
		return StatusAborted
	case err != nil:
		u.lastErr = err
		return StatusCrashed
	case ast == nil:
		u.lastErr = fmt.Errorf("%w: %s", ErrParserFatal, u.path)
		return StatusCrashed
	}
	u.ast = ast
	u.state = StateReparsed
	u.lastErr = nil
	return StatusSuccess
}

// AST returns the last good parse
func (u *Unit) AST() *types.ParseResult {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ast
}

// Path returns the main file of the unit
func (u *Unit) Path() string { return u.path }

// Args returns the arguments the unit was parsed with
func (u *Unit) Args() []string { return u.args }

// State returns the lifecycle state
func (u *Unit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// LastError returns the error of the most recent failed reparse
func (u *Unit) LastError() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// Dispose releases the AST
func (u *Unit) Dispose() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ast = nil
	u.state = StateDisposed
}
