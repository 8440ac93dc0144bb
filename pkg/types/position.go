package types

import (
	"errors"
	"fmt"
)

// Position is a zero-based line/column location in a source file
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Compare orders positions by line, then column
func (p Position) Compare(o Position) int {
	if p.Line != o.Line {
		if p.Line < o.Line {
			return -1
		}
		return 1
	}
	if p.Column != o.Column {
		if p.Column < o.Column {
			return -1
		}
		return 1
	}
	return 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
}

// Range is a half-open [Start, End) span of source text
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Valid reports whether the range has non-negative coordinates and
// does not end before it starts
func (r Range) Valid() bool {
	return r.Start.Line >= 0 && r.Start.Column >= 0 && r.Start.Compare(r.End) <= 0
}

// Contains reports whether pos falls inside the range
func (r Range) Contains(pos Position) bool {
	return r.Start.Compare(pos) <= 0 && pos.Compare(r.End) < 0
}

// Compare orders ranges by start, then end
func (r Range) Compare(o Range) int {
	if c := r.Start.Compare(o.Start); c != 0 {
		return c
	}
	return r.End.Compare(o.End)
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Start, r.End)
}

// Validate checks that the range is usable as an occurrence span
func (r Range) Validate() error {
	if !r.Valid() {
		return errors.Join(ErrInvalidRange, fmt.Errorf("range %s", r))
	}
	return nil
}

// NewRange builds a single-line range
func NewRange(line, startCol, endCol int) Range {
	return Range{
		Start: Position{Line: line, Column: startCol},
		End:   Position{Line: line, Column: endCol},
	}
}
