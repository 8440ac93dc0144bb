package types

import "errors"

// Domain errors shared across packages
var (
	ErrInvalidRange = errors.New("invalid range")
	ErrEmptyUsr     = errors.New("empty usr")
	ErrMissingName  = errors.New("declaration has no name")

	// ErrAborted is returned by a frontend when the caller aborted the parse
	ErrAborted = errors.New("parse aborted")

	// Navigation result errors
	ErrInvalidLocation = errors.New("location path is required")
	ErrUnknownSymbol   = errors.New("symbol is not indexed")
)
