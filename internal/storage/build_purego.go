//go:build purego || !cgo_sqlite

package storage

// Compiled by default. Uses a pure Go SQLite, so no C compiler is needed
// and the binary cross-compiles.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
