//go:build !cgo_sqlite
// +build !cgo_sqlite

package storage

// This file is compiled when building without the cgo_sqlite tag. It uses the
// pure Go SQLite implementation, which needs no C compiler and cross-compiles
// cleanly.
//
// Build command:
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
