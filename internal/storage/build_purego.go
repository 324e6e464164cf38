//go:build !sqlite_cgo

package storage

// Default build. Uses modernc.org/sqlite, a pure Go SQLite, so the binary
// cross-compiles with CGO_ENABLED=0.

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the database/sql driver registered by this build
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
