//go:build sqlite_cgo

package storage

// Compiled with -tags sqlite_cgo. Uses the C SQLite library through
// github.com/mattn/go-sqlite3, which is faster for large indexes but needs
// CGO_ENABLED=1 and a C toolchain.
//
//   CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql driver registered by this build
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
