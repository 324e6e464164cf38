// Package storage provides the vector index that holds embedded article
// chunks.
//
// Two backends implement VectorIndex:
//
//   - SQLiteIndex persists entries in a single chunks table. The default
//     build uses modernc.org/sqlite; build with -tags sqlite_cgo to use
//     github.com/mattn/go-sqlite3 instead.
//   - MemoryIndex keeps entries in a map and is used by tests and by
//     ephemeral runs.
//
// Both backends share these rules:
//
//   - Adding an existing chunk id overwrites the stored entry.
//   - Query ranks by cosine distance (1 - cosine similarity), nearest first,
//     with ties broken by chunk id.
//   - Entries whose dimension differs from the query vector are skipped.
//   - A Filter restricts by session id and category; empty fields match
//     everything.
//   - k <= 0 returns an empty slice.
//
// Failures are returned as *types.IndexError so callers can test with
// errors.Is(err, types.ErrIndex).
//
// Schema changes are applied by ApplyMigrations, which records semver
// versions in the schema_version table.
package storage
