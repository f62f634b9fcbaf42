// Package evidence defines the turn journal: one TurnRecord per resolve
// call, written asynchronously so the request path never waits on disk.
//
// Subpackages:
//
//   - recorder: buffers records and writes them in a background goroutine
//   - storage: memory and SQLite backends
//   - retention: age and size based pruning on a cron schedule
//   - query: query validation and defaults
//   - export: JSON export used by the journal command
//
// The SQLite backend accepts either database/sql driver: "sqlite3"
// (github.com/mattn/go-sqlite3, cgo) or "sqlite" (modernc.org/sqlite, pure
// Go). Timestamps are stored as Unix nanoseconds so both drivers read them
// back identically.
package evidence
