// Package storage provides journal backends.
//
// MemoryStorage suits tests and short-lived processes. SQLiteStorage
// persists to a single file; its Driver selects "sqlite3" (mattn, cgo) or
// "sqlite" (modernc, pure Go). Each driver gets busy_timeout and WAL
// through its own DSN syntax.
package storage
