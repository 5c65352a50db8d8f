// Package sqlite implements the driven.Store port on top of
// modernc.org/sqlite, a pure Go SQLite implementation that requires no
// CGO and compiles FTS5 in directly — so the full-text half of hybrid
// search never needs a separate Xapian/CGO dependency.
//
// # Schema
//
// Schema version is tracked by SQLite's own PRAGMA user_version, not an
// application-level migrations table: the external interface this store
// exposes names that counter directly. Migration files are discovered
// from an embedded filesystem, sorted by their numeric prefix, and
// applied once each.
//
// # Data Location
//
// By default the database lives at ~/.sercha/data/retrieve.db.
//
// # Thread Safety
//
// All operations are thread-safe via SQLite's WAL-mode locking. Clone
// opens an independent *sql.DB handle onto the same file for concurrent
// worker reads without re-running migrations.
package sqlite
