// Package store opens the SQLite databases used by logsync.
//
// Every database is configured the same way:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Callers supply the base schema and an ordered list of migrations keyed by
// PRAGMA user_version. The shared sync log (internal/synclog) and the object
// backend (internal/objstore) are both built on this package.
package store
