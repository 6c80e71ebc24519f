// Package synclog implements the shared sync log: an append-only, SQLite
// backed record of log entries written by every device of a user.
//
// Each appended entry is stamped with shared_on, a strictly increasing
// logical timestamp. Every device has a high-water mark (shared_until):
// entries with shared_on above it have not yet been delivered to that
// device. Ordering always uses shared_on, never wall-clock time.
package synclog
