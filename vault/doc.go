// Package vault provides namespaced, encrypted persistence of session
// connection parameters.
//
// Every entry is a flat map of scalar values keyed by (namespace, session id).
// Entries are CBOR encoded behind a one-byte format version and sealed with an
// age X25519 identity before they reach any backend. Four backends are
// available: an in-memory map, age files on disk, Redis, and SQLite.
//
// # Failure model
//
// Put is synchronous: when it returns nil the entry is durable for the
// backend in question. Get reports a missing entry as [ErrNotFound]; an entry
// that fails to decrypt or decode is reported as [ErrNotFound] joined with
// [ErrCorrupt], so callers that only care about presence treat corruption as a
// miss. Backend I/O failures wrap [ErrUnavailable]. Delete is idempotent.
//
// # What this package must NOT do
//
//   - Track session liveness or TTL (that belongs to the registry).
//   - Log or return secret values in errors.
package vault
