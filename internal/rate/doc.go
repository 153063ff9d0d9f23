// Package rate throttles failed connection attempts with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - gct: - failed connects per target (kind/host:port/username)
//   - gci: - failed connects per client IP
//
// A successful connect clears the target counter but not the IP counter.
//
// # What this package must NOT do
//
//   - Decide what counts as a failure (the engine does).
//   - Be imported outside the goRemote module.
package rate
