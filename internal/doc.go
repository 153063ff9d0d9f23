// Package internal holds helpers private to goRemote: the error taxonomy
// shared by every layer, session id generation, and log-safe id
// shortening.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - clock: injectable wall clock with a fake for TTL tests
//   - rate: Redis-backed failed-connect throttle
//   - shard: shard count and key hashing for the pool and index
//   - sshtest: in-process SSH and SFTP server for tests
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRemote API.
//   - Log full session ids.
package internal
