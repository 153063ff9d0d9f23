// Package audit implements async event dispatching for session lifecycle operations.
//
// # Components
//
//   - [Sink] - interface for event consumers (channel, JSON writer, func, no-op).
//   - [Dispatcher] - buffered async relay with drop-if-full / block-if-full semantics.
//     Drops and sink panics are counted and logged with kind, session_id and request_id.
//   - [Event] - audit record with id, timestamp, type, transport kind, short session id, target, IP, metadata.
//   - [Redact] - masks metadata whose key names a password, passphrase, private key, secret or token.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goRemote or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
