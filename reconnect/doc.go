// Package reconnect turns stateless calls into uses of a stateful
// connection.
//
// A Client owns one vault namespace, a Registry and a Pool for one kind of
// transport. Connect dials, pools the handle and vaults the parameters.
// Use runs an operation on the session's handle, transparently re-dialing
// from the vaulted parameters when the pooled handle is gone or dead.
// Callers cannot tell a pooled call from a rebuilt one except through the
// Observer.
//
// # Failure model
//
//   - Unknown or expired session: ErrSessionUnknownOrExpired; any pooled
//     handle is closed.
//   - Operation timeout: ErrTimeout; the handle is force-closed and dropped
//     from the pool, the session stays registered.
//   - Connection failure during an operation: ErrTransport; the handle is
//     dropped so the next Use reconnects. The operation itself is never
//     retried, since it may have taken effect remotely.
//   - Reconnect failure: ErrTransport; the session stays registered.
package reconnect
