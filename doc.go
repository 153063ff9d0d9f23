// Package goRemote keeps stateful remote connections (SSH, SFTP, raw TCP)
// behind stateless tool calls.
//
// A connect call dials the target, seals the connection parameters into a
// vault and returns an opaque session id. Later calls name only the id: the
// Engine reuses the pooled connection when it is alive and rebuilds it from
// the vaulted parameters when it is not. Sessions idle for longer than the
// configured TTL are evicted lazily, on the next access or sweep.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRemote is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Vaulting (vault/), expiry (index/, registry/), pooling
// (pool/) and the reconnect protocol (reconnect/) are separate packages that
// know nothing about concrete transports; transports live under transport/.
//
// # What this package must NOT do
//
//   - Log or audit connection secrets (passwords, private keys) or full
//     session ids.
//   - Retry an operation after a transport failure; it may have taken
//     effect remotely.
//   - Run background goroutines other than the audit dispatcher.
package goRemote
