// Package middleware holds the HTTP adapters placed in front of the tool
// API.
//
// # Adapters
//
//   - [RequestID] assigns or keeps a UUID request id.
//   - [ClientIP] records the peer address for connect throttling.
//   - [Guard] verifies a bearer token and its tool scope.
//
// Each adapter only moves request data into the context the Engine reads
// (request id, client IP, principal). Session decisions stay in the Engine.
//
// # What this package must NOT do
//
//   - Call Engine methods.
//   - Trust X-Forwarded-For or similar headers.
package middleware
