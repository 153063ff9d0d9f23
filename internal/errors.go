package internal

import "errors"

// Error taxonomy shared by the transports, the reconnecting client and the
// public package. The root package re-exports every value.
var (
	ErrValidation              = errors.New("invalid parameters")
	ErrSessionUnknownOrExpired = errors.New("session unknown or expired")
	ErrTransport               = errors.New("transport failure")
	ErrTimeout                 = errors.New("operation timed out")
	ErrConnectThrottled        = errors.New("connect attempts throttled")
)
