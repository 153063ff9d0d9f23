package goRemote

import (
	"errors"

	"github.com/MrEthical07/goRemote/internal"
)

var (
	// ErrValidation is returned when tool parameters are missing or malformed.
	ErrValidation = internal.ErrValidation
	// ErrSessionUnknownOrExpired is returned for ids that were never issued,
	// were disconnected, or idled past the session TTL.
	ErrSessionUnknownOrExpired = internal.ErrSessionUnknownOrExpired
	// ErrTransport is returned when a connection could not be opened or failed
	// mid-operation. The session survives; the next call reconnects.
	ErrTransport = internal.ErrTransport
	// ErrTimeout is returned when an operation ran past its deadline. The
	// connection is closed, the session survives.
	ErrTimeout = internal.ErrTimeout
	// ErrConnectThrottled is returned when too many connects to one target failed recently.
	ErrConnectThrottled = internal.ErrConnectThrottled

	// ErrEngineNotReady is returned by methods called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrBuilderUsed is returned by a second call to Build.
	ErrBuilderUsed = errors.New("builder already used")
)
