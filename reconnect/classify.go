package reconnect

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/MrEthical07/goRemote/internal"
)

// Class is how a failed operation affects its handle.
type Class int

const (
	// ClassNone leaves the handle pooled: the connection is fine, the
	// operation itself failed.
	ClassNone Class = iota
	// ClassTimeout means the operation overran its deadline.
	ClassTimeout
	// ClassTransport means the connection is no longer usable.
	ClassTransport
)

// Classify inspects an operation error. Transports should wrap their errors
// with ErrTimeout or ErrTransport; the rest of the checks catch raw network
// errors that escape unwrapped.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, internal.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, internal.ErrTransport),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED):
		return ClassTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransport
	}
	return ClassNone
}
