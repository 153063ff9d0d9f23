package goRemote

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goRemote/internal/audit"
	"github.com/MrEthical07/goRemote/transport/sshclient"
	"github.com/MrEthical07/goRemote/transport/tcpclient"
)

// Kind names a transport. Every kind has its own vault namespace, registry
// and pool.
type Kind string

const (
	KindSSH Kind = "ssh"
	KindTCP Kind = "tcp"
)

// SSHParams are the parameters of an SSH session. Port defaults to 22.
type SSHParams = sshclient.Params

// TCPParams are the parameters of a raw TCP session. Timeout defaults to
// the engine's TCP connect timeout.
type TCPParams = tcpclient.Params

// ExecResult is the outcome of one remote command.
type ExecResult = sshclient.ExecResult

// FileEntry is one row of an SFTP directory listing.
type FileEntry = sshclient.Entry

// Clock supplies the time used for session expiry.
type Clock interface {
	Now() time.Time
}

// AuditEvent is one audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a sink with the given channel buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
