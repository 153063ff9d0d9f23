package sshclient

import (
	"log/slog"
	"time"
)

const (
	DefaultDialTimeout      = 15 * time.Second
	DefaultKeepAliveTimeout = 5 * time.Second
	DefaultMaxDownloadBytes = 32 << 20
)

// Options controls how connections are established. The zero value is
// usable.
type Options struct {
	// DialTimeout bounds the TCP connect plus SSH handshake.
	DialTimeout time.Duration

	// KnownHostsFile, when set, verifies host keys against an OpenSSH
	// known_hosts file. When empty any host key is accepted, which suits
	// LAN appliances whose keys are never distributed.
	KnownHostsFile string

	// KeepAliveTimeout bounds the Alive probe.
	KeepAliveTimeout time.Duration

	// MaxDownloadBytes caps Download. Larger files are rejected.
	MaxDownloadBytes int64

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.KeepAliveTimeout <= 0 {
		o.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if o.MaxDownloadBytes <= 0 {
		o.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
