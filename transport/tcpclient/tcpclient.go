// Package tcpclient is the raw TCP transport: connect once, then send and
// read opaque bytes on the same socket.
package tcpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goRemote/internal"
	"github.com/MrEthical07/goRemote/vault"
)

const (
	// DefaultTimeout bounds connect, and is the default write and read wait.
	DefaultTimeout = 10 * time.Second
	// MaxRead is the most one Read returns.
	MaxRead = 64 << 10
)

// Params identifies a TCP endpoint.
type Params struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Validate fills defaults and checks required fields.
func (p *Params) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("%w: host is required", internal.ErrValidation)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", internal.ErrValidation, p.Port)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", internal.ErrValidation)
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	return nil
}

// Addr returns host:port.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// ToVault flattens p for storage.
func (p Params) ToVault() vault.Params {
	return vault.Params{
		"host":      p.Host,
		"port":      int64(p.Port),
		"timeoutMs": p.Timeout.Milliseconds(),
	}
}

// FromVault rebuilds Params from a stored map and validates them.
func FromVault(v vault.Params) (Params, error) {
	port, _ := v.Int("port")
	timeoutMs, _ := v.Int("timeoutMs")
	p := Params{
		Host:    v.String("host"),
		Port:    int(port),
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Conn is one TCP socket. Sends and reads are each serialized; a send and
// a read may run concurrently.
type Conn struct {
	conn    net.Conn
	timeout time.Duration

	writeMu sync.Mutex
	readMu  sync.Mutex

	broken atomic.Bool
	closed atomic.Bool
}

// Dial connects to p.Addr() within p.Timeout.
func Dial(ctx context.Context, p Params) (*Conn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: connecting to %s: %v", internal.ErrTimeout, p.Addr(), err)
		}
		return nil, fmt.Errorf("%w: connecting to %s: %v", internal.ErrTransport, p.Addr(), err)
	}
	return &Conn{conn: conn, timeout: p.Timeout}, nil
}

// Alive reports whether the socket is open and no send or read has failed
// on it. A peer that closed quietly is only noticed by the next Read.
func (c *Conn) Alive() bool {
	return !c.closed.Load() && !c.broken.Load()
}

// Close closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// Send writes all of data. The write deadline is ctx's deadline or the
// connect timeout, whichever is sooner.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(c.deadline(ctx, c.timeout))
	stop := context.AfterFunc(ctx, func() { c.conn.SetWriteDeadline(time.Unix(1, 0)) })
	defer stop()

	if _, err := c.conn.Write(data); err != nil {
		return c.fail("send", err)
	}
	return nil
}

// Read waits up to timeout (zero means the connect timeout) for data and
// returns at most MaxRead bytes. A timeout with nothing received returns an
// empty slice and no error.
func (c *Conn) Read(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()

	c.conn.SetReadDeadline(c.deadline(ctx, timeout))
	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Unix(1, 0)) })
	defer stop()

	buf := make([]byte, MaxRead)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return []byte{}, nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() == nil {
		return []byte{}, nil
	}
	if errors.Is(err, io.EOF) {
		c.broken.Store(true)
		return nil, fmt.Errorf("%w: peer closed connection", internal.ErrTransport)
	}
	return nil, c.fail("read", err)
}

func (c *Conn) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		d = ctxDeadline
	}
	return d
}

func (c *Conn) fail(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", internal.ErrTimeout, op, err)
	}
	c.broken.Store(true)
	return fmt.Errorf("%w: %s: %v", internal.ErrTransport, op, err)
}
