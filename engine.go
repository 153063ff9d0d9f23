package goRemote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goRemote/internal"
	internalaudit "github.com/MrEthical07/goRemote/internal/audit"
	"github.com/MrEthical07/goRemote/internal/rate"
	"github.com/MrEthical07/goRemote/reconnect"
	"github.com/MrEthical07/goRemote/transport/sshclient"
	"github.com/MrEthical07/goRemote/transport/tcpclient"
)

// Engine runs tool operations against vaulted remote sessions.
//
// Engine instances are created by [Builder.Build] and are safe for
// concurrent use until [Engine.Close].
type Engine struct {
	config Config
	logger *slog.Logger
	clock  Clock

	ssh     *reconnect.Client[*sshclient.Conn]
	tcp     *reconnect.Client[*tcpclient.Conn]
	sshOpts sshclient.Options

	throttle    *rate.Limiter
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	closeVaults func() error

	closed atomic.Bool
}

// Close describes the close operation and its observable behavior.
//
// Close disconnects every session of every transport, flushes the audit
// dispatcher and releases the vault backend. Later calls on the Engine
// return ErrEngineNotReady. Close is idempotent.
func (e *Engine) Close() error {
	if e == nil || e.closed.Swap(true) {
		return nil
	}

	ctx := context.Background()
	e.ssh.DisconnectAll(ctx)
	e.tcp.DisconnectAll(ctx)
	e.emitAudit(ctx, auditEventDisconnectAll, "", "", "", nil, nil)

	if e.audit != nil {
		e.audit.Close()
	}
	if e.closeVaults != nil {
		if err := e.closeVaults(); err != nil {
			return fmt.Errorf("closing vault: %w", err)
		}
	}
	e.logger.Info("engine closed")
	return nil
}

// AuditDropped returns the number of audit events dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns empty maps when metrics are disabled.
// MetricsSnapshot does not mutate shared global state and can be used concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionCount returns the number of registered sessions of kind,
// including ones that have expired but were not swept yet.
func (e *Engine) SessionCount(kind Kind) int {
	if e == nil {
		return 0
	}
	switch kind {
	case KindSSH:
		return e.ssh.Registry().Len()
	case KindTCP:
		return e.tcp.Registry().Len()
	default:
		return 0
	}
}

// EvictExpired sweeps every transport for sessions idle past the TTL and
// closes their connections. It returns the number of sessions evicted.
// Expiry is otherwise only observed when a session is used.
func (e *Engine) EvictExpired(ctx context.Context) int {
	if e.ready() != nil {
		return 0
	}
	n := len(e.ssh.EvictExpired(ctx)) + len(e.tcp.EvictExpired(ctx))
	if n > 0 {
		e.logger.Info("expired sessions evicted", "count", n)
	}
	return n
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// observe maps reconnect events to counters.
func (e *Engine) observe(kind string, event reconnect.Event) {
	switch event {
	case reconnect.EventConnect:
		if Kind(kind) == KindSSH {
			e.metricInc(MetricSSHConnectSuccess)
		} else {
			e.metricInc(MetricTCPConnectSuccess)
		}
	case reconnect.EventConnectFailed:
		if Kind(kind) == KindSSH {
			e.metricInc(MetricSSHConnectFailure)
		} else {
			e.metricInc(MetricTCPConnectFailure)
		}
	case reconnect.EventPoolHit:
		e.metricInc(MetricPoolHit)
	case reconnect.EventReconnect:
		e.metricInc(MetricReconnect)
	case reconnect.EventReconnectFailed:
		e.metricInc(MetricReconnectFailure)
	case reconnect.EventTimeout:
		e.metricInc(MetricOperationTimeout)
	case reconnect.EventTransportError:
		e.metricInc(MetricTransportError)
	case reconnect.EventExpired:
		e.metricInc(MetricSessionExpired)
	case reconnect.EventDisconnect:
		e.metricInc(MetricDisconnect)
	}
}

// finish records the outcome of one session operation.
func (e *Engine) finish(ctx context.Context, kind Kind, op, id string, start time.Time, err error) {
	if err == nil {
		e.metrics.Observe(MetricOperationLatency, time.Since(start))
		return
	}
	if errors.Is(err, ErrSessionUnknownOrExpired) {
		e.metricInc(MetricSessionUnknown)
	}
	e.logger.Debug("operation failed",
		"kind", string(kind),
		"op", op,
		"session_id", internal.ShortID(id),
		"request_id", RequestIDFromContext(ctx),
		"error", err,
	)
}

/*
====================================
CONNECT THROTTLE
====================================
*/

func throttleTarget(kind Kind, addr, username string) string {
	return string(kind) + "/" + addr + "/" + username
}

// checkThrottle fails open when Redis is unreachable: losing the throttle
// must not take remote access down with it.
func (e *Engine) checkThrottle(ctx context.Context, kind Kind, target string) error {
	if e.throttle == nil {
		return nil
	}
	err := e.throttle.CheckConnect(ctx, target, clientIPFromContext(ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.metricInc(MetricConnectThrottled)
		e.emitAudit(ctx, auditEventConnectThrottled, kind, "", target, ErrConnectThrottled, nil)
		return fmt.Errorf("%w: %s", ErrConnectThrottled, target)
	default:
		e.logger.Warn("connect throttle unavailable", "error", err)
		return nil
	}
}

func (e *Engine) recordConnect(ctx context.Context, target string, connectErr error) {
	if e.throttle == nil {
		return
	}
	var err error
	switch {
	case connectErr == nil:
		err = e.throttle.Reset(ctx, target)
	case errors.Is(connectErr, ErrValidation):
		return
	default:
		err = e.throttle.RecordFailure(ctx, target, clientIPFromContext(ctx))
		if errors.Is(err, rate.ErrRateLimited) {
			err = nil
		}
	}
	if err != nil {
		e.logger.Warn("connect throttle update failed", "error", err)
	}
}

/*
====================================
SSH
====================================
*/

// SSHConnect describes the sshconnect operation and its observable behavior.
//
// SSHConnect dials and authenticates, seals p into the vault and returns a
// new session id. SSHConnect may return ErrValidation, ErrTransport,
// ErrTimeout or ErrConnectThrottled; nothing is registered on failure.
func (e *Engine) SSHConnect(ctx context.Context, p SSHParams) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	target := throttleTarget(KindSSH, p.Addr(), p.Username)
	if err := e.checkThrottle(ctx, KindSSH, target); err != nil {
		return "", err
	}

	id, err := e.ssh.Connect(ctx, p.ToVault())
	e.recordConnect(ctx, target, err)
	e.emitAudit(ctx, auditEventSSHConnect, KindSSH, id, p.Addr(), err, func() map[string]string {
		return map[string]string{"username": p.Username, "auth": sshAuthMethod(p)}
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func sshAuthMethod(p SSHParams) string {
	switch {
	case p.PrivateKey != "" && p.Password != "":
		return "publickey+password"
	case p.PrivateKey != "":
		return "publickey"
	default:
		return "password"
	}
}

// SSHExec runs command on the session, reconnecting first when the pooled
// connection is gone. A zero timeout uses Config.SSH.ExecTimeout. A
// non-zero exit code is a result, not an error. On ErrTimeout the
// connection is closed but the session stays usable.
func (e *Engine) SSHExec(ctx context.Context, id, command string, timeout time.Duration) (ExecResult, error) {
	if err := e.ready(); err != nil {
		return ExecResult{}, err
	}
	if command == "" {
		return ExecResult{}, fmt.Errorf("%w: command is required", ErrValidation)
	}
	if timeout <= 0 {
		timeout = e.config.SSH.ExecTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result ExecResult
	err := e.ssh.Use(ctx, id, func(ctx context.Context, c *sshclient.Conn) error {
		var err error
		result, err = c.Exec(ctx, command)
		return err
	})
	e.finish(ctx, KindSSH, "exec", id, start, err)
	e.emitAudit(ctx, auditEventSSHExec, KindSSH, id, "", err, func() map[string]string {
		if err != nil {
			return nil
		}
		return map[string]string{"exit_code": strconv.Itoa(result.ExitCode)}
	})
	if err != nil {
		return ExecResult{}, err
	}
	return result, nil
}

// SSHDisconnect closes the session's connection and deletes its vault
// entry. Disconnecting an unknown or already expired session succeeds.
func (e *Engine) SSHDisconnect(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	err := e.ssh.Disconnect(ctx, id)
	e.emitAudit(ctx, auditEventSSHDisconnect, KindSSH, id, "", err, nil)
	return err
}

// SFTPList returns the entries of dir, without "." and "..".
func (e *Engine) SFTPList(ctx context.Context, id, dir string) ([]FileEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: path is required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SSH.SFTPTimeout)
	defer cancel()

	start := time.Now()
	var entries []FileEntry
	err := e.ssh.Use(ctx, id, func(ctx context.Context, c *sshclient.Conn) error {
		var err error
		entries, err = c.ListDir(ctx, dir)
		return err
	})
	e.finish(ctx, KindSSH, "sftp_list", id, start, err)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// SFTPDownload returns the contents of remotePath. Files larger than
// Config.SSH.MaxDownloadBytes are rejected with ErrValidation.
func (e *Engine) SFTPDownload(ctx context.Context, id, remotePath string) ([]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if remotePath == "" {
		return nil, fmt.Errorf("%w: remotePath is required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SSH.SFTPTimeout)
	defer cancel()

	start := time.Now()
	var data []byte
	err := e.ssh.Use(ctx, id, func(ctx context.Context, c *sshclient.Conn) error {
		var err error
		data, err = c.Download(ctx, remotePath)
		return err
	})
	e.finish(ctx, KindSSH, "sftp_download", id, start, err)
	e.emitAudit(ctx, auditEventSFTPDownload, KindSSH, id, "", err, func() map[string]string {
		return map[string]string{"bytes": strconv.Itoa(len(data))}
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SFTPUpload writes data to remotePath, replacing any existing file.
func (e *Engine) SFTPUpload(ctx context.Context, id, remotePath string, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if remotePath == "" {
		return fmt.Errorf("%w: remotePath is required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SSH.SFTPTimeout)
	defer cancel()

	start := time.Now()
	err := e.ssh.Use(ctx, id, func(ctx context.Context, c *sshclient.Conn) error {
		return c.Upload(ctx, remotePath, data)
	})
	e.finish(ctx, KindSSH, "sftp_upload", id, start, err)
	e.emitAudit(ctx, auditEventSFTPUpload, KindSSH, id, "", err, func() map[string]string {
		return map[string]string{"bytes": strconv.Itoa(len(data))}
	})
	return err
}

/*
====================================
TCP
====================================
*/

// TCPConnect opens a socket to p and returns a new session id. A zero
// p.Timeout uses Config.TCP.ConnectTimeout; the timeout also bounds every
// later send.
func (e *Engine) TCPConnect(ctx context.Context, p TCPParams) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if p.Timeout == 0 {
		p.Timeout = e.config.TCP.ConnectTimeout
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	target := throttleTarget(KindTCP, p.Addr(), "")
	if err := e.checkThrottle(ctx, KindTCP, target); err != nil {
		return "", err
	}

	id, err := e.tcp.Connect(ctx, p.ToVault())
	e.recordConnect(ctx, target, err)
	e.emitAudit(ctx, auditEventTCPConnect, KindTCP, id, p.Addr(), err, nil)
	if err != nil {
		return "", err
	}
	return id, nil
}

// TCPSend writes data on the session's socket. A socket that died since
// the last call is reopened first; data is never resent after a failure.
func (e *Engine) TCPSend(ctx context.Context, id string, data []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: data is required", ErrValidation)
	}

	start := time.Now()
	err := e.tcp.Use(ctx, id, func(ctx context.Context, c *tcpclient.Conn) error {
		return c.Send(ctx, data)
	})
	e.finish(ctx, KindTCP, "send", id, start, err)
	return err
}

// TCPRead waits up to timeout for data and returns at most 64 KiB. A zero
// timeout uses Config.TCP.ReadTimeout. Nothing arriving in time is not an
// error: the result is empty. A peer that closed the socket yields
// ErrTransport.
func (e *Engine) TCPRead(ctx context.Context, id string, timeout time.Duration) ([]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = e.config.TCP.ReadTimeout
	}

	start := time.Now()
	var data []byte
	err := e.tcp.Use(ctx, id, func(ctx context.Context, c *tcpclient.Conn) error {
		var err error
		data, err = c.Read(ctx, timeout)
		return err
	})
	e.finish(ctx, KindTCP, "read", id, start, err)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// TCPDisconnect closes the socket and forgets the session. Disconnecting an
// unknown session succeeds.
func (e *Engine) TCPDisconnect(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	err := e.tcp.Disconnect(ctx, id)
	e.emitAudit(ctx, auditEventTCPDisconnect, KindTCP, id, "", err, nil)
	return err
}
