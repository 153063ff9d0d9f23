// Package sshclient is the SSH and SFTP transport: one Conn per logged-in
// SSH connection, with command execution and file transfer on top.
package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/MrEthical07/goRemote/internal"
)

// Conn is an authenticated SSH connection. Methods are safe for concurrent
// use; each Exec opens its own channel and SFTP shares one subsystem.
type Conn struct {
	client *ssh.Client
	addr   string
	opts   Options
	logger *slog.Logger

	closed atomic.Bool

	sftpMu sync.Mutex
	sftp   *sftp.Client
}

// ExecResult is the outcome of a remote command. ExitCode is -1 when the
// command died from a signal or the server sent no exit status.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Dial connects and authenticates. ctx cancellation aborts the handshake.
func Dial(ctx context.Context, p Params, opts Options) (*Conn, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	config, err := clientConfig(p, opts)
	if err != nil {
		return nil, err
	}

	addr := p.Addr()
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, dialError(ctx, addr, err)
	}

	// The handshake has no context of its own: bound it with a deadline and
	// tear the socket down if ctx ends first.
	netConn.SetDeadline(time.Now().Add(opts.DialTimeout))
	stop := context.AfterFunc(ctx, func() { netConn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	stop()
	if err != nil {
		netConn.Close()
		return nil, dialError(ctx, addr, err)
	}
	netConn.SetDeadline(time.Time{})

	c := &Conn{
		client: ssh.NewClient(sshConn, chans, reqs),
		addr:   addr,
		opts:   opts,
		logger: opts.Logger.With("addr", addr),
	}
	go func() {
		c.client.Wait()
		c.closed.Store(true)
	}()
	c.logger.Debug("ssh connected", "user", p.Username)
	return c, nil
}

func clientConfig(p Params, opts Options) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if p.PrivateKey != "" {
		signer, err := parseKey(p.PrivateKey, p.Password)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if p.Password != "" {
		password := p.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts: %w", err)
		}
		hostKeys = cb
	}

	return &ssh.ClientConfig{
		User:            p.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         opts.DialTimeout,
	}, nil
}

func parseKey(pemKey, passphrase string) (ssh.Signer, error) {
	signer, err := ssh.ParsePrivateKey([]byte(pemKey))
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: private key: %v", internal.ErrValidation, err)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: private key is encrypted and no password was given", internal.ErrValidation)
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(pemKey), []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", internal.ErrValidation, err)
	}
	return signer, nil
}

func dialError(ctx context.Context, addr string, err error) error {
	var netErr net.Error
	if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: connecting to %s: %v", internal.ErrTimeout, addr, err)
	}
	return fmt.Errorf("%w: connecting to %s: %v", internal.ErrTransport, addr, err)
}

// Alive sends an OpenSSH keepalive and waits for any reply.
func (c *Conn) Alive() bool {
	if c.closed.Load() {
		return false
	}
	reply := make(chan error, 1)
	go func() {
		_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
		reply <- err
	}()
	timer := time.NewTimer(c.opts.KeepAliveTimeout)
	defer timer.Stop()
	select {
	case err := <-reply:
		return err == nil
	case <-timer.C:
		return false
	}
}

// Close closes the SFTP subsystem, if open, and the connection.
func (c *Conn) Close() error {
	c.sftpMu.Lock()
	if c.sftp != nil {
		c.sftp.Close()
		c.sftp = nil
	}
	c.sftpMu.Unlock()

	err := c.client.Close()
	if c.closed.Swap(true) {
		return nil
	}
	c.logger.Debug("ssh closed")
	return err
}

// Exec runs command in a new session and waits for it to finish or for
// ctx to end. On ctx expiry the command is sent SIGKILL and ErrTimeout is
// returned; the connection should then be discarded.
func (c *Conn) Exec(ctx context.Context, command string) (ExecResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: opening session: %v", internal.ErrTransport, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err := <-done:
		result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
		code, err := exitCode(err)
		if err != nil {
			return ExecResult{}, err
		}
		result.ExitCode = code
		return result, nil
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return ExecResult{}, fmt.Errorf("%w: command: %v", internal.ErrTimeout, ctx.Err())
	}
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Signal() != "" {
			return -1, nil
		}
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return -1, nil
	}
	return 0, fmt.Errorf("%w: running command: %v", internal.ErrTransport, err)
}

func (c *Conn) sftpClient() (*sftp.Client, error) {
	c.sftpMu.Lock()
	defer c.sftpMu.Unlock()
	if c.sftp != nil {
		return c.sftp, nil
	}
	client, err := sftp.NewClient(c.client)
	if err != nil {
		return nil, fmt.Errorf("%w: starting sftp: %v", internal.ErrTransport, err)
	}
	c.sftp = client
	return client, nil
}
