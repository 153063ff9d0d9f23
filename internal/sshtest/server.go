// Package sshtest runs an in-process SSH server with exec and SFTP support
// for transport and engine tests.
//
// Exec understands a tiny command language:
//
//	echo <text>    writes text and a newline to stdout, exits 0
//	err <text>     writes text and a newline to stderr, exits 0
//	exit <n>       exits with status n
//	sleep          blocks until the channel or server closes
//	signal         terminates with exit-signal KILL
//	nostatus       closes without sending an exit status
//
// Anything else writes to stderr and exits 127. SFTP serves the real file
// system, so tests should use absolute paths under t.TempDir().
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Server is a running test server.
type Server struct {
	Host string
	Port int

	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey

	mu    sync.Mutex
	conns map[*ssh.ServerConn]struct{}

	handshakes atomic.Int64
	wg         sync.WaitGroup
	quit       chan struct{}
	closeOnce  sync.Once
}

type settings struct {
	user          string
	password      string
	authorizedKey ssh.PublicKey
}

// Option configures Start.
type Option func(*settings)

// WithPassword accepts user/password logins. Keyboard-interactive logins
// answering every prompt with password are accepted too.
func WithPassword(user, password string) Option {
	return func(s *settings) {
		s.user = user
		s.password = password
	}
}

// WithAuthorizedKey accepts public key logins for key.
func WithAuthorizedKey(user string, key ssh.PublicKey) Option {
	return func(s *settings) {
		s.user = user
		s.authorizedKey = key
	}
}

// Start listens on 127.0.0.1 and serves until the test ends.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	cfg := settings{user: "tester", password: "secret"}
	for _, opt := range opts {
		opt(&cfg)
	}

	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshtest: host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("sshtest: host signer: %v", err)
	}

	config := &ssh.ServerConfig{}
	if cfg.password != "" {
		config.PasswordCallback = func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == cfg.user && string(password) == cfg.password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", meta.User())
		}
		config.KeyboardInteractiveCallback = func(meta ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := client(meta.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if meta.User() == cfg.user && len(answers) == 1 && answers[0] == cfg.password {
				return nil, nil
			}
			return nil, fmt.Errorf("keyboard-interactive rejected for %q", meta.User())
		}
	}
	if cfg.authorizedKey != nil {
		want := cfg.authorizedKey.Marshal()
		config.PublicKeyCallback = func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == cfg.user && string(key.Marshal()) == string(want) {
				return nil, nil
			}
			return nil, fmt.Errorf("public key rejected for %q", meta.User())
		}
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)

	s := &Server{
		Host:     "127.0.0.1",
		Port:     addr.Port,
		listener: listener,
		config:   config,
		hostKey:  signer.PublicKey(),
		conns:    make(map[*ssh.ServerConn]struct{}),
		quit:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey { return s.hostKey }

// Handshakes returns the number of successful logins so far.
func (s *Server) Handshakes() int64 { return s.handshakes.Load() }

// DropConnections closes every open connection while leaving the listener
// up, simulating a network blip.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*ssh.ServerConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Close stops the server and drops every connection.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.listener.Close()
		s.DropConnections()
		s.wg.Wait()
	})
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(netConn net.Conn) {
	defer s.wg.Done()
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		netConn.Close()
		return
	}
	s.handshakes.Add(1)

	s.mu.Lock()
	s.conns[sshConn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sshConn)
		s.mu.Unlock()
		sshConn.Close()
	}()

	go func() {
		for req := range reqs {
			// keepalive@openssh.com and anything else: a failure reply is
			// still a reply.
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}()

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "only session channels")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go s.serveSession(channel, requests)
	}
}

func (s *Server) serveSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer s.wg.Done()
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			s.runCommand(channel, requests, payload.Command)
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			server.Serve()
			server.Close()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) runCommand(channel ssh.Channel, requests <-chan *ssh.Request, command string) {
	verb, arg, _ := strings.Cut(command, " ")
	if verb == "sleep" {
		// The request stream ends when the client closes the channel.
		drained := make(chan struct{})
		go func() {
			ssh.DiscardRequests(requests)
			close(drained)
		}()
		select {
		case <-drained:
		case <-s.quit:
		}
		return
	}
	go ssh.DiscardRequests(requests)

	switch verb {
	case "echo":
		io.WriteString(channel, arg+"\n")
		sendExitStatus(channel, 0)
	case "err":
		io.WriteString(channel.Stderr(), arg+"\n")
		sendExitStatus(channel, 0)
	case "exit":
		code, err := strconv.Atoi(arg)
		if err != nil {
			code = 255
		}
		sendExitStatus(channel, uint32(code))
	case "signal":
		channel.SendRequest("exit-signal", false, ssh.Marshal(struct {
			Signal     string
			CoreDumped bool
			Error      string
			Lang       string
		}{Signal: "KILL"}))
	case "nostatus":
	default:
		io.WriteString(channel.Stderr(), "unknown command: "+verb+"\n")
		sendExitStatus(channel, 127)
	}
}

func sendExitStatus(channel ssh.Channel, code uint32) {
	channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{code}))
}
