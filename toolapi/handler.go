package toolapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goRemote "github.com/MrEthical07/goRemote"
	"github.com/MrEthical07/goRemote/jwt"
	"github.com/MrEthical07/goRemote/middleware"
)

// Engine is the subset of *goRemote.Engine the API calls.
type Engine interface {
	SSHConnect(ctx context.Context, p goRemote.SSHParams) (string, error)
	SSHExec(ctx context.Context, id, command string, timeout time.Duration) (goRemote.ExecResult, error)
	SSHDisconnect(ctx context.Context, id string) error
	SFTPList(ctx context.Context, id, dir string) ([]goRemote.FileEntry, error)
	SFTPDownload(ctx context.Context, id, remotePath string) ([]byte, error)
	SFTPUpload(ctx context.Context, id, remotePath string, data []byte) error
	TCPConnect(ctx context.Context, p goRemote.TCPParams) (string, error)
	TCPSend(ctx context.Context, id string, data []byte) error
	TCPRead(ctx context.Context, id string, timeout time.Duration) ([]byte, error)
	TCPDisconnect(ctx context.Context, id string) error
}

// Config controls the HTTP surface.
type Config struct {
	// Tokens enables bearer authentication. Nil leaves the API open, which
	// is only reasonable on a loopback listener.
	Tokens *jwt.Manager

	// MaxBodyBytes bounds request bodies. Uploads are base64, so allow
	// roughly 4/3 of the largest file. Zero means 48 MiB.
	MaxBodyBytes int64

	Logger *slog.Logger
}

const defaultMaxBodyBytes = 48 << 20

type api struct {
	engine  Engine
	logger  *slog.Logger
	maxBody int64
}

// New returns the tool API handler.
func New(engine Engine, cfg Config) http.Handler {
	a := &api{
		engine:  engine,
		logger:  cfg.Logger,
		maxBody: cfg.MaxBodyBytes,
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	if a.maxBody <= 0 {
		a.maxBody = defaultMaxBodyBytes
	}

	guard := func(scope string) func(http.Handler) http.Handler {
		if cfg.Tokens == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.Guard(cfg.Tokens, scope)
	}
	ssh, sftp, tcp := guard(jwt.ScopeSSH), guard(jwt.ScopeSFTP), guard(jwt.ScopeTCP)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/ssh/connect", ssh(http.HandlerFunc(a.sshConnect)))
	mux.Handle("POST /v1/ssh/exec", ssh(http.HandlerFunc(a.sshExec)))
	mux.Handle("POST /v1/ssh/disconnect", ssh(http.HandlerFunc(a.sshDisconnect)))
	mux.Handle("POST /v1/sftp/list", sftp(http.HandlerFunc(a.sftpList)))
	mux.Handle("POST /v1/sftp/download", sftp(http.HandlerFunc(a.sftpDownload)))
	mux.Handle("POST /v1/sftp/upload", sftp(http.HandlerFunc(a.sftpUpload)))
	mux.Handle("POST /v1/tcp/connect", tcp(http.HandlerFunc(a.tcpConnect)))
	mux.Handle("POST /v1/tcp/send", tcp(http.HandlerFunc(a.tcpSend)))
	mux.Handle("POST /v1/tcp/read", tcp(http.HandlerFunc(a.tcpRead)))
	mux.Handle("POST /v1/tcp/disconnect", tcp(http.HandlerFunc(a.tcpDisconnect)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, successResponse{Success: true})
	})

	return middleware.RequestID(a.accessLog(middleware.ClientIP(mux)))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		a.logger.Log(r.Context(), level, "tool call",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", goRemote.RequestIDFromContext(r.Context()),
		)
	})
}
