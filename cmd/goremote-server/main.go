// Command goremote-server serves the goRemote tool API over HTTP.
//
// Usage:
//
//	goremote-server --config /etc/goremote/config.yaml
//	goremote-server --issue-token agent-1 --scopes ssh,sftp
//
// The config path may also come from GOREMOTE_CONFIG. Without a config the
// server keeps sessions in memory and listens on 127.0.0.1:8722 without
// authentication.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	goRemote "github.com/MrEthical07/goRemote"
	"github.com/MrEthical07/goRemote/metrics/export/prometheus"
	"github.com/MrEthical07/goRemote/toolapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "goremote-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", os.Getenv("GOREMOTE_CONFIG"), "path to the YAML config file (env GOREMOTE_CONFIG)")
		listen     = pflag.String("listen", "", "listen address, overrides server.listen")
		logLevel   = pflag.String("log-level", "info", "log level: debug, info, warn, error")
		allowRisky = pflag.Bool("allow-risky-config", false, "start even when config lint reports HIGH findings")
		issueFor   = pflag.String("issue-token", "", "print a bearer token for this principal and exit")
		scopes     = pflag.StringSlice("scopes", []string{"ssh", "sftp", "tcp"}, "scopes for --issue-token")
	)
	pflag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", *logLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, srv, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		srv.Listen = *listen
	}

	tokens, err := srv.Auth.tokenManager()
	if err != nil {
		return err
	}

	if *issueFor != "" {
		if tokens == nil {
			return errors.New("--issue-token needs server.auth.enabled")
		}
		token, err := tokens.Issue(*issueFor, *scopes...)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	findings := cfg.Lint()
	for _, w := range findings {
		logger.Warn("config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}
	if err := findings.AsError(goRemote.LintHigh); err != nil && !*allowRisky {
		return err
	}
	if tokens == nil && !isLoopback(srv.Listen) {
		logger.Warn("tool API is unauthenticated on a non-loopback address", "listen", srv.Listen)
	}

	b := goRemote.New().WithConfig(cfg).WithLogger(logger)
	if srv.RedisAddr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{srv.RedisAddr}})
		defer rdb.Close()
		b = b.WithRedis(rdb)
	}
	if cfg.Audit.Enabled {
		b = b.WithAuditSink(goRemote.NewJSONWriterSink(os.Stdout))
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("engine close", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/", toolapi.New(engine, toolapi.Config{
		Tokens:       tokens,
		MaxBodyBytes: srv.MaxBodyBytes,
		Logger:       logger,
	}))
	if cfg.Metrics.Enabled && srv.MetricsPath != "" {
		mux.Handle("GET "+srv.MetricsPath, prometheus.New(engine).Handler())
	}

	httpServer := &http.Server{
		Addr:              srv.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if srv.SweepInterval > 0 {
		go sweep(ctx, engine, srv.SweepInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Listen, "auth", tokens != nil)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	return nil
}

// sweep evicts idle sessions so their sealed credentials do not stay at
// rest until the next access.
func sweep(ctx context.Context, engine *goRemote.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.EvictExpired(ctx)
		}
	}
}

func isLoopback(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	return host == "localhost" || strings.HasPrefix(host, "127.") || host == "::1"
}
