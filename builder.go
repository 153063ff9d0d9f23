package goRemote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/goRemote/internal/audit"
	"github.com/MrEthical07/goRemote/internal/clock"
	"github.com/MrEthical07/goRemote/internal/rate"
	"github.com/MrEthical07/goRemote/reconnect"
	"github.com/MrEthical07/goRemote/registry"
	"github.com/MrEthical07/goRemote/transport/sshclient"
	"github.com/MrEthical07/goRemote/transport/tcpclient"
	"github.com/MrEthical07/goRemote/vault"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger
	clock  Clock
	sealer *vault.Sealer

	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]: in-memory vault, 15 minute session TTL,
// metrics on, audit and throttling off.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// The client backs the redis vault backend and the failed-connect throttle.
// It is not closed by [Engine.Close].
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Nil keeps logging disabled.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock used for session expiry.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithSealer supplies the age identity directly instead of loading
// Config.Vault.IdentityFile.
func (b *Builder) WithSealer(sealer *vault.Sealer) *Builder {
	b.sealer = sealer
	return b
}

// WithAuditSink does not enable auditing by itself; set Config.Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the operation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when configuration validation, sealer loading, or
// vault backend setup fail. With Vault.PurgeOnStart it deletes every entry
// left in the engine's namespaces by a previous process before returning.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		if cfg.Vault.Backend == BackendRedis {
			return nil, errors.New("redis vault backend requires redis client")
		}
		if cfg.Throttle.Enabled {
			return nil, errors.New("connect throttle requires redis client")
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var clk Clock = clock.Real()
	if b.clock != nil {
		clk = b.clock
	}

	sealer, err := b.loadSealer(cfg.Vault)
	if err != nil {
		return nil, err
	}

	vaults, err := openVaults(cfg.Vault, b.redis, sealer, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Vault.PurgeOnStart {
		if err := vaults.purge(context.Background(), logger); err != nil {
			vaults.close()
			return nil, err
		}
	}

	e := &Engine{
		config:  cfg,
		logger:  logger,
		clock:   clk,
		metrics: NewMetrics(cfg.Metrics),
		sshOpts: sshclient.Options{
			DialTimeout:      cfg.SSH.DialTimeout,
			KnownHostsFile:   cfg.SSH.KnownHostsFile,
			KeepAliveTimeout: cfg.SSH.KeepAliveTimeout,
			MaxDownloadBytes: cfg.SSH.MaxDownloadBytes,
			Logger:           logger.With("kind", string(KindSSH)),
		},
		closeVaults: vaults.close,
	}

	if cfg.Audit.Enabled {
		e.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger.With("component", "audit"),
		}, b.auditSink)
	}

	if cfg.Throttle.Enabled {
		e.throttle = rate.New(b.redis, rate.Config{
			EnableIPThrottle:  cfg.Throttle.EnableIPThrottle,
			MaxFailedConnects: cfg.Throttle.MaxFailedConnects,
			Cooldown:          cfg.Throttle.Cooldown,
		})
	}

	clientOpts := []reconnect.Option{
		reconnect.WithLogger(logger),
		reconnect.WithObserver(reconnect.ObserverFunc(e.observe)),
		reconnect.WithShards(cfg.Session.Shards),
		reconnect.WithRegistryOptions(
			registry.WithTTL(cfg.Session.TTL),
			registry.WithClock(clk),
		),
	}
	e.ssh = reconnect.New[*sshclient.Conn](string(KindSSH), vaults.ssh, e.dialSSH, clientOpts...)
	e.tcp = reconnect.New[*tcpclient.Conn](string(KindTCP), vaults.tcp, dialTCP, clientOpts...)

	b.built = true
	logger.Info("engine ready",
		"vault_backend", cfg.Vault.Backend,
		"namespace", cfg.Vault.Namespace,
		"session_ttl", cfg.Session.TTL,
		"throttle", cfg.Throttle.Enabled,
	)
	return e, nil
}

func (b *Builder) loadSealer(cfg VaultConfig) (*vault.Sealer, error) {
	if b.sealer != nil {
		return b.sealer, nil
	}
	if cfg.IdentityFile != "" {
		sealer, err := vault.LoadOrCreateSealer(cfg.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("loading vault identity: %w", err)
		}
		return sealer, nil
	}
	sealer, err := vault.GenerateSealer()
	if err != nil {
		return nil, fmt.Errorf("generating vault identity: %w", err)
	}
	return sealer, nil
}

func (e *Engine) dialSSH(ctx context.Context, params vault.Params) (*sshclient.Conn, error) {
	p, err := sshclient.FromVault(params)
	if err != nil {
		return nil, err
	}
	return sshclient.Dial(ctx, p, e.sshOpts)
}

func dialTCP(ctx context.Context, params vault.Params) (*tcpclient.Conn, error) {
	p, err := tcpclient.FromVault(params)
	if err != nil {
		return nil, err
	}
	return tcpclient.Dial(ctx, p)
}
