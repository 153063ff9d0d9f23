package goRemote

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine configuration. The zero value is not valid; start
// from [DefaultConfig] or [LoadConfig].
type Config struct {
	Vault    VaultConfig    `yaml:"vault"`
	Session  SessionConfig  `yaml:"session"`
	SSH      SSHConfig      `yaml:"ssh"`
	TCP      TCPConfig      `yaml:"tcp"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

/*
====================================
VAULT CONFIG
====================================
*/

// Vault backend names accepted by VaultConfig.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// VaultConfig selects where sealed connection parameters are kept.
type VaultConfig struct {
	// Backend is one of memory, file, redis, sqlite.
	Backend string `yaml:"backend"`

	// Namespace prefixes the per-transport vault namespaces
	// (<namespace>-ssh, <namespace>-tcp). Two processes sharing a backend
	// must use different namespaces.
	Namespace string `yaml:"namespace"`

	// IdentityFile holds the age X25519 identity used to seal entries. It
	// is created on first start. When empty an ephemeral identity is
	// generated, which is only useful with PurgeOnStart.
	IdentityFile string `yaml:"identity_file"`

	// Dir is the file backend root.
	Dir string `yaml:"dir"`

	// RedisPrefix prefixes every Redis key written by the redis backend.
	RedisPrefix string `yaml:"redis_prefix"`

	// SQLitePath is the sqlite backend database file.
	SQLitePath     string `yaml:"sqlite_path"`
	SQLitePoolSize int    `yaml:"sqlite_pool_size"`

	// PurgeOnStart drops every entry of the engine's namespaces at Build.
	// Sessions never survive a restart, so leftovers are unreachable.
	PurgeOnStart bool `yaml:"purge_on_start"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session expiry and sharding.
type SessionConfig struct {
	// TTL is the idle time after which a session is evicted on next access.
	TTL time.Duration `yaml:"ttl"`

	// Shards is rounded up to a power of two.
	Shards int `yaml:"shards"`
}

/*
====================================
TRANSPORT CONFIG
====================================
*/

// SSHConfig configures the SSH and SFTP transport.
type SSHConfig struct {
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	KnownHostsFile   string        `yaml:"known_hosts_file"`
	KeepAliveTimeout time.Duration `yaml:"keepalive_timeout"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes"`

	// ExecTimeout applies to SSHExec calls that do not pass a timeout.
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	// SFTPTimeout bounds each SFTP list, download, or upload.
	SFTPTimeout time.Duration `yaml:"sftp_timeout"`
}

// TCPConfig configures the raw TCP transport.
type TCPConfig struct {
	// ConnectTimeout applies when TCPConnect is called without a timeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout applies to TCPRead calls that do not pass a timeout.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig limits repeated failed connects to one target. It needs a
// Redis client (see [Builder.WithRedis]).
type ThrottleConfig struct {
	Enabled           bool          `yaml:"enabled"`
	EnableIPThrottle  bool          `yaml:"enable_ip_throttle"`
	MaxFailedConnects int           `yaml:"max_failed_connects"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration that keeps everything in memory.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Vault: VaultConfig{
			Backend:        BackendMemory,
			Namespace:      "goremote",
			RedisPrefix:    "grv",
			SQLitePoolSize: 4,
			PurgeOnStart:   true,
		},
		Session: SessionConfig{
			TTL:    15 * time.Minute,
			Shards: 32,
		},
		SSH: SSHConfig{
			DialTimeout:      15 * time.Second,
			KeepAliveTimeout: 5 * time.Second,
			MaxDownloadBytes: 32 << 20,
			ExecTimeout:      30 * time.Second,
			SFTPTimeout:      60 * time.Second,
		},
		TCP: TCPConfig{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    10 * time.Second,
		},
		Throttle: ThrottleConfig{
			MaxFailedConnects: 5,
			Cooldown:          5 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadConfig reads a YAML file over [DefaultConfig]. Keys missing from the
// file keep their defaults; ${VAR} references in paths are expanded.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Vault.IdentityFile = os.ExpandEnv(cfg.Vault.IdentityFile)
	cfg.Vault.Dir = os.ExpandEnv(cfg.Vault.Dir)
	cfg.Vault.SQLitePath = os.ExpandEnv(cfg.Vault.SQLitePath)
	cfg.SSH.KnownHostsFile = os.ExpandEnv(cfg.SSH.KnownHostsFile)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for values the engine cannot run with.
func (c *Config) Validate() error {
	// Vault
	switch c.Vault.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Vault.Dir == "" {
			return errors.New("Vault Dir is required for the file backend")
		}
	case BackendRedis:
		if c.Vault.RedisPrefix == "" {
			return errors.New("Vault RedisPrefix is required for the redis backend")
		}
	case BackendSQLite:
		if c.Vault.SQLitePath == "" {
			return errors.New("Vault SQLitePath is required for the sqlite backend")
		}
		if c.Vault.SQLitePoolSize < 0 {
			return errors.New("Vault SQLitePoolSize must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported vault backend %q", c.Vault.Backend)
	}
	if c.Vault.Namespace == "" {
		return errors.New("Vault Namespace is required")
	}
	if c.Vault.Backend != BackendMemory && c.Vault.IdentityFile == "" && !c.Vault.PurgeOnStart {
		return errors.New("Vault IdentityFile is required for persistent backends unless PurgeOnStart is set")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Shards < 0 || c.Session.Shards > 1<<16 {
		return errors.New("Session Shards must be between 0 and 65536")
	}

	// Transports
	if c.SSH.DialTimeout < 0 || c.SSH.KeepAliveTimeout < 0 {
		return errors.New("SSH timeouts must be >= 0")
	}
	if c.SSH.ExecTimeout <= 0 {
		return errors.New("SSH ExecTimeout must be > 0")
	}
	if c.SSH.SFTPTimeout <= 0 {
		return errors.New("SSH SFTPTimeout must be > 0")
	}
	if c.SSH.MaxDownloadBytes < 0 {
		return errors.New("SSH MaxDownloadBytes must be >= 0")
	}
	if c.TCP.ConnectTimeout <= 0 || c.TCP.ReadTimeout <= 0 {
		return errors.New("TCP timeouts must be > 0")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxFailedConnects <= 0 {
			return errors.New("Throttle MaxFailedConnects must be > 0 when enabled")
		}
		if c.Throttle.Cooldown <= 0 {
			return errors.New("Throttle Cooldown must be > 0 when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
