package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	goRemote "github.com/MrEthical07/goRemote"
	"github.com/MrEthical07/goRemote/jwt"
)

// serverConfig is the server: section of the config file. The rest of the
// file is the engine configuration.
type serverConfig struct {
	Listen        string        `yaml:"listen"`
	RedisAddr     string        `yaml:"redis_addr"`
	MetricsPath   string        `yaml:"metrics_path"`
	// SweepInterval enables a periodic EvictExpired pass. Zero, the
	// default, leaves expiry to the next access of each session.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	Auth          authConfig    `yaml:"auth"`
}

type authConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SigningMethod string        `yaml:"signing_method"`
	KeyFile       string        `yaml:"key_file"`
	PublicKeyFile string        `yaml:"public_key_file"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
}

type fileConfig struct {
	Server serverConfig `yaml:"server"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Listen:        "127.0.0.1:8722",
		MetricsPath:   "/metrics",
		Auth: authConfig{
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "goremote",
			TokenTTL:      time.Hour,
		},
	}
}

// loadConfig reads the engine and server sections from path. An empty
// path yields the defaults of both.
func loadConfig(path string) (goRemote.Config, serverConfig, error) {
	srv := defaultServerConfig()
	if path == "" {
		return goRemote.DefaultConfig(), srv, nil
	}

	cfg, err := goRemote.LoadConfig(path)
	if err != nil {
		return goRemote.Config{}, serverConfig{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return goRemote.Config{}, serverConfig{}, fmt.Errorf("read config: %w", err)
	}
	file := fileConfig{Server: srv}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return goRemote.Config{}, serverConfig{}, fmt.Errorf("parse server section: %w", err)
	}
	srv = file.Server
	srv.Auth.KeyFile = os.ExpandEnv(srv.Auth.KeyFile)
	srv.Auth.PublicKeyFile = os.ExpandEnv(srv.Auth.PublicKeyFile)

	if srv.SweepInterval < 0 {
		return goRemote.Config{}, serverConfig{}, errors.New("server sweep_interval must be >= 0")
	}
	return cfg, srv, nil
}

// tokenManager builds the bearer token manager. It returns nil when auth
// is disabled. GOREMOTE_JWT_SECRET supplies the hs256 key when no key file
// is configured.
func (a authConfig) tokenManager() (*jwt.Manager, error) {
	if !a.Enabled {
		return nil, nil
	}

	cfg := jwt.Config{
		TTL:           a.TokenTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(a.SigningMethod)),
		Issuer:        a.Issuer,
		Audience:      a.Audience,
		Leeway:        30 * time.Second,
		RequireIAT:    true,
	}

	if a.KeyFile != "" {
		key, err := os.ReadFile(a.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read auth key: %w", err)
		}
		if cfg.SigningMethod == jwt.MethodHS256 {
			key = []byte(strings.TrimSpace(string(key)))
		}
		cfg.PrivateKey = key
	} else if secret := os.Getenv("GOREMOTE_JWT_SECRET"); secret != "" && cfg.SigningMethod == jwt.MethodHS256 {
		cfg.PrivateKey = []byte(secret)
	}

	if a.PublicKeyFile != "" {
		pub, err := os.ReadFile(a.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read auth public key: %w", err)
		}
		cfg.PublicKey = pub
	}

	m, err := jwt.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return m, nil
}
