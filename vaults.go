package goRemote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRemote/vault"
)

type engineVaults struct {
	ssh   vault.Vault
	tcp   vault.Vault
	close func() error
}

// openVaults opens one namespace per transport kind on the configured
// backend.
func openVaults(cfg VaultConfig, rdb redis.UniversalClient, sealer *vault.Sealer, logger *slog.Logger) (engineVaults, error) {
	out := engineVaults{close: func() error { return nil }}

	open := func(ns string) (vault.Vault, error) {
		switch cfg.Backend {
		case BackendMemory:
			return vault.NewMemory(ns, sealer)
		case BackendFile:
			return vault.NewFile(cfg.Dir, ns, sealer)
		case BackendRedis:
			return vault.NewRedis(rdb, cfg.RedisPrefix, ns, sealer)
		default:
			return nil, fmt.Errorf("unsupported vault backend %q", cfg.Backend)
		}
	}

	if cfg.Backend == BackendSQLite {
		db, err := vault.OpenSQLite(vault.SQLiteConfig{
			Path:     cfg.SQLitePath,
			PoolSize: cfg.SQLitePoolSize,
			Logger:   logger,
		})
		if err != nil {
			return engineVaults{}, err
		}
		out.close = db.Close
		open = func(ns string) (vault.Vault, error) {
			return db.Vault(ns, sealer)
		}
	}

	var err error
	if out.ssh, err = open(cfg.Namespace + "-" + string(KindSSH)); err != nil {
		out.close()
		return engineVaults{}, fmt.Errorf("opening ssh vault: %w", err)
	}
	if out.tcp, err = open(cfg.Namespace + "-" + string(KindTCP)); err != nil {
		out.close()
		return engineVaults{}, fmt.Errorf("opening tcp vault: %w", err)
	}
	return out, nil
}

// purge drops entries orphaned by a previous process. The index is never
// persisted, so nothing in these namespaces can be reached after a restart.
func (v engineVaults) purge(ctx context.Context, logger *slog.Logger) error {
	var errs []error
	for _, vt := range []vault.Vault{v.ssh, v.tcp} {
		p, ok := vt.(vault.Purger)
		if !ok {
			continue
		}
		n, err := p.Purge(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("purging %s: %w", vt.Namespace(), err))
			continue
		}
		if n > 0 {
			logger.Info("purged orphaned vault entries", "namespace", vt.Namespace(), "count", n)
		}
	}
	return errors.Join(errs...)
}
