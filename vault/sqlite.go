package vault

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vault_entries (
	namespace TEXT NOT NULL,
	id        TEXT NOT NULL,
	blob      BLOB NOT NULL,
	PRIMARY KEY (namespace, id)
) WITHOUT ROWID;
`

// SQLiteConfig configures the SQLite connection pool behind SQLite vaults.
type SQLiteConfig struct {
	// Path of the database file. Created if missing; the parent directory
	// must exist.
	Path string

	// PoolSize defaults to 4. Writes are serialized by SQLite regardless.
	PoolSize int

	Logger *slog.Logger
}

// SQLiteDB owns a pool of connections to one vault database. Several
// namespaces may share it.
type SQLiteDB struct {
	pool   *sqlitex.Pool
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the vault database at cfg.Path.
func OpenSQLite(cfg SQLiteConfig) (*SQLiteDB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrUnavailable)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareVaultConn,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrUnavailable, cfg.Path, err)
	}

	logger.Info("vault database opened", "path", cfg.Path, "pool_size", poolSize)
	return &SQLiteDB{pool: pool, path: cfg.Path, logger: logger}, nil
}

// Every entry must be on disk before Put returns, hence synchronous=FULL
// rather than NORMAL.
func prepareVaultConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("creating vault schema: %w", err)
	}
	return nil
}

// Close closes every pooled connection. Vaults created from db must not be
// used afterwards.
func (db *SQLiteDB) Close() error {
	if err := db.pool.Close(); err != nil {
		db.logger.Error("vault database close failed", "path", db.path, "error", err)
		return fmt.Errorf("closing vault database %s: %w", db.path, err)
	}
	db.logger.Info("vault database closed", "path", db.path)
	return nil
}

// Vault returns the vault for namespace backed by db.
func (db *SQLiteDB) Vault(namespace string, sealer *Sealer) (*SQLite, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	codec, err := newEntryCodec(sealer)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, namespace: namespace, codec: codec}, nil
}

// SQLite is one namespace of a SQLiteDB.
type SQLite struct {
	db        *SQLiteDB
	namespace string
	codec     entryCodec
}

var (
	_ Vault  = (*SQLite)(nil)
	_ Purger = (*SQLite)(nil)
)

func (s *SQLite) Namespace() string { return s.namespace }

func (s *SQLite) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.db.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn, nil
}

func (s *SQLite) Put(ctx context.Context, id string, params Params) error {
	blob, err := s.codec.encode(params)
	if err != nil {
		return err
	}
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.db.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO vault_entries (namespace, id, blob) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, id) DO UPDATE SET blob = excluded.blob`,
		&sqlitex.ExecOptions{Args: []any{s.namespace, id, blob}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Params, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.db.pool.Put(conn)

	var blob []byte
	found := false
	err = sqlitex.Execute(conn,
		`SELECT blob FROM vault_entries WHERE namespace = ? AND id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{s.namespace, id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return s.codec.decode(blob)
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.db.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM vault_entries WHERE namespace = ? AND id = ?`,
		&sqlitex.ExecOptions{Args: []any{s.namespace, id}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLite) Purge(ctx context.Context) (int, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.db.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`DELETE FROM vault_entries WHERE namespace = ?`,
		&sqlitex.ExecOptions{Args: []any{s.namespace}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return conn.Changes(), nil
}
