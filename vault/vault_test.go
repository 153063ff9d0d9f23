package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"zombiezen.com/go/sqlite/sqlitex"
)

// backend opens vaults sharing one underlying store, so namespace isolation
// and corrupt-entry handling can be exercised the same way everywhere.
type backend struct {
	open  func(t *testing.T, namespace string) Vault
	plant func(t *testing.T, v Vault, id string, blob []byte)
}

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	sealer, err := GenerateSealer()
	if err != nil {
		t.Fatalf("generate sealer: %v", err)
	}
	return sealer
}

func memoryBackend(t *testing.T, sealer *Sealer) backend {
	t.Helper()
	return backend{
		open: func(t *testing.T, namespace string) Vault {
			v, err := NewMemory(namespace, sealer)
			if err != nil {
				t.Fatalf("new memory vault: %v", err)
			}
			return v
		},
		plant: func(t *testing.T, v Vault, id string, blob []byte) {
			v.(*Memory).putRaw(id, blob)
		},
	}
}

func fileBackend(t *testing.T, sealer *Sealer) backend {
	t.Helper()
	dir := t.TempDir()
	return backend{
		open: func(t *testing.T, namespace string) Vault {
			v, err := NewFile(dir, namespace, sealer)
			if err != nil {
				t.Fatalf("new file vault: %v", err)
			}
			return v
		},
		plant: func(t *testing.T, v Vault, id string, blob []byte) {
			if err := os.WriteFile(v.(*File).path(id), blob, 0o600); err != nil {
				t.Fatalf("plant file entry: %v", err)
			}
		},
	}
}

func redisBackend(t *testing.T, sealer *Sealer) backend {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return backend{
		open: func(t *testing.T, namespace string) Vault {
			v, err := NewRedis(rdb, "test", namespace, sealer)
			if err != nil {
				t.Fatalf("new redis vault: %v", err)
			}
			return v
		},
		plant: func(t *testing.T, v Vault, id string, blob []byte) {
			if err := mr.Set(v.(*Redis).key(id), string(blob)); err != nil {
				t.Fatalf("plant redis entry: %v", err)
			}
		},
	}
}

func sqliteBackend(t *testing.T, sealer *Sealer) backend {
	t.Helper()
	db, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "vault.db"), PoolSize: 2})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return backend{
		open: func(t *testing.T, namespace string) Vault {
			v, err := db.Vault(namespace, sealer)
			if err != nil {
				t.Fatalf("new sqlite vault: %v", err)
			}
			return v
		},
		plant: func(t *testing.T, v Vault, id string, blob []byte) {
			conn, err := db.pool.Take(context.Background())
			if err != nil {
				t.Fatalf("take conn: %v", err)
			}
			defer db.pool.Put(conn)
			err = sqlitex.Execute(conn,
				`INSERT OR REPLACE INTO vault_entries (namespace, id, blob) VALUES (?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{v.Namespace(), id, blob}})
			if err != nil {
				t.Fatalf("plant sqlite entry: %v", err)
			}
		},
	}
}

var backends = []struct {
	name string
	new  func(t *testing.T, sealer *Sealer) backend
}{
	{"memory", memoryBackend},
	{"file", fileBackend},
	{"redis", redisBackend},
	{"sqlite", sqliteBackend},
}

func TestVaultConformance(t *testing.T) {
	for _, tc := range backends {
		t.Run(tc.name, func(t *testing.T) {
			t.Run("RoundTripDropsNil", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				ctx := context.Background()

				if err := v.Put(ctx, "s1", Params{"a": "x", "b": 5, "c": nil}); err != nil {
					t.Fatalf("put: %v", err)
				}
				got, err := v.Get(ctx, "s1")
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				want := Params{"a": "x", "b": int64(5)}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("got %#v want %#v", got, want)
				}
			})

			t.Run("ScalarKinds", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				ctx := context.Background()
				in := Params{
					"host":   "10.0.0.2",
					"port":   uint16(2222),
					"neg":    -7,
					"ratio":  0.25,
					"enable": true,
					"empty":  "",
				}
				if err := v.Put(ctx, "s1", in); err != nil {
					t.Fatalf("put: %v", err)
				}
				got, err := v.Get(ctx, "s1")
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				want := Params{
					"host":   "10.0.0.2",
					"port":   int64(2222),
					"neg":    int64(-7),
					"ratio":  0.25,
					"enable": true,
					"empty":  "",
				}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("got %#v want %#v", got, want)
				}
			})

			t.Run("OverwriteReplaces", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				ctx := context.Background()
				if err := v.Put(ctx, "s1", Params{"a": "1", "b": "2"}); err != nil {
					t.Fatalf("put: %v", err)
				}
				if err := v.Put(ctx, "s1", Params{"a": "3"}); err != nil {
					t.Fatalf("put: %v", err)
				}
				got, err := v.Get(ctx, "s1")
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if !reflect.DeepEqual(got, Params{"a": "3"}) {
					t.Fatalf("got %#v", got)
				}
			})

			t.Run("MissingIsNotFound", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				_, err := v.Get(context.Background(), "nope")
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
				if errors.Is(err, ErrCorrupt) {
					t.Fatalf("missing entry must not be reported corrupt")
				}
			})

			t.Run("DeleteIdempotent", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				ctx := context.Background()
				if err := v.Put(ctx, "s1", Params{"a": "x"}); err != nil {
					t.Fatalf("put: %v", err)
				}
				for i := 0; i < 2; i++ {
					if err := v.Delete(ctx, "s1"); err != nil {
						t.Fatalf("delete #%d: %v", i+1, err)
					}
				}
				if err := v.Delete(ctx, "never-existed"); err != nil {
					t.Fatalf("delete missing: %v", err)
				}
				if _, err := v.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound after delete, got %v", err)
				}
			})

			t.Run("CorruptIsNotFound", func(t *testing.T) {
				b := tc.new(t, newTestSealer(t))
				v := b.open(t, "ssh")
				b.plant(t, v, "s1", []byte("definitely not age"))

				_, err := v.Get(context.Background(), "s1")
				if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrCorrupt) {
					t.Fatalf("expected ErrNotFound+ErrCorrupt, got %v", err)
				}
			})

			t.Run("ForeignIdentityIsCorrupt", func(t *testing.T) {
				b := tc.new(t, newTestSealer(t))
				v := b.open(t, "ssh")

				other, err := NewMemory("ssh", newTestSealer(t))
				if err != nil {
					t.Fatalf("new memory vault: %v", err)
				}
				blob, err := other.codec.encode(Params{"a": "x"})
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				b.plant(t, v, "s1", blob)

				_, err = v.Get(context.Background(), "s1")
				if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrCorrupt) {
					t.Fatalf("expected ErrNotFound+ErrCorrupt, got %v", err)
				}
			})

			t.Run("NamespaceIsolation", func(t *testing.T) {
				b := tc.new(t, newTestSealer(t))
				sshVault := b.open(t, "ssh")
				tcpVault := b.open(t, "tcp")
				ctx := context.Background()

				if err := sshVault.Put(ctx, "s1", Params{"kind": "ssh"}); err != nil {
					t.Fatalf("put: %v", err)
				}
				if _, err := tcpVault.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound across namespaces, got %v", err)
				}
				if err := tcpVault.Delete(ctx, "s1"); err != nil {
					t.Fatalf("delete in other namespace: %v", err)
				}
				if _, err := sshVault.Get(ctx, "s1"); err != nil {
					t.Fatalf("entry should survive delete in other namespace: %v", err)
				}
			})

			t.Run("Purge", func(t *testing.T) {
				b := tc.new(t, newTestSealer(t))
				sshVault := b.open(t, "ssh")
				tcpVault := b.open(t, "tcp")
				ctx := context.Background()

				for _, id := range []string{"a", "b", "c"} {
					if err := sshVault.Put(ctx, id, Params{"id": id}); err != nil {
						t.Fatalf("put: %v", err)
					}
				}
				if err := tcpVault.Put(ctx, "a", Params{"id": "a"}); err != nil {
					t.Fatalf("put: %v", err)
				}

				n, err := sshVault.(Purger).Purge(ctx)
				if err != nil {
					t.Fatalf("purge: %v", err)
				}
				if n != 3 {
					t.Fatalf("expected 3 purged, got %d", n)
				}
				if _, err := sshVault.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound after purge, got %v", err)
				}
				if _, err := tcpVault.Get(ctx, "a"); err != nil {
					t.Fatalf("purge leaked into other namespace: %v", err)
				}
			})

			t.Run("RejectsNonScalar", func(t *testing.T) {
				v := tc.new(t, newTestSealer(t)).open(t, "ssh")
				err := v.Put(context.Background(), "s1", Params{"nested": map[string]any{"x": 1}})
				if !errors.Is(err, ErrInvalidParams) {
					t.Fatalf("expected ErrInvalidParams, got %v", err)
				}
			})
		})
	}
}

func TestNamespaceValidation(t *testing.T) {
	sealer := newTestSealer(t)
	for _, ns := range []string{"", "SSH", "a:b", "a/b", string(make([]byte, 65))} {
		if _, err := NewMemory(ns, sealer); !errors.Is(err, ErrInvalidNamespace) {
			t.Fatalf("namespace %q: expected ErrInvalidNamespace, got %v", ns, err)
		}
	}
	if _, err := NewMemory("ssh_v2-test", sealer); err != nil {
		t.Fatalf("valid namespace rejected: %v", err)
	}
}

func TestConstructorsRequireSealer(t *testing.T) {
	if _, err := NewMemory("ssh", nil); !errors.Is(err, ErrNoSealer) {
		t.Fatalf("expected ErrNoSealer, got %v", err)
	}
	if _, err := NewFile(t.TempDir(), "ssh", nil); !errors.Is(err, ErrNoSealer) {
		t.Fatalf("expected ErrNoSealer, got %v", err)
	}
}

func TestFileNamesDoNotContainID(t *testing.T) {
	dir := t.TempDir()
	v, err := NewFile(dir, "ssh", newTestSealer(t))
	if err != nil {
		t.Fatalf("new file vault: %v", err)
	}
	id := "very-recognizable-session-id"
	if err := v.Put(context.Background(), id, Params{"a": "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "ssh"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry file, got %d", len(entries))
	}
	name := entries[0].Name()
	if filepath.Ext(name) != fileEntrySuffix {
		t.Fatalf("unexpected entry file %q", name)
	}
	if strings.Contains(name, id) {
		t.Fatalf("session id leaked into file name %q", name)
	}
	info, err := entries[0].Info()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	v, err := NewRedis(rdb, "", "ssh", newTestSealer(t))
	if err != nil {
		t.Fatalf("new redis vault: %v", err)
	}
	mr.Close()

	ctx := context.Background()
	if err := v.Put(ctx, "s1", Params{"a": "x"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on put, got %v", err)
	}
	if _, err := v.Get(ctx, "s1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on get, got %v", err)
	}
}

func TestRedisIDsCannotCollideWithIndexKey(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	v, err := NewRedis(rdb, "test", "ssh", newTestSealer(t))
	if err != nil {
		t.Fatalf("new redis vault: %v", err)
	}

	ctx := context.Background()
	ids := []string{"_ids", "#ids", "ids", "s1"}
	for _, id := range ids {
		if err := v.Put(ctx, id, Params{"id": id}); err != nil {
			t.Fatalf("put %q: %v", id, err)
		}
	}
	for _, id := range ids {
		got, err := v.Get(ctx, id)
		if err != nil || got.String("id") != id {
			t.Fatalf("get %q = %v, %v", id, got, err)
		}
	}

	n, err := v.Purge(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != len(ids) {
		t.Fatalf("purged %d entries, want %d", n, len(ids))
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("keys left after purge: %v", keys)
	}
}
