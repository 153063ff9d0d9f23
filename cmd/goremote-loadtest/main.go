// Command goremote-loadtest measures the session hot paths (vault writes,
// pooled use, reconnect from the vault) against one vault backend without
// opening real network connections.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/goRemote/reconnect"
	"github.com/MrEthical07/goRemote/vault"
)

// stubConn stands in for a transport connection.
type stubConn struct {
	alive atomic.Bool
}

func (c *stubConn) Close() error { c.alive.Store(false); return nil }
func (c *stubConn) Alive() bool  { return c.alive.Load() }

func dialStub(context.Context, vault.Params) (*stubConn, error) {
	c := &stubConn{}
	c.alive.Store(true)
	return c, nil
}

func main() {
	var (
		sessions    = pflag.Int("sessions", 10000, "number of sessions to connect")
		concurrency = pflag.Int("concurrency", 64, "number of concurrent workers")
		ops         = pflag.Int("ops", 100000, "operations per use/reconnect phase")
		backend     = pflag.String("backend", "memory", "vault backend: memory, file, redis, sqlite")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		dir         = pflag.String("dir", "", "state directory for file and sqlite backends (default: temp dir)")
	)
	pflag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	v, cleanup, err := openVault(*backend, *redisAddr, *dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open vault: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	var reconnects atomic.Int64
	client := reconnect.New[*stubConn]("load", v, dialStub,
		reconnect.WithObserver(reconnect.ObserverFunc(func(_ string, ev reconnect.Event) {
			if ev == reconnect.EventReconnect {
				reconnects.Add(1)
			}
		})),
	)
	defer client.DisconnectAll(ctx)

	ids := make([]string, *sessions)
	fmt.Printf("connecting %d sessions on %s vault...\n", *sessions, *backend)
	connectStats := runPhase(*sessions, *concurrency, func(i int, _ *rand.Rand) error {
		id, err := client.Connect(ctx, vault.Params{
			"host":     fmt.Sprintf("10.0.%d.%d", (i/250)%250, i%250+1),
			"port":     22,
			"username": "loadtest",
			"password": "not-a-real-password",
		})
		ids[i] = id
		return err
	})

	useStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		return client.Use(ctx, ids[r.Intn(len(ids))], func(context.Context, *stubConn) error { return nil })
	})

	// Every op kills the handle it used, so the next op on that id
	// rebuilds it from the vault.
	reconnects.Store(0)
	reconnectStats := runPhase(*ops, *concurrency, func(_ int, r *rand.Rand) error {
		return client.Use(ctx, ids[r.Intn(len(ids))], func(_ context.Context, c *stubConn) error {
			c.alive.Store(false)
			return nil
		})
	})

	fmt.Println("---- results ----")
	printStats("connect", connectStats)
	printStats("use", useStats)
	printStats("reconnect", reconnectStats)
	fmt.Printf("reconnects=%d pooled=%d\n", reconnects.Load(), client.PoolLen())
}

func openVault(backend, redisAddr, dir string) (vault.Vault, func(), error) {
	sealer, err := vault.GenerateSealer()
	if err != nil {
		return nil, nil, err
	}

	if dir == "" && (backend == "file" || backend == "sqlite") {
		dir, err = os.MkdirTemp("", "goremote-loadtest-")
		if err != nil {
			return nil, nil, err
		}
	}
	removeDir := func() {}
	if dir != "" {
		removeDir = func() { _ = os.RemoveAll(dir) }
	}

	switch backend {
	case "memory":
		v, err := vault.NewMemory("loadtest", sealer)
		return v, func() {}, err
	case "file":
		v, err := vault.NewFile(dir, "loadtest", sealer)
		return v, removeDir, err
	case "sqlite":
		db, err := vault.OpenSQLite(vault.SQLiteConfig{Path: filepath.Join(dir, "vault.db"), PoolSize: 8})
		if err != nil {
			removeDir()
			return nil, nil, err
		}
		v, err := db.Vault("loadtest", sealer)
		return v, func() { _ = db.Close(); removeDir() }, err
	case "redis":
		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		cleanup := func() {}
		if addr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			cleanup = mr.Close
			fmt.Printf("using miniredis at %s\n", addr)
		} else {
			fmt.Printf("using redis at %s\n", addr)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		v, err := vault.NewRedis(client, "grv-load", "loadtest", sealer)
		return v, func() { _ = client.Close(); cleanup() }, err
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
