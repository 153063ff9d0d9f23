package registry

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/MrEthical07/goRemote/vault"
)

func seedRegistry(b *testing.B, r *Registry, n int) []string {
	b.Helper()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("bench-%04d", i)
		params := vault.Params{"host": "10.0.0.1", "port": int64(22), "username": "pi"}
		if err := r.Register(context.Background(), ids[i], params); err != nil {
			b.Fatalf("register: %v", err)
		}
	}
	return ids
}

func BenchmarkGetParams(b *testing.B) {
	r, _, _, _ := newRegistryTest(b)
	ids := seedRegistry(b, r, 256)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := r.GetParams(ctx, ids[i%len(ids)]); !ok {
			b.Fatal("session missing")
		}
	}
}

func BenchmarkGetParamsParallel(b *testing.B) {
	r, _, _, _ := newRegistryTest(b)
	ids := seedRegistry(b, r, 256)
	ctx := context.Background()
	var next atomic.Uint64

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			r.GetParams(ctx, ids[next.Add(1)%uint64(len(ids))])
		}
	})
}

func BenchmarkTouchParallel(b *testing.B) {
	r, _, _, _ := newRegistryTest(b)
	ids := seedRegistry(b, r, 256)
	var next atomic.Uint64

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			r.Touch(ids[next.Add(1)%uint64(len(ids))])
		}
	})
}
