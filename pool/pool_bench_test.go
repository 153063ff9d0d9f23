package pool

import (
	"fmt"
	"sync/atomic"
	"testing"
)

func BenchmarkGetParallel(b *testing.B) {
	for _, shards := range []int{1, 32} {
		b.Run(fmt.Sprintf("shards=%d", shards), func(b *testing.B) {
			p := New[*fakeHandle](shards)
			ids := make([]string, 512)
			for i := range ids {
				ids[i] = fmt.Sprintf("sess-%04d", i)
				p.Put(ids[i], &fakeHandle{name: ids[i]})
			}
			var next atomic.Uint64

			b.ReportAllocs()
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					if _, ok := p.Get(ids[next.Add(1)%uint64(len(ids))]); !ok {
						b.Error("handle missing")
						return
					}
				}
			})
		})
	}
}

func BenchmarkPutDiscardParallel(b *testing.B) {
	p := New[*fakeHandle](32)
	var next atomic.Uint64

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			id := fmt.Sprintf("sess-%d", next.Add(1)%1024)
			h := &fakeHandle{name: id}
			p.Put(id, h)
			p.Discard(id, h)
		}
	})
}
