package index

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRecordRefreshRemove(t *testing.T) {
	ix := New(4)

	if ix.Refresh("s1", base) {
		t.Fatalf("refresh of unknown id reported success")
	}
	if _, ok := ix.LastUsed("s1"); ok {
		t.Fatalf("refresh created an entry")
	}

	ix.Record("s1", base)
	if !ix.Refresh("s1", base.Add(time.Minute)) {
		t.Fatalf("refresh of known id failed")
	}
	at, ok := ix.LastUsed("s1")
	if !ok || !at.Equal(base.Add(time.Minute)) {
		t.Fatalf("LastUsed = %v, %v", at, ok)
	}

	if !ix.Remove("s1") {
		t.Fatalf("remove of known id reported absent")
	}
	if ix.Remove("s1") {
		t.Fatalf("second remove reported present")
	}
	if ix.Len() != 0 {
		t.Fatalf("Len = %d after remove", ix.Len())
	}
}

func TestListExpiredIsStrict(t *testing.T) {
	ix := New(4)
	ttl := 15 * time.Minute

	ix.Record("exact", base)
	ix.Record("over", base.Add(-time.Nanosecond))
	ix.Record("fresh", base.Add(time.Minute))

	got := ix.ListExpired(base.Add(ttl), ttl)
	if len(got) != 1 || got[0] != "over" {
		t.Fatalf("ListExpired = %v, want [over]", got)
	}
}

func TestIDs(t *testing.T) {
	ix := New(2)
	for i := 0; i < 10; i++ {
		ix.Record(fmt.Sprintf("s%d", i), base)
	}
	ids := ix.IDs()
	sort.Strings(ids)
	if len(ids) != 10 || ids[0] != "s0" || ids[9] != "s9" {
		t.Fatalf("IDs = %v", ids)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ix := New(8)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				ix.Record(id, base)
				ix.Refresh(id, base.Add(time.Second))
				ix.ListExpired(base, time.Minute)
				if i%2 == 0 {
					ix.Remove(id)
				}
			}
		}(w)
	}
	wg.Wait()
	if got := ix.Len(); got != 8*100 {
		t.Fatalf("Len = %d, want %d", got, 8*100)
	}
}
