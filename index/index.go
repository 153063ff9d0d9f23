// Package index tracks when each live session was last used.
//
// The index is memory only. It is the authority on whether a session id is
// known: an id absent from the index is treated as unknown even if vault data
// for it still exists.
package index

import (
	"sync"
	"time"

	"github.com/MrEthical07/goRemote/internal/shard"
)

// Index is a sharded map of session id to last-used instant. Operations on
// the same id are linearizable; operations on different ids only contend
// when they hash to the same shard.
type Index struct {
	shards []*indexShard
	mask   uint32
}

type indexShard struct {
	mu       sync.RWMutex
	lastUsed map[string]time.Time
}

// New creates an index with shardCount shards, rounded up to a power of two.
func New(shardCount int) *Index {
	n := shard.Count(shardCount)
	shards := make([]*indexShard, n)
	for i := range shards {
		shards[i] = &indexShard{lastUsed: make(map[string]time.Time)}
	}
	return &Index{shards: shards, mask: n - 1}
}

func (ix *Index) shard(id string) *indexShard {
	return ix.shards[shard.Index(id, ix.mask)]
}

// Record inserts or overwrites the entry for id.
func (ix *Index) Record(id string, now time.Time) {
	sh := ix.shard(id)
	sh.mu.Lock()
	sh.lastUsed[id] = now
	sh.mu.Unlock()
}

// Refresh updates the timestamp of an existing entry and reports whether id
// was present. Unknown ids are left unknown.
func (ix *Index) Refresh(id string, now time.Time) bool {
	sh := ix.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.lastUsed[id]; !ok {
		return false
	}
	sh.lastUsed[id] = now
	return true
}

// Remove deletes the entry for id and reports whether it existed.
func (ix *Index) Remove(id string) bool {
	sh := ix.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.lastUsed[id]; !ok {
		return false
	}
	delete(sh.lastUsed, id)
	return true
}

// LastUsed returns the recorded instant for id.
func (ix *Index) LastUsed(id string) (time.Time, bool) {
	sh := ix.shard(id)
	sh.mu.RLock()
	at, ok := sh.lastUsed[id]
	sh.mu.RUnlock()
	return at, ok
}

// ListExpired returns ids idle for strictly longer than ttl at now. The
// result is a snapshot; entries may change before the caller acts on it.
func (ix *Index) ListExpired(now time.Time, ttl time.Duration) []string {
	var expired []string
	for _, sh := range ix.shards {
		sh.mu.RLock()
		for id, at := range sh.lastUsed {
			if now.Sub(at) > ttl {
				expired = append(expired, id)
			}
		}
		sh.mu.RUnlock()
	}
	return expired
}

// IDs returns a snapshot of every indexed id.
func (ix *Index) IDs() []string {
	ids := make([]string, 0, ix.Len())
	for _, sh := range ix.shards {
		sh.mu.RLock()
		for id := range sh.lastUsed {
			ids = append(ids, id)
		}
		sh.mu.RUnlock()
	}
	return ids
}

// Len returns the number of indexed ids.
func (ix *Index) Len() int {
	n := 0
	for _, sh := range ix.shards {
		sh.mu.RLock()
		n += len(sh.lastUsed)
		sh.mu.RUnlock()
	}
	return n
}
