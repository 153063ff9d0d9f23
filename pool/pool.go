// Package pool holds live transport handles keyed by session id.
//
// The pool owns every handle it holds: handles leave it only through
// Remove, Discard or RemoveAll, which close them, or through Put, which hands
// the replaced handle back to the caller. Nothing here is persisted.
package pool

import (
	"errors"
	"sync"

	"github.com/MrEthical07/goRemote/internal/shard"
)

// Handle is a live connection. Handles must be comparable so Discard can
// tell whether the pooled handle is still the one a caller borrowed.
type Handle interface {
	comparable
	Close() error
}

// Pool is a sharded map of session id to handle.
type Pool[H Handle] struct {
	shards []*poolShard[H]
	mask   uint32
}

type poolShard[H Handle] struct {
	mu      sync.RWMutex
	handles map[string]H
}

// New creates a pool with shardCount shards, rounded up to a power of two.
func New[H Handle](shardCount int) *Pool[H] {
	n := shard.Count(shardCount)
	shards := make([]*poolShard[H], n)
	for i := range shards {
		shards[i] = &poolShard[H]{handles: make(map[string]H)}
	}
	return &Pool[H]{shards: shards, mask: n - 1}
}

func (p *Pool[H]) shard(id string) *poolShard[H] {
	return p.shards[shard.Index(id, p.mask)]
}

// Get returns the handle pooled under id.
func (p *Pool[H]) Get(id string) (H, bool) {
	sh := p.shard(id)
	sh.mu.RLock()
	h, ok := sh.handles[id]
	sh.mu.RUnlock()
	return h, ok
}

// Put stores h under id and returns the handle it replaced, if any. The
// replaced handle is not closed; it now belongs to the caller.
func (p *Pool[H]) Put(id string, h H) (previous H, replaced bool) {
	sh := p.shard(id)
	sh.mu.Lock()
	previous, replaced = sh.handles[id]
	sh.handles[id] = h
	sh.mu.Unlock()
	return previous, replaced
}

// Remove deletes and closes the handle pooled under id. Removing an absent
// id is a no-op.
func (p *Pool[H]) Remove(id string) error {
	sh := p.shard(id)
	sh.mu.Lock()
	h, ok := sh.handles[id]
	delete(sh.handles, id)
	sh.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Close()
}

// Discard closes h and removes it from the pool if it is still the handle
// pooled under id. It reports whether the pool entry was removed. A handle
// that was already replaced by a concurrent reconnect is closed but the
// newer handle stays.
func (p *Pool[H]) Discard(id string, h H) (bool, error) {
	sh := p.shard(id)
	sh.mu.Lock()
	current, ok := sh.handles[id]
	removed := ok && current == h
	if removed {
		delete(sh.handles, id)
	}
	sh.mu.Unlock()
	return removed, h.Close()
}

// RemoveAll closes and removes every handle, returning the ids it held.
// Close errors are joined.
func (p *Pool[H]) RemoveAll() ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, sh := range p.shards {
		sh.mu.Lock()
		handles := sh.handles
		sh.handles = make(map[string]H)
		sh.mu.Unlock()

		for id, h := range handles {
			ids = append(ids, id)
			if err := h.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return ids, errors.Join(errs...)
}

// Len returns the number of pooled handles.
func (p *Pool[H]) Len() int {
	n := 0
	for _, sh := range p.shards {
		sh.mu.RLock()
		n += len(sh.handles)
		sh.mu.RUnlock()
	}
	return n
}
