// Package registry combines a credential vault with the session index and
// owns the idle-TTL policy.
//
// Eviction is lazy: expired sessions are removed when the registry is next
// touched (Register, GetParams, Alive or an explicit EvictExpired call).
// There is no background sweeper.
//
// # Consistency
//
// Register, GetParams and Evict on the same id hold that id's stripe lock
// for their whole vault+index sequence. Register writes the vault before
// the index; eviction removes the index entry before the vault entry. An
// indexed id therefore always has vault data written for it, while a vault
// entry may briefly outlive its index entry.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goRemote/index"
	"github.com/MrEthical07/goRemote/internal"
	"github.com/MrEthical07/goRemote/internal/clock"
	"github.com/MrEthical07/goRemote/internal/shard"
	"github.com/MrEthical07/goRemote/vault"
)

// DefaultTTL is the idle period after which a session expires.
const DefaultTTL = 15 * time.Minute

// Reason tells an eviction hook why a session went away.
type Reason int

const (
	// ReasonExplicit is an Evict or EvictAll call.
	ReasonExplicit Reason = iota
	// ReasonExpired is a session idle for longer than the TTL.
	ReasonExpired
	// ReasonUnreadable is a session whose vault entry is missing or corrupt.
	ReasonUnreadable
)

func (r Reason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonExpired:
		return "expired"
	case ReasonUnreadable:
		return "unreadable"
	default:
		return "unknown"
	}
}

// EvictHook is called after a session has been evicted, outside any
// registry lock.
type EvictHook func(id string, reason Reason)

// Registry is safe for concurrent use.
type Registry struct {
	vault   vault.Vault
	index   *index.Index
	ttl     time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	onEvict EvictHook

	stripes []sync.Mutex
	mask    uint32
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger. Session ids are logged shortened.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithShards sets the shard count of the index and the number of lock
// stripes.
func WithShards(n int) Option {
	return func(r *Registry) {
		r.index = index.New(n)
		r.stripes = make([]sync.Mutex, shard.Count(n))
		r.mask = shard.Count(n) - 1
	}
}

// WithEvictHook registers fn to run after every eviction.
func WithEvictHook(fn EvictHook) Option {
	return func(r *Registry) {
		r.onEvict = fn
	}
}

// New creates a registry over v.
func New(v vault.Vault, opts ...Option) *Registry {
	r := &Registry{
		vault:  v,
		index:  index.New(shard.DefaultCount),
		ttl:    DefaultTTL,
		clock:  clock.Real(),
		logger: slog.New(slog.DiscardHandler),
	}
	r.stripes = make([]sync.Mutex, shard.Count(shard.DefaultCount))
	r.mask = shard.Count(shard.DefaultCount) - 1
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TTL returns the configured idle timeout.
func (r *Registry) TTL() time.Duration { return r.ttl }

// Namespace returns the vault namespace.
func (r *Registry) Namespace() string { return r.vault.Namespace() }

// Len returns the number of indexed sessions, expired or not.
func (r *Registry) Len() int { return r.index.Len() }

func (r *Registry) lock(id string) func() {
	mu := &r.stripes[shard.Index(id, r.mask)]
	mu.Lock()
	return mu.Unlock
}

// Register persists params for id and makes the session visible. Nil
// fields are dropped. On error nothing is indexed.
func (r *Registry) Register(ctx context.Context, id string, params vault.Params) error {
	r.EvictExpired(ctx)

	unlock := r.lock(id)
	defer unlock()

	if err := r.vault.Put(ctx, id, params); err != nil {
		return err
	}
	r.index.Record(id, r.clock.Now())
	return nil
}

// GetParams returns the stored params for a live session and marks it
// used. Unknown, expired and unreadable sessions all report false.
func (r *Registry) GetParams(ctx context.Context, id string) (vault.Params, bool) {
	r.EvictExpired(ctx)

	unlock := r.lock(id)
	lastUsed, ok := r.index.LastUsed(id)
	if !ok {
		unlock()
		return nil, false
	}
	if r.expired(lastUsed) {
		r.evictLocked(ctx, id)
		unlock()
		r.notify(id, ReasonExpired)
		return nil, false
	}

	params, err := r.vault.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, vault.ErrNotFound) {
			// Backend unavailable: keep the session, the next call may succeed.
			unlock()
			r.logger.Error("vault read failed",
				"namespace", r.vault.Namespace(),
				"session_id", internal.ShortID(id),
				"error", err,
			)
			return nil, false
		}
		if errors.Is(err, vault.ErrCorrupt) {
			r.logger.Warn("vault entry corrupt, evicting session",
				"namespace", r.vault.Namespace(),
				"session_id", internal.ShortID(id),
				"error", err,
			)
		} else {
			r.logger.Warn("vault entry missing for indexed session, evicting",
				"namespace", r.vault.Namespace(),
				"session_id", internal.ShortID(id),
			)
		}
		r.evictLocked(ctx, id)
		unlock()
		r.notify(id, ReasonUnreadable)
		return nil, false
	}

	r.index.Refresh(id, r.clock.Now())
	unlock()
	return params, true
}

// Touch advances the last-used instant of a known session. It never
// creates an entry and reports whether id was indexed.
func (r *Registry) Touch(id string) bool {
	return r.index.Refresh(id, r.clock.Now())
}

// Alive reports whether id is indexed and within its TTL, without reading
// the vault. An expired id is evicted on the way.
func (r *Registry) Alive(ctx context.Context, id string) bool {
	lastUsed, ok := r.index.LastUsed(id)
	if !ok {
		return false
	}
	if !r.expired(lastUsed) {
		return true
	}

	unlock := r.lock(id)
	lastUsed, ok = r.index.LastUsed(id)
	if !ok {
		unlock()
		return false
	}
	if !r.expired(lastUsed) {
		// Touched between the two reads.
		unlock()
		return true
	}
	r.evictLocked(ctx, id)
	unlock()
	r.notify(id, ReasonExpired)
	return false
}

// Evict removes the session. Evicting an unknown id is a no-op.
func (r *Registry) Evict(ctx context.Context, id string) error {
	unlock := r.lock(id)
	existed, err := r.evictLocked(ctx, id)
	unlock()
	if existed {
		r.notify(id, ReasonExplicit)
	}
	return err
}

// Invalidate evicts a session whose stored parameters can no longer be
// used, reporting ReasonUnreadable to the evict hook.
func (r *Registry) Invalidate(ctx context.Context, id string) error {
	unlock := r.lock(id)
	existed, err := r.evictLocked(ctx, id)
	unlock()
	if existed {
		r.notify(id, ReasonUnreadable)
	}
	return err
}

// EvictExpired evicts every session idle for longer than the TTL and
// returns their ids.
func (r *Registry) EvictExpired(ctx context.Context) []string {
	candidates := r.index.ListExpired(r.clock.Now(), r.ttl)
	if len(candidates) == 0 {
		return nil
	}

	evicted := make([]string, 0, len(candidates))
	for _, id := range candidates {
		unlock := r.lock(id)
		lastUsed, ok := r.index.LastUsed(id)
		if !ok || !r.expired(lastUsed) {
			unlock()
			continue
		}
		r.evictLocked(ctx, id)
		unlock()
		evicted = append(evicted, id)
		r.notify(id, ReasonExpired)
	}

	if len(evicted) > 0 {
		r.logger.Debug("expired sessions evicted",
			"namespace", r.vault.Namespace(),
			"count", len(evicted),
		)
	}
	return evicted
}

// EvictAll evicts every indexed session and returns their ids. Sessions
// registered while EvictAll runs may survive it.
func (r *Registry) EvictAll(ctx context.Context) []string {
	ids := r.index.IDs()
	evicted := make([]string, 0, len(ids))
	for _, id := range ids {
		unlock := r.lock(id)
		existed, _ := r.evictLocked(ctx, id)
		unlock()
		if existed {
			evicted = append(evicted, id)
			r.notify(id, ReasonExplicit)
		}
	}
	return evicted
}

func (r *Registry) expired(lastUsed time.Time) bool {
	return r.clock.Now().Sub(lastUsed) > r.ttl
}

// evictLocked must be called with id's stripe held. The vault delete is
// attempted even if id was not indexed, so a half-evicted entry from an
// earlier failure can be retried.
func (r *Registry) evictLocked(ctx context.Context, id string) (bool, error) {
	existed := r.index.Remove(id)
	if err := r.vault.Delete(ctx, id); err != nil {
		r.logger.Warn("vault delete failed, entry orphaned",
			"namespace", r.vault.Namespace(),
			"session_id", internal.ShortID(id),
			"error", err,
		)
		return existed, err
	}
	return existed, nil
}

func (r *Registry) notify(id string, reason Reason) {
	if r.onEvict != nil {
		r.onEvict(id, reason)
	}
}
