package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/MrEthical07/goRemote/internal"
	"github.com/MrEthical07/goRemote/pool"
	"github.com/MrEthical07/goRemote/registry"
	"github.com/MrEthical07/goRemote/vault"
)

// Handle is a pooled connection that can report whether it is still
// usable without running an operation.
type Handle interface {
	pool.Handle
	Alive() bool
}

// DialFunc opens a new handle from vaulted parameters. It is used both for
// Connect and for reconnects, so a session is always rebuilt exactly as it
// was first opened.
type DialFunc[H Handle] func(ctx context.Context, params vault.Params) (H, error)

// Op is an operation run against a live handle.
type Op[H Handle] func(ctx context.Context, h H) error

// Client is safe for concurrent use.
type Client[H Handle] struct {
	kind     string
	dial     DialFunc[H]
	registry *registry.Registry
	pool     *pool.Pool[H]
	flights  singleflight.Group
	logger   *slog.Logger
	observer Observer
	newID    func() (string, error)
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	observer    Observer
	newID       func() (string, error)
	shards      int
	registryOps []registry.Option
}

// WithLogger sets the logger for the client and its registry.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver receives connect/reconnect/failure events.
func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithIDGenerator replaces the random session token generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(o *options) { o.newID = fn }
}

// WithShards sets the shard count for the pool and the registry.
func WithShards(n int) Option {
	return func(o *options) { o.shards = n }
}

// WithRegistryOptions forwards options such as TTL and clock to the
// registry.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(o *options) { o.registryOps = append(o.registryOps, opts...) }
}

// New creates a client for one transport kind. The vault namespace should be
// unique to kind.
func New[H Handle](kind string, v vault.Vault, dial DialFunc[H], opts ...Option) *Client[H] {
	o := options{
		logger:   slog.New(slog.DiscardHandler),
		observer: noopObserver{},
		newID:    internal.NewSessionToken,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.observer == nil {
		o.observer = noopObserver{}
	}

	logger := o.logger.With("kind", kind)
	c := &Client[H]{
		kind:     kind,
		dial:     dial,
		pool:     pool.New[H](o.shards),
		logger:   logger,
		observer: o.observer,
		newID:    o.newID,
	}

	regOpts := []registry.Option{
		registry.WithLogger(logger),
		registry.WithEvictHook(c.onEvict),
	}
	if o.shards > 0 {
		regOpts = append(regOpts, registry.WithShards(o.shards))
	}
	regOpts = append(regOpts, o.registryOps...)
	c.registry = registry.New(v, regOpts...)
	return c
}

// Kind returns the transport kind this client serves.
func (c *Client[H]) Kind() string { return c.kind }

// Registry exposes the session registry, mainly for sweeps and counts.
func (c *Client[H]) Registry() *registry.Registry { return c.registry }

// PoolLen returns the number of live pooled handles.
func (c *Client[H]) PoolLen() int { return c.pool.Len() }

// Connect dials a new connection and registers a fresh session for it.
// Nothing is left behind on failure.
func (c *Client[H]) Connect(ctx context.Context, params vault.Params) (string, error) {
	h, err := c.dial(ctx, params)
	if err != nil {
		c.observer.Observe(c.kind, EventConnectFailed)
		return "", err
	}

	id, err := c.newID()
	if err != nil {
		h.Close()
		c.observer.Observe(c.kind, EventConnectFailed)
		return "", fmt.Errorf("generating session id: %w", err)
	}

	if prev, replaced := c.pool.Put(id, h); replaced {
		prev.Close()
	}
	if err := c.registry.Register(ctx, id, params); err != nil {
		c.pool.Discard(id, h)
		c.observer.Observe(c.kind, EventConnectFailed)
		return "", fmt.Errorf("registering session: %w", err)
	}
	c.registry.Touch(id)

	c.observer.Observe(c.kind, EventConnect)
	c.logger.Info("session connected", "session_id", internal.ShortID(id))
	return id, nil
}

// Use runs op on the session's connection, reconnecting first if needed.
func (c *Client[H]) Use(ctx context.Context, id string, op Op[H]) error {
	if !c.registry.Alive(ctx, id) {
		c.pool.Remove(id)
		return internal.ErrSessionUnknownOrExpired
	}

	h, ok := c.pool.Get(id)
	if ok && h.Alive() {
		c.observer.Observe(c.kind, EventPoolHit)
	} else {
		if ok {
			c.logger.Info("pooled connection dead, reconnecting", "session_id", internal.ShortID(id))
			c.pool.Discard(id, h)
		}
		var err error
		h, err = c.reconnect(ctx, id)
		if err != nil {
			return err
		}
	}

	return c.run(ctx, id, h, op)
}

func (c *Client[H]) run(ctx context.Context, id string, h H, op Op[H]) error {
	err := op(ctx, h)
	if err == nil {
		c.registry.Touch(id)
		return nil
	}

	switch Classify(err) {
	case ClassTimeout:
		c.pool.Discard(id, h)
		c.observer.Observe(c.kind, EventTimeout)
		c.logger.Warn("operation timed out, connection closed", "session_id", internal.ShortID(id))
		if errors.Is(err, internal.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", internal.ErrTimeout, err)
	case ClassTransport:
		c.pool.Discard(id, h)
		c.observer.Observe(c.kind, EventTransportError)
		c.logger.Warn("connection failed during operation",
			"session_id", internal.ShortID(id),
			"error", err,
		)
		if errors.Is(err, internal.ErrTransport) {
			return err
		}
		return fmt.Errorf("%w: %v", internal.ErrTransport, err)
	default:
		return err
	}
}

// reconnect collapses concurrent pool misses for id into a single dial.
func (c *Client[H]) reconnect(ctx context.Context, id string) (H, error) {
	v, err, _ := c.flights.Do(id, func() (any, error) {
		if h, ok := c.pool.Get(id); ok && h.Alive() {
			return h, nil
		}

		params, ok := c.registry.GetParams(ctx, id)
		if !ok {
			c.pool.Remove(id)
			return nil, internal.ErrSessionUnknownOrExpired
		}

		// Waiters share this dial, so one caller's cancellation must not
		// fail the others. Drivers bound the dial with their own timeout.
		h, err := c.dial(context.WithoutCancel(ctx), params)
		if err != nil {
			c.observer.Observe(c.kind, EventReconnectFailed)
			if errors.Is(err, internal.ErrValidation) {
				// The vaulted params will fail the same way on every attempt.
				c.logger.Warn("stored parameters rejected, evicting session",
					"session_id", internal.ShortID(id),
					"error", err,
				)
				c.registry.Invalidate(ctx, id)
				return nil, err
			}
			c.logger.Warn("reconnect failed",
				"session_id", internal.ShortID(id),
				"error", err,
			)
			if errors.Is(err, internal.ErrTransport) || errors.Is(err, internal.ErrTimeout) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: reconnect: %v", internal.ErrTransport, err)
		}

		if prev, replaced := c.pool.Put(id, h); replaced && prev != h {
			prev.Close()
		}
		// A disconnect that raced the dial has already run the evict hook,
		// so the handle just pooled would be orphaned.
		if !c.registry.Alive(ctx, id) {
			c.pool.Discard(id, h)
			return nil, internal.ErrSessionUnknownOrExpired
		}

		c.observer.Observe(c.kind, EventReconnect)
		c.logger.Info("session reconnected", "session_id", internal.ShortID(id))
		return h, nil
	})
	if err != nil {
		var zero H
		return zero, err
	}
	return v.(H), nil
}

// Disconnect closes the session's connection and forgets the session.
// Disconnecting an unknown session is not an error.
func (c *Client[H]) Disconnect(ctx context.Context, id string) error {
	if err := c.pool.Remove(id); err != nil {
		c.logger.Debug("close on disconnect failed", "session_id", internal.ShortID(id), "error", err)
	}
	if err := c.registry.Evict(ctx, id); err != nil {
		return err
	}
	c.observer.Observe(c.kind, EventDisconnect)
	return nil
}

// DisconnectAll closes every pooled connection and evicts every session.
func (c *Client[H]) DisconnectAll(ctx context.Context) {
	ids, err := c.pool.RemoveAll()
	if err != nil {
		c.logger.Debug("close errors during teardown", "error", err)
	}
	evicted := c.registry.EvictAll(ctx)
	c.logger.Info("all sessions disconnected",
		"closed_connections", len(ids),
		"evicted_sessions", len(evicted),
	)
}

// EvictExpired runs the registry's lazy expiry sweep; pooled handles of the
// evicted sessions are closed through the evict hook.
func (c *Client[H]) EvictExpired(ctx context.Context) []string {
	return c.registry.EvictExpired(ctx)
}

func (c *Client[H]) onEvict(id string, reason registry.Reason) {
	if err := c.pool.Remove(id); err != nil {
		c.logger.Debug("close on evict failed", "session_id", internal.ShortID(id), "error", err)
	}
	if reason == registry.ReasonExpired {
		c.observer.Observe(c.kind, EventExpired)
	}
}
