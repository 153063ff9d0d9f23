package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int

	// DropIfFull makes Emit return immediately when the buffer is full.
	// Otherwise Emit waits for room or for its context to end.
	DropIfFull bool

	// Logger receives drop and sink failure reports. Nil discards them.
	Logger *slog.Logger
}

// Dispatcher relays events to a Sink from one background goroutine.
// Credential-like metadata is redacted before an event is queued.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	dropIfFull bool

	queue   chan Event
	quit    chan struct{}
	stopped chan struct{}

	dropped     atomic.Uint64
	sinkPanics  atomic.Uint64
	closing     atomic.Bool
	stopStarted sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
// All methods are safe on a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.quit:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver keeps a panicking sink from taking the dispatcher goroutine down.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			d.logger.Error("audit sink panicked",
				"event_type", event.EventType,
				"kind", event.Kind,
				"session_id", event.SessionID,
				"request_id", event.RequestID,
				"panic", r,
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. Events emitted after Close are discarded silently.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = Redact(event)

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.drop(event, "buffer_full")
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.quit:
	case <-ctx.Done():
		d.drop(event, "context_done")
	}
}

// drop counts a lost event and logs the 1st, 2nd, 4th, 8th... occurrence so
// a saturated buffer cannot flood the log.
func (d *Dispatcher) drop(event Event, reason string) {
	n := d.dropped.Add(1)
	if n&(n-1) != 0 {
		return
	}
	d.logger.Warn("audit event dropped",
		"reason", reason,
		"event_type", event.EventType,
		"kind", event.Kind,
		"session_id", event.SessionID,
		"request_id", event.RequestID,
		"dropped_total", n,
	)
}

// Close stops accepting events, delivers what is queued and waits for the
// sink to finish. Close is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopStarted.Do(func() {
		d.closing.Store(true)
		close(d.quit)
		<-d.stopped
		if n := d.dropped.Load(); n > 0 {
			d.logger.Warn("audit dispatcher closed", "dropped_total", n)
		}
	})
}

// Dropped returns how many events never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SinkPanics returns how many deliveries panicked inside the sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}
