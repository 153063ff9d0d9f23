package reconnect

// Event is something a Client did that callers may want to count.
type Event int

const (
	EventConnect Event = iota
	EventConnectFailed
	EventPoolHit
	EventReconnect
	EventReconnectFailed
	EventTimeout
	EventTransportError
	EventExpired
	EventDisconnect
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventConnectFailed:
		return "connect_failed"
	case EventPoolHit:
		return "pool_hit"
	case EventReconnect:
		return "reconnect"
	case EventReconnectFailed:
		return "reconnect_failed"
	case EventTimeout:
		return "timeout"
	case EventTransportError:
		return "transport_error"
	case EventExpired:
		return "expired"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Observer receives client events. Implementations must be fast and safe
// for concurrent use; they run inline on the calling goroutine.
type Observer interface {
	Observe(kind string, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(kind string, event Event)

func (f ObserverFunc) Observe(kind string, event Event) { f(kind, event) }

type noopObserver struct{}

func (noopObserver) Observe(string, Event) {}
