package audit

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// Event is one session lifecycle record. SessionID is already shortened by
// the emitter; full session tokens never reach an audit sink.
type Event struct {
	EventID   string            `json:"event_id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Kind      string            `json:"kind,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Target    string            `json:"target,omitempty"`
	IP        string            `json:"ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Principal string            `json:"principal,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Redacted is the value written in place of credential-like metadata.
const Redacted = "[redacted]"

var credentialMarkers = []string{"password", "passphrase", "privatekey", "secret", "token"}

var keyFolder = strings.NewReplacer("_", "", "-", "", ".", "")

// IsCredentialKey reports whether a metadata key names connection secrets.
// Matching ignores case and the separators _ - and .
func IsCredentialKey(key string) bool {
	folded := strings.ToLower(keyFolder.Replace(key))
	for _, marker := range credentialMarkers {
		if strings.Contains(folded, marker) {
			return true
		}
	}
	return false
}

// Redact returns event with credential-like metadata values replaced. The
// metadata map is copied only when something has to change, so callers may
// keep sharing the original.
func Redact(event Event) Event {
	var out map[string]string
	for k := range event.Metadata {
		if !IsCredentialKey(k) {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(event.Metadata))
			for k2, v2 := range event.Metadata {
				out[k2] = v2
			}
		}
		out[k] = Redacted
	}
	if out != nil {
		event.Metadata = out
	}
	return event
}

// Sink receives audit events. Emit is called from a single dispatcher
// goroutine and should not block for long.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer goroutine through a buffered
// channel. A full channel blocks until ctx ends.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- Redact(event):
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. Each line goes out in a
// single Write so concurrent sinks sharing w do not interleave records.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(Redact(event))
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}
