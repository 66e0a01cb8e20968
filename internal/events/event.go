package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event consumed by the dashboard store
type Type string

const (
	TopicsRequest Type = "TOPICS_REQUEST"
	TopicsSuccess Type = "TOPICS_SUCCESS"
	TopicsFailure Type = "TOPICS_FAILURE"
	ProxyAdvance  Type = "PROXY_ADVANCE"
	ProxyClear    Type = "PROXY_CLEAR"
)

// Terminal reports whether t closes a topics request
func (t Type) Terminal() bool {
	return t == TopicsSuccess || t == TopicsFailure
}

// Event is a single store action. RequestID ties topics events to the
// FetchTopics invocation that produced them and grows with every invocation.
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	RequestID uint64      `json:"request_id,omitempty"`
	Network   string      `json:"network,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	At        time.Time   `json:"at"`
	Payload   interface{} `json:"payload,omitempty"`

	// Relayed is set on events received from another instance
	Relayed bool `json:"-"`
}

// New creates an event with a fresh id and timestamp
func New(t Type, payload interface{}) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    t,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

// FailurePayload is the body of TOPICS_FAILURE
type FailurePayload struct {
	Error string `json:"error"`
}

// NewFailure builds a TOPICS_FAILURE payload from err
func NewFailure(err error) FailurePayload {
	return FailurePayload{Error: SanitizeUTF8(err.Error())}
}

// SanitizeUTF8 drops invalid UTF-8 sequences. Backend error bodies end up in
// failure payloads and protobuf strings must be valid UTF-8.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// Dispatcher receives store actions. Implementations must not block for long
// and handle their own delivery errors.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event)
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, e Event)

func (f DispatcherFunc) Dispatch(ctx context.Context, e Event) {
	f(ctx, e)
}

// Discard drops every event
var Discard Dispatcher = DispatcherFunc(func(context.Context, Event) {})

// Fanout dispatches every event to each dispatcher in order
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, e Event) {
	for _, d := range f {
		if d != nil {
			d.Dispatch(ctx, e)
		}
	}
}

// Recorder keeps every dispatched event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Dispatch(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in dispatch order
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
