package engine

import (
	"sync"
	"time"

	"github.com/germanamz/relay/pkg/agent"
)

// EventKind identifies the type of engine event.
type EventKind string

const (
	EventRunStart EventKind = "run_start"
	EventStep     EventKind = "step"
	EventRunEnd   EventKind = "run_end"
	EventError    EventKind = "error"
)

// Event is an immutable notification of engine activity. Step is set for
// EventStep, Err for EventError and Answer for EventRunEnd.
type Event struct {
	Kind      EventKind
	SessionID string
	RunID     string
	Agent     string
	Timestamp time.Time
	Step      agent.Step
	Answer    string
	Err       error
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C       <-chan Event
	ch      chan Event
	session string
}

func (s *Subscription) accepts(e Event) bool {
	return s.session == "" || s.session == e.SessionID
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	return b.subscribe("", bufSize)
}

// SubscribeSession is like Subscribe but only receives the events of the
// given session.
func (b *EventBus) SubscribeSession(sessionID string, bufSize int) *Subscription {
	return b.subscribe(sessionID, bufSize)
}

func (b *EventBus) subscribe(session string, bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch, session: session}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. If a subscriber's buffer is full
// the event is dropped for that subscriber so a slow consumer never stalls
// the agent loop.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.accepts(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
}
