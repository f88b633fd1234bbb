package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"inspection-chat/models"
)

// EventType names what changed in a session
type EventType string

const (
	EventMessage      EventType = "message"
	EventPhase        EventType = "phase"
	EventNavigate     EventType = "navigate"
	EventReachability EventType = "reachability"
)

// Event is a state change published to UI subscribers
type Event struct {
	Type      EventType        `json:"type"`
	SessionID uuid.UUID        `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Message   *models.Message  `json:"message,omitempty"`
	Phase     models.Phase     `json:"phase,omitempty"`
	Target    models.NavTarget `json:"target,omitempty"`
	Reachable *bool            `json:"reachable,omitempty"`
}

// broker fans events out to subscribers; a full subscriber misses events instead of blocking
type broker struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[chan Event]struct{})}
}

func (b *broker) publish(ev Event) {
	ev.Timestamp = time.Now()
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.RUnlock()
}

func (b *broker) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if b.closed {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
