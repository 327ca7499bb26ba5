package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a verification-state transition, consumed by the UI
// collaborator to drive accept/retake prompts.
type Event struct {
	SessionID uuid.UUID `json:"session_id"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    Reason    `json:"reason"`
	At        time.Time `json:"at"`
}

// broadcaster fans transition events out to subscribers. Slow subscribers
// drop events rather than block transitions.
type broadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
}

// AddListener registers a new event channel.
func (b *broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 16)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener unregisters and closes an event channel.
func (b *broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// send delivers an event to all listeners without blocking.
func (b *broadcaster) send(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}
