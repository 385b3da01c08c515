// Package stream fans out parking occupancy events to SSE subscribers so
// open consoles can refresh without polling.
package stream

import (
	"context"
	"sync"
	"time"
)

// Actions carried by SlotEvent.
const (
	ActionAssigned    = "assigned"
	ActionFreed       = "freed"
	ActionProvisioned = "provisioned"
)

// SlotEvent describes a change in a slot's occupancy or provisioning state.
type SlotEvent struct {
	Action    string    `json:"action"`
	FloorID   int64     `json:"floorId,omitempty"`
	SlotID    int64     `json:"slotId,omitempty"`
	UserID    int64     `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs slot events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan SlotEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan SlotEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SlotEvent {
	ch := make(chan SlotEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt SlotEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
