// eventsink.go provides an in-memory implementation of EventSink.
//
// Published events are kept in order for inspection. OnPublish registers a
// callback for test assertions. For production, use the sns adapter.
package memory

import (
	"context"
	"sync"

	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink stores every published event in memory.
type EventSink struct {
	mu        sync.RWMutex
	events    []outbound.Event
	closed    bool
	onPublish func(outbound.Event)
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{events: make([]outbound.Event, 0)}
}

// Publish stores the event. Events published after Close are dropped.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.events = append(s.events, event)
	cb := s.onPublish
	s.mu.Unlock()

	if cb != nil {
		cb(event)
	}
	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetEvents returns all published events.
func (s *EventSink) GetEvents() []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.Event, len(s.events))
	copy(result, s.events)
	return result
}

// GetBindingEvents returns all binding-completed events.
func (s *EventSink) GetBindingEvents() []outbound.BindingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.BindingEvent, 0)
	for _, e := range s.events {
		if be, ok := e.(outbound.BindingEvent); ok {
			result = append(result, be)
		}
	}
	return result
}

// GetVerificationEvents returns all verification-checked events.
func (s *EventSink) GetVerificationEvents() []outbound.VerificationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.VerificationEvent, 0)
	for _, e := range s.events {
		if ve, ok := e.(outbound.VerificationEvent); ok {
			result = append(result, ve)
		}
	}
	return result
}

// OnPublish sets a callback invoked after each stored event.
func (s *EventSink) OnPublish(fn func(outbound.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}
