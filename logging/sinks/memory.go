package sinks

import (
	"context"
	"sync"

	"netsync/logging"
)

// MemorySink keeps events in process for tests and /diagnostics. A bounded
// sink keeps only the newest Capacity events.
type MemorySink struct {
	mu       sync.RWMutex
	events   []logging.Event
	capacity int
	start    int
}

// NewMemorySink keeps every event.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// NewBoundedMemorySink keeps the newest capacity events. A non-positive
// capacity keeps every event.
func NewBoundedMemorySink(capacity int) *MemorySink {
	if capacity < 0 {
		capacity = 0
	}
	return &MemorySink{capacity: capacity, events: make([]logging.Event, 0, capacity)}
}

func (s *MemorySink) Write(event logging.Event) error {
	event = cloneForMemory(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.events) == s.capacity {
		s.events[s.start] = event
		s.start = (s.start + 1) % s.capacity
		return nil
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns retained events oldest first.
func (s *MemorySink) Events() []logging.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]logging.Event, 0, len(s.events))
	out = append(out, s.events[s.start:]...)
	return append(out, s.events[:s.start]...)
}

// Recent returns at most limit events, newest last.
func (s *MemorySink) Recent(limit int) []logging.Event {
	events := s.Events()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

// OfType returns retained events of the given types, oldest first.
func (s *MemorySink) OfType(types ...logging.EventType) []logging.Event {
	var out []logging.Event
	for _, event := range s.Events() {
		for _, t := range types {
			if event.Type == t {
				out = append(out, event)
				break
			}
		}
	}
	return out
}

func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = s.events[:0]
	s.start = 0
}

func (s *MemorySink) Close(context.Context) error {
	return nil
}

func cloneForMemory(event logging.Event) logging.Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]logging.EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}
