package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"netsync/logging"
)

// JSON emits newline-delimited records, flushing every MaxBatch events and
// on FlushInterval. A zero interval flushes after every event.
type JSON struct {
	mu       sync.Mutex
	writer   *bufio.Writer
	encoder  *json.Encoder
	maxBatch int
	pending  int
	eager    bool

	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

type jsonRecord struct {
	Time     string              `json:"time"`
	Severity string              `json:"severity"`
	Type     logging.EventType   `json:"type"`
	Category string              `json:"category,omitempty"`
	Tick     uint64              `json:"tick"`
	Actor    *logging.EntityRef  `json:"actor,omitempty"`
	Targets  []logging.EntityRef `json:"targets,omitempty"`
	Payload  any                 `json:"payload,omitempty"`
	Extra    map[string]any      `json:"extra,omitempty"`
	TraceID  string              `json:"traceId,omitempty"`
}

// NewJSON constructs a JSON sink writing to w.
func NewJSON(w io.Writer, cfg logging.JSONConfig) *JSON {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	sink := &JSON{
		writer:   buf,
		encoder:  json.NewEncoder(buf),
		maxBatch: cfg.MaxBatch,
		eager:    cfg.FlushInterval <= 0,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if sink.eager {
		close(sink.stopped)
	} else {
		go sink.flushEvery(cfg.FlushInterval)
	}
	return sink
}

// Write satisfies logging.Sink.
func (s *JSON) Write(event logging.Event) error {
	record := jsonRecord{
		Time:     event.Time.UTC().Format(time.RFC3339Nano),
		Severity: event.Severity.String(),
		Type:     event.Type,
		Category: event.Category,
		Tick:     event.Tick,
		Targets:  event.Targets,
		Payload:  event.Payload,
		Extra:    event.Extra,
		TraceID:  event.TraceID,
	}
	if event.Actor.ID != "" {
		actor := event.Actor
		record.Actor = &actor
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(record); err != nil {
		return err
	}
	s.pending++
	if s.eager || (s.maxBatch > 0 && s.pending >= s.maxBatch) {
		return s.flushLocked()
	}
	return nil
}

// Close stops the background flusher and flushes what is buffered.
func (s *JSON) Close(context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.stopped
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *JSON) flushLocked() error {
	s.pending = 0
	return s.writer.Flush()
}

func (s *JSON) flushEvery(interval time.Duration) {
	defer close(s.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.pending > 0 {
				s.flushLocked()
			}
			s.mu.Unlock()
		}
	}
}
