package logging

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), s.closed
}

func newTestRouter(t *testing.T, cfg Config, sinks map[string]Sink) *Router {
	t.Helper()
	clock := ClockFunc(func() time.Time { return time.Unix(42, 0) })
	router, err := NewRouter(cfg, clock, log.New(io.Discard, "", 0), sinks)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func TestRouterDeliversToEverySinkOnClose(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	cfg := DefaultConfig()
	cfg.Fields = map[string]any{"service": "netsync"}
	router := newTestRouter(t, cfg, map[string]Sink{"a": a, "b": b})

	router.Publish(context.Background(), Event{Type: "test.info", Severity: SeverityInfo, Extra: map[string]any{"service": "override"}})
	router.Publish(context.Background(), Event{Type: "test.debug", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Severity: SeverityError})

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	for name, sink := range map[string]*recordingSink{"a": a, "b": b} {
		events, closed := sink.snapshot()
		if !closed {
			t.Fatalf("sink %s not closed", name)
		}
		if len(events) != 1 {
			t.Fatalf("sink %s: expected only the info event, got %+v", name, events)
		}
		if events[0].Time != time.Unix(42, 0) {
			t.Fatalf("sink %s: expected router clock to stamp time, got %v", name, events[0].Time)
		}
		if events[0].Extra["service"] != "override" {
			t.Fatalf("sink %s: router field should not override event extra, got %v", name, events[0].Extra)
		}
	}

	stats := router.Stats()
	if stats.EventsTotal != 1 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if got := router.Metrics().Snapshot()["logging_events_total"]; got != 1 {
		t.Fatalf("expected logging_events_total=1, got %d", got)
	}
}

func TestRouterIgnoresPublishAfterClose(t *testing.T) {
	sink := &recordingSink{}
	router := newTestRouter(t, DefaultConfig(), map[string]Sink{"memory": sink})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	router.Publish(context.Background(), Event{Type: "late", Severity: SeverityError})

	if events, _ := sink.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events after close, got %+v", events)
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if router.Sink("memory") != sink || router.Sink("missing") != nil {
		t.Fatal("unexpected sink lookup result")
	}
}

func TestWithFieldsAddsMissingExtras(t *testing.T) {
	var got []Event
	base := PublisherFunc(func(_ context.Context, event Event) { got = append(got, event) })
	pub := WithFields(base, map[string]any{"participant": "p1", "run": "r1"})

	original := Event{Type: "x", Extra: map[string]any{"run": "mine"}}
	pub.Publish(context.Background(), original)

	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	if got[0].Extra["participant"] != "p1" || got[0].Extra["run"] != "mine" {
		t.Fatalf("unexpected extras: %v", got[0].Extra)
	}
	if _, leaked := original.Extra["participant"]; leaked {
		t.Fatal("publisher mutated the caller's event")
	}
	if WithFields(nil, nil) == nil {
		t.Fatal("expected nop publisher for nil base")
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{"": SeverityInfo, "DEBUG": SeverityDebug, " warning ": SeverityWarn, "error": SeverityError}
	for raw, want := range cases {
		got, err := ParseSeverity(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSeverity(%q) = %v, %v; want %v", raw, got, err, want)
		}
	}
	if _, err := ParseSeverity("loud"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
}

func TestRouterAppliesPerSinkFloors(t *testing.T) {
	console, memory := &recordingSink{}, &recordingSink{}
	cfg := DefaultConfig()
	cfg.MinimumSeverity = SeverityDebug
	cfg.SinkSeverity = map[string]Severity{"memory": SeverityWarn}
	router := newTestRouter(t, cfg, map[string]Sink{"console": console, "memory": memory})

	router.Publish(context.Background(), Event{Type: "debug", Severity: SeverityDebug})
	router.Publish(context.Background(), Event{Type: "warn", Severity: SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if events, _ := console.snapshot(); len(events) != 2 {
		t.Fatalf("console: expected both events, got %d", len(events))
	}
	events, _ := memory.snapshot()
	if len(events) != 1 || events[0].Type != "warn" {
		t.Fatalf("memory: expected only the warning, got %+v", events)
	}
	stats := router.Stats()
	if stats.Sinks["console"].Delivered != 2 || stats.Sinks["memory"].Delivered != 1 {
		t.Fatalf("unexpected sink stats: %+v", stats.Sinks)
	}
}

func TestRouterStampsTraceIDFromContext(t *testing.T) {
	sink := &recordingSink{}
	router := newTestRouter(t, DefaultConfig(), map[string]Sink{"memory": sink})

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{1}, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	router.Publish(ctx, Event{Type: "traced", Severity: SeverityWarn})
	router.Publish(context.Background(), Event{Type: "untraced", Severity: SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	events, _ := sink.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].TraceID != traceID.String() || events[1].TraceID != "" {
		t.Fatalf("unexpected trace ids: %q %q", events[0].TraceID, events[1].TraceID)
	}
}
