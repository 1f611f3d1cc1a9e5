package telemetry

import (
	"bytes"
	"log"
	"testing"

	"netsync/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		WrapLogger(nil).Printf("ignored %d", 42)
		Discard.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		WrapLogger(log.New(&buf, "", 0)).Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
	})
}

func TestPrefixed(t *testing.T) {
	var buf bytes.Buffer
	base := WrapLogger(log.New(&buf, "", 0))

	Prefixed(base, "client-1").Printf("spawned %d", 3)
	Prefixed(base, "").Printf("plain")
	Prefixed(nil, "x").Printf("dropped")

	if got := buf.String(); got != "[client-1] spawned 3\nplain\n" {
		t.Fatalf("unexpected log output: %q", got)
	}
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add("commits", 2)
	adapter.Store("commits", 5)
	adapter.Add("commits", 3)

	if got := metrics.Snapshot()["commits"]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	nilAdapter := WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
}

func TestScopedMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	scoped := ScopedMetrics(WrapMetrics(&metrics), "ws_")

	scoped.Add("messages_sent", 4)
	scoped.Store("clients", 2)

	snapshot := metrics.Snapshot()
	if snapshot["ws_messages_sent"] != 4 || snapshot["ws_clients"] != 2 {
		t.Fatalf("unexpected scoped metrics: %v", snapshot)
	}
	if ScopedMetrics(nil, "ws") != nil {
		t.Fatalf("expected nil metrics to stay nil")
	}
}
