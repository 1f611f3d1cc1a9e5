package telemetry

import (
	"testing"
	"time"
)

type mapMetrics struct {
	added  map[string]uint64
	stored map[string]uint64
}

func newMapMetrics() *mapMetrics {
	return &mapMetrics{added: make(map[string]uint64), stored: make(map[string]uint64)}
}

func (m *mapMetrics) Add(key string, delta uint64)   { m.added[key] += delta }
func (m *mapMetrics) Store(key string, value uint64) { m.stored[key] = value }

func TestCountersForwardToMetrics(t *testing.T) {
	metrics := newMapMetrics()
	counters := NewCounters(metrics)

	counters.RecordCommit(false)
	counters.RecordCommit(true)
	counters.RecordCommitRequest()
	counters.RecordAuthorityViolation()
	counters.RecordSend(12)
	counters.RecordSend(-4)
	counters.RecordTickDuration(7 * time.Millisecond)

	snapshot := counters.Snapshot()
	if snapshot.CommitsApplied != 1 || snapshot.RemoteApplied != 1 {
		t.Fatalf("unexpected commit counts: %+v", snapshot)
	}
	if snapshot.CommitRequests != 1 || snapshot.AuthorityViolations != 1 {
		t.Fatalf("unexpected request counts: %+v", snapshot)
	}
	if snapshot.BytesSent != 12 {
		t.Fatalf("expected negative sizes to be ignored, got %d bytes", snapshot.BytesSent)
	}
	if metrics.added[MetricCommitsApplied] != 1 || metrics.added[MetricRemoteApplied] != 1 {
		t.Fatalf("unexpected forwarded metrics: %+v", metrics.added)
	}
	if metrics.stored[MetricTickDurationMillis] != 7 {
		t.Fatalf("expected tick duration gauge, got %+v", metrics.stored)
	}
}

func TestNilCountersAreSafe(t *testing.T) {
	var counters *Counters
	counters.RecordCommit(true)
	counters.RecordDrop()
	if streak := counters.RecordTickBudgetOverrun(time.Second, time.Millisecond); streak != 0 {
		t.Fatalf("expected zero streak from nil counters, got %d", streak)
	}
	if snapshot := counters.Snapshot(); snapshot.CommitsApplied != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestTickBudgetOverrunStreaks(t *testing.T) {
	counters := NewCounters(nil)
	budget := time.Second / 60

	if streak := counters.RecordTickBudgetOverrun(budget+budget/2, budget); streak != 1 {
		t.Fatalf("expected first streak to be 1, got %d", streak)
	}
	overrunDuration := 4 * budget
	if streak := counters.RecordTickBudgetOverrun(overrunDuration, budget); streak != 2 {
		t.Fatalf("expected second streak to be 2, got %d", streak)
	}

	tickBudget := counters.Snapshot().TickBudget
	if tickBudget.BudgetMillis != budget.Milliseconds() {
		t.Fatalf("unexpected budget millis: got %d want %d", tickBudget.BudgetMillis, budget.Milliseconds())
	}
	if tickBudget.CurrentStreak != 2 || tickBudget.MaxStreak != 2 {
		t.Fatalf("expected streaks of 2, got %+v", tickBudget)
	}
	if tickBudget.LastOverrunMillis != overrunDuration.Milliseconds() {
		t.Fatalf("expected last overrun millis %d, got %d", overrunDuration.Milliseconds(), tickBudget.LastOverrunMillis)
	}
	if count := tickBudget.Overruns["over_1_5x"]; count != 1 {
		t.Fatalf("expected over_1_5x bucket to be 1, got %d", count)
	}
	if count := tickBudget.Overruns["over_gt3x"]; count != 1 {
		t.Fatalf("expected over_gt3x bucket to be 1, got %d", count)
	}

	counters.ResetTickBudgetOverrunStreak()
	tickBudget = counters.Snapshot().TickBudget
	if tickBudget.CurrentStreak != 0 {
		t.Fatalf("expected current streak to reset to 0, got %d", tickBudget.CurrentStreak)
	}
	if tickBudget.MaxStreak != 2 {
		t.Fatalf("expected max streak to persist, got %d", tickBudget.MaxStreak)
	}
}

func TestRecordJournalDropForwardsMetricKey(t *testing.T) {
	metrics := newMapMetrics()
	counters := NewCounters(metrics)

	counters.RecordJournalDrop("journal_evicted_capacity_total")
	counters.RecordJournalDrop("")

	if got := counters.Snapshot().JournalDrops; got != 1 {
		t.Fatalf("expected one journal drop, got %d", got)
	}
	if got := metrics.added["journal_evicted_capacity_total"]; got != 1 {
		t.Fatalf("expected metric key to be forwarded, got %d", got)
	}
}
