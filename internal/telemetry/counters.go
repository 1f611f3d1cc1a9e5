package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metric keys mirrored into Metrics by Counters.
const (
	MetricCommitsApplied      = "replication_commits_applied_total"
	MetricRemoteApplied       = "replication_remote_applied_total"
	MetricCommitRequests      = "replication_commit_requests_total"
	MetricAuthorityViolations = "replication_authority_violations_total"
	MetricStaleUpdates        = "replication_stale_updates_total"
	MetricEventsFired         = "replication_events_fired_total"
	MetricEventsRelayed       = "replication_events_relayed_total"
	MetricEventsExecuted      = "replication_events_executed_total"
	MetricBytesSent           = "transport_bytes_sent_total"
	MetricMessagesDropped     = "transport_messages_dropped_total"
	MetricTickDurationMillis  = "sim_tick_duration_millis"
	MetricTickBudgetOverruns  = "sim_tick_budget_overruns_total"
)

// Counters tracks replication activity for a single participant process.
type Counters struct {
	commitsApplied      atomic.Uint64
	remoteApplied       atomic.Uint64
	commitRequests      atomic.Uint64
	authorityViolations atomic.Uint64
	staleUpdates        atomic.Uint64
	eventsFired         atomic.Uint64
	eventsRelayed       atomic.Uint64
	eventsExecuted      atomic.Uint64
	bytesSent           atomic.Uint64
	messagesDropped     atomic.Uint64
	journalDrops        atomic.Uint64
	tickDurationMillis  atomic.Int64

	budgetMu sync.Mutex
	budget   TickBudgetSnapshot

	metrics Metrics
}

// TickBudgetSnapshot summarises simulation ticks that ran past their budget.
type TickBudgetSnapshot struct {
	BudgetMillis      int64             `json:"budgetMillis"`
	CurrentStreak     uint64            `json:"currentStreak"`
	MaxStreak         uint64            `json:"maxStreak"`
	LastOverrunMillis int64             `json:"lastOverrunMillis"`
	Overruns          map[string]uint64 `json:"overruns,omitempty"`
}

// CountersSnapshot is the JSON view exposed on diagnostics.
type CountersSnapshot struct {
	CommitsApplied      uint64 `json:"commitsApplied"`
	RemoteApplied       uint64 `json:"remoteApplied"`
	CommitRequests      uint64 `json:"commitRequests"`
	AuthorityViolations uint64 `json:"authorityViolations"`
	StaleUpdates        uint64 `json:"staleUpdates"`
	EventsFired         uint64 `json:"eventsFired"`
	EventsRelayed       uint64 `json:"eventsRelayed"`
	EventsExecuted      uint64 `json:"eventsExecuted"`
	BytesSent           uint64 `json:"bytesSent"`
	MessagesDropped     uint64 `json:"messagesDropped"`
	JournalDrops        uint64 `json:"journalDrops"`
	TickDuration        int64  `json:"tickDurationMillis"`

	TickBudget TickBudgetSnapshot `json:"tickBudget"`
}

// NewCounters constructs counters that also forward to metrics when non-nil.
func NewCounters(metrics Metrics) *Counters {
	return &Counters{metrics: metrics}
}

func (c *Counters) bump(counter *atomic.Uint64, key string, delta uint64) {
	if c == nil {
		return
	}
	counter.Add(delta)
	if c.metrics != nil {
		c.metrics.Add(key, delta)
	}
}

func (c *Counters) RecordCommit(remote bool) {
	if c == nil {
		return
	}
	if remote {
		c.bump(&c.remoteApplied, MetricRemoteApplied, 1)
		return
	}
	c.bump(&c.commitsApplied, MetricCommitsApplied, 1)
}

func (c *Counters) RecordCommitRequest() {
	if c == nil {
		return
	}
	c.bump(&c.commitRequests, MetricCommitRequests, 1)
}

func (c *Counters) RecordAuthorityViolation() {
	if c == nil {
		return
	}
	c.bump(&c.authorityViolations, MetricAuthorityViolations, 1)
}

func (c *Counters) RecordStaleUpdate() {
	if c == nil {
		return
	}
	c.bump(&c.staleUpdates, MetricStaleUpdates, 1)
}

func (c *Counters) RecordEventFired() {
	if c == nil {
		return
	}
	c.bump(&c.eventsFired, MetricEventsFired, 1)
}

func (c *Counters) RecordEventRelayed() {
	if c == nil {
		return
	}
	c.bump(&c.eventsRelayed, MetricEventsRelayed, 1)
}

func (c *Counters) RecordEventExecuted() {
	if c == nil {
		return
	}
	c.bump(&c.eventsExecuted, MetricEventsExecuted, 1)
}

func (c *Counters) RecordSend(bytes int) {
	if c == nil || bytes <= 0 {
		return
	}
	c.bump(&c.bytesSent, MetricBytesSent, uint64(bytes))
}

func (c *Counters) RecordDrop() {
	if c == nil {
		return
	}
	c.bump(&c.messagesDropped, MetricMessagesDropped, 1)
}

// RecordJournalDrop counts a journal eviction under its metric key.
func (c *Counters) RecordJournalDrop(metric string) {
	if c == nil || metric == "" {
		return
	}
	c.bump(&c.journalDrops, metric, 1)
}

func (c *Counters) RecordTickDuration(duration time.Duration) {
	if c == nil {
		return
	}
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	c.tickDurationMillis.Store(millis)
	if c.metrics != nil {
		c.metrics.Store(MetricTickDurationMillis, uint64(millis))
	}
}

func (c *Counters) Snapshot() CountersSnapshot {
	if c == nil {
		return CountersSnapshot{}
	}
	return CountersSnapshot{
		CommitsApplied:      c.commitsApplied.Load(),
		RemoteApplied:       c.remoteApplied.Load(),
		CommitRequests:      c.commitRequests.Load(),
		AuthorityViolations: c.authorityViolations.Load(),
		StaleUpdates:        c.staleUpdates.Load(),
		EventsFired:         c.eventsFired.Load(),
		EventsRelayed:       c.eventsRelayed.Load(),
		EventsExecuted:      c.eventsExecuted.Load(),
		BytesSent:           c.bytesSent.Load(),
		MessagesDropped:     c.messagesDropped.Load(),
		JournalDrops:        c.journalDrops.Load(),
		TickDuration:        c.tickDurationMillis.Load(),
		TickBudget:          c.tickBudget(),
	}
}

// RecordTickBudgetOverrun notes a tick that took longer than budget and
// returns the current consecutive overrun streak.
func (c *Counters) RecordTickBudgetOverrun(duration, budget time.Duration) uint64 {
	if c == nil {
		return 0
	}
	c.budgetMu.Lock()
	c.budget.BudgetMillis = budget.Milliseconds()
	c.budget.CurrentStreak++
	if c.budget.CurrentStreak > c.budget.MaxStreak {
		c.budget.MaxStreak = c.budget.CurrentStreak
	}
	c.budget.LastOverrunMillis = duration.Milliseconds()
	if c.budget.Overruns == nil {
		c.budget.Overruns = make(map[string]uint64)
	}
	c.budget.Overruns[overrunBucket(duration, budget)]++
	streak := c.budget.CurrentStreak
	c.budgetMu.Unlock()
	if c.metrics != nil {
		c.metrics.Add(MetricTickBudgetOverruns, 1)
	}
	return streak
}

// ResetTickBudgetOverrunStreak ends the current overrun streak.
func (c *Counters) ResetTickBudgetOverrunStreak() {
	if c == nil {
		return
	}
	c.budgetMu.Lock()
	c.budget.CurrentStreak = 0
	c.budgetMu.Unlock()
}

func (c *Counters) tickBudget() TickBudgetSnapshot {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	snapshot := c.budget
	if c.budget.Overruns != nil {
		snapshot.Overruns = make(map[string]uint64, len(c.budget.Overruns))
		for k, v := range c.budget.Overruns {
			snapshot.Overruns[k] = v
		}
	}
	return snapshot
}

func overrunBucket(duration, budget time.Duration) string {
	if budget <= 0 {
		return "over_gt3x"
	}
	ratio := float64(duration) / float64(budget)
	switch {
	case ratio <= 1.5:
		return "over_1_5x"
	case ratio <= 2:
		return "over_2x"
	case ratio <= 3:
		return "over_3x"
	default:
		return "over_gt3x"
	}
}
