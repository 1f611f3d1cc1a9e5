// Package journal keeps a rolling window of accepted commits so they can be
// inspected and flushed to durable storage.
package journal

import (
	"sync"
	"time"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

const (
	dropExpired = "journal_expired_unflushed"
	dropCount   = "journal_evicted_unflushed"
)

// Entry is one commit accepted by a participant.
type Entry struct {
	Sequence   uint64    `json:"sequence"`
	Tick       uint64    `json:"tick"`
	Entity     string    `json:"entity"`
	Field      string    `json:"field"`
	Origin     string    `json:"origin"`
	Version    uint64    `json:"version"`
	Remote     bool      `json:"remote"`
	Data       []byte    `json:"data,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Window summarises the retained range and how much has left it.
type Window struct {
	Size    int    `json:"size"`
	Oldest  uint64 `json:"oldest"`
	Newest  uint64 `json:"newest"`
	Flushed uint64 `json:"flushed"`
	Expired uint64 `json:"expired"`
	Evicted uint64 `json:"evicted"`
}

// Journal is a bounded, time-limited log of commits. It is safe for
// concurrent use.
type Journal struct {
	mu        sync.RWMutex
	entries   []Entry
	maxItems  int
	maxAge    time.Duration
	nextSeq   uint64
	flushed   uint64
	expired   uint64
	evicted   uint64
	now       func() time.Time
	telemetry Telemetry
}

// New constructs a journal retaining at most capacity entries no older than
// maxAge. A zero capacity disables recording; a zero maxAge keeps entries
// until they are pushed out by count.
func New(capacity int, maxAge time.Duration) *Journal {
	if capacity < 0 {
		capacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &Journal{
		entries:  make([]Entry, 0, capacity),
		maxItems: capacity,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SetClock replaces the time source used to stamp and expire entries.
func (j *Journal) SetClock(now func() time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	j.now = now
}

// AttachTelemetry wires a drop reporter.
func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.telemetry = t
}

// Record appends entry, assigning its sequence and timestamp, then evicts
// anything expired or beyond capacity. It returns the stored entry; with a
// zero capacity nothing is stored and the sequence stays zero.
func (j *Journal) Record(entry Entry) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.maxItems == 0 {
		return entry
	}

	j.nextSeq++
	entry.Sequence = j.nextSeq
	entry.RecordedAt = j.now()
	if entry.Data != nil {
		entry.Data = append([]byte(nil), entry.Data...)
	}
	j.entries = append(j.entries, entry)

	if j.maxAge > 0 {
		cutoff := entry.RecordedAt.Add(-j.maxAge)
		idx := 0
		for idx < len(j.entries) && j.entries[idx].RecordedAt.Before(cutoff) {
			j.reportLossLocked(j.entries[idx], dropExpired)
			idx++
		}
		j.expired += uint64(idx)
		j.dropHeadLocked(idx)
	}

	if overflow := len(j.entries) - j.maxItems; overflow > 0 {
		for _, old := range j.entries[:overflow] {
			j.reportLossLocked(old, dropCount)
		}
		j.evicted += uint64(overflow)
		j.dropHeadLocked(overflow)
	}
	return cloneEntry(entry)
}

// reportLossLocked counts entries that leave the window before reaching
// storage.
func (j *Journal) reportLossLocked(entry Entry, metric string) {
	if entry.Sequence > j.flushed && j.telemetry != nil {
		j.telemetry.RecordJournalDrop(metric)
	}
}

func (j *Journal) dropHeadLocked(n int) {
	if n <= 0 {
		return
	}
	copy(j.entries, j.entries[n:])
	for i := len(j.entries) - n; i < len(j.entries); i++ {
		j.entries[i] = Entry{}
	}
	j.entries = j.entries[:len(j.entries)-n]
}

// Entries returns a copy of the retained window, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return cloneEntries(j.entries)
}

// Recent returns up to limit of the newest entries, oldest first.
func (j *Journal) Recent(limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if limit <= 0 || limit >= len(j.entries) {
		return cloneEntries(j.entries)
	}
	return cloneEntries(j.entries[len(j.entries)-limit:])
}

// Window reports the retained range, the flush watermark and eviction
// totals.
func (j *Journal) Window() Window {
	j.mu.RLock()
	defer j.mu.RUnlock()
	w := Window{Size: len(j.entries), Flushed: j.flushed, Expired: j.expired, Evicted: j.evicted}
	if len(j.entries) > 0 {
		w.Oldest = j.entries[0].Sequence
		w.Newest = j.entries[len(j.entries)-1].Sequence
	}
	return w
}

// Unflushed returns retained entries newer than the last MarkFlushed call.
func (j *Journal) Unflushed() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, 0)
	for _, entry := range j.entries {
		if entry.Sequence > j.flushed {
			out = append(out, cloneEntry(entry))
		}
	}
	return out
}

// MarkFlushed records that every entry up to sequence reached storage.
func (j *Journal) MarkFlushed(sequence uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if sequence > j.flushed {
		j.flushed = sequence
	}
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = cloneEntry(entry)
	}
	return out
}

func cloneEntry(entry Entry) Entry {
	if entry.Data != nil {
		entry.Data = append([]byte(nil), entry.Data...)
	}
	return entry
}
