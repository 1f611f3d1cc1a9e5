package transport

import (
	"sync"

	"netsync/internal/net/proto"
)

const (
	inboxOccupancyMetricKey = "transport_inbox_occupancy"
	inboxOverflowMetricKey  = "transport_inbox_overflow_total"
)

// Inbox stores delivered envelopes in a fixed-size ring. It is safe for
// concurrent producers and a single consumer.
type Inbox struct {
	mu        sync.Mutex
	data      []proto.Envelope
	head      int
	tail      int
	count     int
	highWater int
	overflows uint64
	metrics   telemetryMetrics
}

// InboxStats summarises inbox pressure since construction.
type InboxStats struct {
	Len       int    `json:"len"`
	Capacity  int    `json:"capacity"`
	HighWater int    `json:"highWater"`
	Overflows uint64 `json:"overflows"`
}

type telemetryMetrics interface {
	Add(string, uint64)
	Store(string, uint64)
}

// NewInbox constructs a ring buffer with the provided capacity.
func NewInbox(capacity int, metrics telemetryMetrics) *Inbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Inbox{
		data:    make([]proto.Envelope, capacity),
		metrics: metrics,
	}
}

// Capacity reports the maximum number of envelopes the inbox can hold.
func (b *Inbox) Capacity() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Push stages an envelope, returning false if the inbox is full.
func (b *Inbox) Push(env proto.Envelope) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == len(b.data) {
		b.overflows++
		if b.metrics != nil {
			b.metrics.Add(inboxOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = env
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.highWater = max(b.highWater, b.count)
	b.storeOccupancyLocked()
	return true
}

// Drain returns all staged envelopes in FIFO order and clears the inbox.
func (b *Inbox) Drain() []proto.Envelope {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	envelopes := make([]proto.Envelope, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		envelopes[i] = b.data[idx]
		b.data[idx] = proto.Envelope{}
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return envelopes
}

// Len reports the number of staged envelopes.
func (b *Inbox) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats reports current occupancy along with the peak and overflow count.
func (b *Inbox) Stats() InboxStats {
	if b == nil {
		return InboxStats{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return InboxStats{Len: b.count, Capacity: len(b.data), HighWater: b.highWater, Overflows: b.overflows}
}

func (b *Inbox) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(inboxOccupancyMetricKey, uint64(b.count))
}
