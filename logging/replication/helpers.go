package replication

import (
	"context"

	"netsync/logging"
)

const (
	// EventCommitApplied is emitted when a replicated field accepts a new value.
	EventCommitApplied logging.EventType = "replication.commit_applied"
	// EventAuthorityViolation is emitted when a write or request is rejected
	// because the caller lacks write authority.
	EventAuthorityViolation logging.EventType = "replication.authority_violation"
	// EventCommitRequested is emitted when a non-authoritative participant
	// forwards a candidate value to the authority.
	EventCommitRequested logging.EventType = "replication.commit_requested"
	// EventRelayed is emitted when the authority rebroadcasts a one-shot event.
	EventRelayed logging.EventType = "replication.event_relayed"
	// EventStaleUpdate is emitted when a duplicate or older update is ignored.
	EventStaleUpdate logging.EventType = "replication.stale_update"
)

// CommitPayload describes a committed field value.
type CommitPayload struct {
	Field   string `json:"field"`
	Version uint64 `json:"version"`
	Remote  bool   `json:"remote"`
}

// ViolationPayload describes a rejected write.
type ViolationPayload struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Writer string `json:"writer"`
	Caller string `json:"caller"`
	Path   string `json:"path"`
}

// RequestPayload describes a commit-request sent to the authority.
type RequestPayload struct {
	Field     string `json:"field"`
	Authority string `json:"authority"`
	Bytes     int    `json:"bytes"`
}

// RelayPayload describes an event rebroadcast by the authority.
type RelayPayload struct {
	Event     string `json:"event"`
	Initiator string `json:"initiator"`
}

// StalePayload describes an ignored update.
type StalePayload struct {
	Field    string `json:"field"`
	Current  uint64 `json:"current"`
	Received uint64 `json:"received"`
}

// CommitApplied publishes a debug event for each committed change.
func CommitApplied(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.EntityRef, payload CommitPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommitApplied,
		Tick:     tick,
		Actor:    entity,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}

// AuthorityViolation publishes a warning when a write is rejected.
func AuthorityViolation(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ViolationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAuthorityViolation,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{logging.EntityRefOf(payload.Entity)},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}

// CommitRequested publishes a debug event when a commit-request is sent.
func CommitRequested(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.EntityRef, payload RequestPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommitRequested,
		Tick:     tick,
		Actor:    entity,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}

// Relayed publishes a debug event when the authority rebroadcasts an event.
func Relayed(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.EntityRef, payload RelayPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRelayed,
		Tick:     tick,
		Actor:    entity,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}

// StaleUpdate publishes a debug event when a duplicate update is ignored.
func StaleUpdate(ctx context.Context, pub logging.Publisher, tick uint64, entity logging.EntityRef, payload StalePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStaleUpdate,
		Tick:     tick,
		Actor:    entity,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}
