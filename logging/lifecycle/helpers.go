package lifecycle

import (
	"context"

	"netsync/logging"
)

const (
	// EventParticipantJoined is emitted when a participant attaches to a session.
	EventParticipantJoined logging.EventType = "lifecycle.participant_joined"
	// EventParticipantLeft is emitted when a participant detaches.
	EventParticipantLeft logging.EventType = "lifecycle.participant_left"
	// EventEntitySpawned is emitted when an entity replica is created.
	EventEntitySpawned logging.EventType = "lifecycle.entity_spawned"
	// EventEntityDespawned is emitted when an entity replica is torn down.
	EventEntityDespawned logging.EventType = "lifecycle.entity_despawned"
)

// ParticipantJoinedPayload captures the joining participant's kind.
type ParticipantJoinedPayload struct {
	Kind string `json:"kind"`
}

// ParticipantLeftPayload captures the reason a participant left.
type ParticipantLeftPayload struct {
	Reason string `json:"reason"`
}

// EntityPayload captures spawn metadata for an entity replica.
type EntityPayload struct {
	Owner string `json:"owner"`
	Kind  string `json:"kind"`
	Role  string `json:"role"`
}

// ParticipantJoined publishes a participant join event.
func ParticipantJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ParticipantJoinedPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventParticipantJoined, Tick: tick, Actor: actor, Severity: logging.SeverityInfo, Payload: payload, Extra: extra})
}

// ParticipantLeft publishes a participant departure event.
func ParticipantLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ParticipantLeftPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventParticipantLeft, Tick: tick, Actor: actor, Severity: logging.SeverityInfo, Payload: payload, Extra: extra})
}

// EntitySpawned publishes an entity spawn event.
func EntitySpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventEntitySpawned, Tick: tick, Actor: actor, Severity: logging.SeverityInfo, Payload: payload, Extra: extra})
}

// EntityDespawned publishes an entity teardown event.
func EntityDespawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventEntityDespawned, Tick: tick, Actor: actor, Severity: logging.SeverityInfo, Payload: payload, Extra: extra})
}

func emit(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryLifecycle
	pub.Publish(ctx, event)
}
