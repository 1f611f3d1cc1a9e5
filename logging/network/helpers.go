package network

import (
	"context"

	"netsync/logging"
)

const (
	// EventSendFailed is emitted when an outbound message cannot be queued.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventMalformedMessage is emitted when an inbound payload cannot be decoded.
	EventMalformedMessage logging.EventType = "network.malformed_message"
)

// SendFailedPayload captures the destination and failure reason.
type SendFailedPayload struct {
	To     string `json:"to"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// MalformedPayload captures why an inbound message was discarded.
type MalformedPayload struct {
	Type   string `json:"type,omitempty"`
	Reason string `json:"reason"`
}

// SendFailed publishes a warning when an outbound message is dropped.
func SendFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendFailedPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventSendFailed, Tick: tick, Actor: actor, Severity: logging.SeverityWarn, Payload: payload, Extra: extra})
}

// MalformedMessage publishes a warning when an inbound message is discarded.
func MalformedMessage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MalformedPayload, extra map[string]any) {
	emit(ctx, pub, logging.Event{Type: EventMalformedMessage, Tick: tick, Actor: actor, Severity: logging.SeverityWarn, Payload: payload, Extra: extra})
}

func emit(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryNetwork
	pub.Publish(ctx, event)
}
