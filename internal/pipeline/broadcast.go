package pipeline

import (
	"errors"
	"fmt"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/internal/transport"
)

// ErrInvalidEvent is returned by validators rejecting an event payload.
var ErrInvalidEvent = errors.New("pipeline: invalid event")

// BroadcastConfig wires a broadcast pipeline to its transport and effect.
type BroadcastConfig[E any] struct {
	Entity    replication.EntityID
	Event     replication.EventID
	Local     replication.Participant
	Role      replication.Role
	Authority replication.ParticipantID
	Sender    transport.Sender
	Codec     replication.Codec[E]
	// Effect runs the event's local consequences.
	Effect func(E)
	// Validate sanitises an event on the authority before it is relayed.
	Validate func(E) (E, error)
	// OnRelay observes every event the authority rebroadcasts.
	OnRelay func(initiator replication.ParticipantID)
}

// BroadcastPipeline executes an event optimistically on its initiator and
// relays it through the authority to every other participant exactly once.
type BroadcastPipeline[E any] struct {
	cfg BroadcastConfig[E]
}

// NewBroadcastPipeline constructs a pipeline.
func NewBroadcastPipeline[E any](cfg BroadcastConfig[E]) *BroadcastPipeline[E] {
	if cfg.Codec == nil {
		cfg.Codec = replication.JSONCodec[E]{}
	}
	return &BroadcastPipeline[E]{cfg: cfg}
}

// Fire executes ev locally and forwards it. An authority initiator relays
// directly; clients ask the authority to relay on their behalf.
func (p *BroadcastPipeline[E]) Fire(ev E) error {
	if !p.cfg.Role.IsOwner() {
		return ErrNotOwner
	}
	if p.cfg.Local.IsServer() {
		sanitized, err := p.validate(ev)
		if err != nil {
			return err
		}
		p.effect(sanitized)
		return p.relay(p.cfg.Local.ID, sanitized)
	}
	p.effect(ev)
	data, err := p.cfg.Codec.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	env := proto.EventRequest(string(p.cfg.Entity), string(p.cfg.Event), data)
	if err := p.cfg.Sender.Send(p.cfg.Authority, env); err != nil {
		return fmt.Errorf("send event request: %w", err)
	}
	return nil
}

// HandleRequest runs on the authority. The event is relayed to everyone but
// the initiator, and executed locally when the authority has a view.
func (p *BroadcastPipeline[E]) HandleRequest(initiator replication.ParticipantID, data []byte) error {
	ev, err := p.cfg.Codec.Decode(data)
	if err != nil {
		return fmt.Errorf("decode event request: %w", err)
	}
	ev, err = p.validate(ev)
	if err != nil {
		return err
	}
	if p.cfg.Local.HasView() && initiator != p.cfg.Local.ID {
		p.effect(ev)
	}
	return p.relay(initiator, ev)
}

// HandleBroadcast runs on clients receiving a relayed event. The initiator
// already executed it and ignores its own echo.
func (p *BroadcastPipeline[E]) HandleBroadcast(initiator replication.ParticipantID, data []byte) error {
	if initiator == p.cfg.Local.ID {
		return nil
	}
	ev, err := p.cfg.Codec.Decode(data)
	if err != nil {
		return fmt.Errorf("decode event broadcast: %w", err)
	}
	p.effect(ev)
	return nil
}

func (p *BroadcastPipeline[E]) relay(initiator replication.ParticipantID, ev E) error {
	data, err := p.cfg.Codec.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	env := proto.EventBroadcast(string(p.cfg.Entity), string(p.cfg.Event), string(initiator), data)
	if err := p.cfg.Sender.Broadcast(env, initiator); err != nil {
		return fmt.Errorf("broadcast event: %w", err)
	}
	if p.cfg.OnRelay != nil {
		p.cfg.OnRelay(initiator)
	}
	return nil
}

func (p *BroadcastPipeline[E]) validate(ev E) (E, error) {
	if p.cfg.Validate == nil {
		return ev, nil
	}
	return p.cfg.Validate(ev)
}

func (p *BroadcastPipeline[E]) effect(ev E) {
	if p.cfg.Effect != nil {
		p.cfg.Effect(ev)
	}
}
