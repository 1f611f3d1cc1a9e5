package session

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/logging"
	lifecycleLog "netsync/logging/lifecycle"
	networkLog "netsync/logging/network"
	replicationLog "netsync/logging/replication"
)

func (s *Session) dispatch(env proto.Envelope) {
	from := replication.ParticipantID(env.From)
	switch env.Type {
	case proto.TypePeerJoined:
		s.handlePeerJoined(from, env.Kind)
	case proto.TypePeerLeft:
		s.handlePeerLeft(from)
	case proto.TypeWelcome:
	case proto.TypeSpawn:
		s.handleSpawn(from, env)
	case proto.TypeDespawn:
		if s.fromAuthority(from, env) {
			s.remove(replication.EntityID(env.Entity))
		}
	case proto.TypeVarUpdate:
		if s.local.IsServer() {
			s.handleOwnerUpdate(from, env)
		} else {
			s.handleAuthorityUpdate(from, env)
		}
	case proto.TypeCommitRequest:
		s.handleCommitRequest(from, env)
	case proto.TypeEventRequest:
		s.handleEventRequest(from, env)
	case proto.TypeEventBroadcast:
		s.handleEventBroadcast(from, env)
	default:
		s.malformed(env, "unsupported message type")
	}
}

func (s *Session) handlePeerJoined(peer replication.ParticipantID, rawKind string) {
	if !s.local.IsServer() {
		return
	}
	kind, ok := replication.ParseKind(rawKind)
	if !ok {
		kind = replication.KindClient
	}
	s.mu.Lock()
	if _, exists := s.peers[peer]; !exists {
		s.peerOrder = append(s.peerOrder, peer)
	}
	s.peers[peer] = kind
	s.mu.Unlock()

	lifecycleLog.ParticipantJoined(context.Background(), s.deps.Publisher, s.Tick(), logging.ParticipantRef(string(peer)), lifecycleLog.ParticipantJoinedPayload{Kind: kind.String()}, nil)
	s.sendWorld(peer)
	participant := replication.Participant{ID: peer, Kind: kind}
	for _, hook := range s.joinHooks {
		hook(participant)
	}
}

func (s *Session) handlePeerLeft(peer replication.ParticipantID) {
	if !s.local.IsServer() {
		if peer != s.Authority() && s.Authority() != "" {
			return
		}
		for _, e := range s.Entities() {
			s.remove(e.id)
		}
		s.mu.Lock()
		s.detached = true
		s.mu.Unlock()
		lifecycleLog.ParticipantLeft(context.Background(), s.deps.Publisher, s.Tick(), logging.ParticipantRef(string(peer)), lifecycleLog.ParticipantLeftPayload{Reason: "authority disconnected"}, nil)
		return
	}
	for _, e := range s.OwnedBy(peer) {
		if err := s.Despawn(e.id); err != nil {
			s.deps.Logger.Printf("[session] despawn %s for departed %s: %v", e.id, peer, err)
		}
	}
	s.mu.Lock()
	delete(s.peers, peer)
	for i, existing := range s.peerOrder {
		if existing == peer {
			s.peerOrder = append(s.peerOrder[:i], s.peerOrder[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	lifecycleLog.ParticipantLeft(context.Background(), s.deps.Publisher, s.Tick(), logging.ParticipantRef(string(peer)), lifecycleLog.ParticipantLeftPayload{Reason: "disconnected"}, nil)
	for _, hook := range s.leaveHooks {
		hook(peer)
	}
}

func (s *Session) handleSpawn(from replication.ParticipantID, env proto.Envelope) {
	if !s.fromAuthority(from, env) {
		return
	}
	entityID := replication.EntityID(env.Entity)
	if _, exists := s.Entity(entityID); exists {
		return
	}
	if _, err := s.create(entityID, replication.ParticipantID(env.Owner), env.Kind, nil); err != nil {
		s.deps.Logger.Printf("[session] spawn %s (%s): %v", entityID, env.Kind, err)
	}
}

// handleOwnerUpdate runs on the authority for owner-authoritative writes.
// Accepted values are relayed to everyone but the writer, keeping the
// writer's version.
func (s *Session) handleOwnerUpdate(from replication.ParticipantID, env proto.Envelope) {
	e, f, ok := s.lookupField(env)
	if !ok {
		return
	}
	ctx, span := s.deps.Tracer.Start(context.Background(), "session.owner_update", trace.WithAttributes(
		attribute.String("entity", env.Entity),
		attribute.String("field", env.Field),
		attribute.String("writer", string(from)),
	))
	defer span.End()

	caller := replication.RoleOf(replication.Participant{ID: from, Kind: replication.KindClient}, e.owner)
	if !replication.CanWrite(s.deps.Policy, e.id, f.Writer(), caller) {
		span.SetStatus(codes.Error, replication.ErrAuthorityViolation.Error())
		s.violation(ctx, e, env.Field, f.Writer(), from, "varUpdate")
		return
	}
	applied, err := f.ApplyEncoded(env.Version, env.Data)
	if err != nil {
		span.RecordError(err)
		s.malformed(env, err.Error())
		return
	}
	if !applied {
		s.stale(ctx, e, f, env.Version)
		return
	}
	s.committed(e, f.ID(), from, env.Version, env.Data, true)
	relay := proto.VarUpdate(env.Entity, env.Field, env.Version, env.Data)
	relay.Origin = string(from)
	s.broadcast(relay, from)
}

// handleAuthorityUpdate runs on clients for every value the authority sends.
func (s *Session) handleAuthorityUpdate(from replication.ParticipantID, env proto.Envelope) {
	if !s.fromAuthority(from, env) {
		return
	}
	e, f, ok := s.lookupField(env)
	if !ok {
		return
	}
	applied, err := f.ApplyEncoded(env.Version, env.Data)
	if err != nil {
		s.malformed(env, err.Error())
		return
	}
	if !applied {
		s.stale(context.Background(), e, f, env.Version)
		return
	}
	origin := replication.ParticipantID(env.Origin)
	if origin == "" {
		origin = from
	}
	s.committed(e, f.ID(), origin, env.Version, env.Data, true)
}

func (s *Session) handleCommitRequest(from replication.ParticipantID, env proto.Envelope) {
	if !s.local.IsServer() {
		s.malformed(env, "commit request addressed to a client")
		return
	}
	e, f, ok := s.lookupField(env)
	if !ok {
		return
	}
	ctx, span := s.deps.Tracer.Start(context.Background(), "session.commit_request", trace.WithAttributes(
		attribute.String("entity", env.Entity),
		attribute.String("field", env.Field),
		attribute.String("requester", string(from)),
	))
	defer span.End()

	if from != e.owner {
		span.SetStatus(codes.Error, replication.ErrAuthorityViolation.Error())
		s.violation(ctx, e, env.Field, f.Writer(), from, "commitRequest")
		return
	}
	handler, ok := e.commits[f.ID()]
	if !ok {
		s.malformed(env, replication.ErrUnknownField.Error())
		return
	}
	if err := handler.HandleCommitRequest(e.role, env.Data); err != nil {
		span.RecordError(err)
		if errors.Is(err, replication.ErrAuthorityViolation) {
			s.violation(ctx, e, env.Field, f.Writer(), from, "commitRequest")
			return
		}
		s.malformed(env, err.Error())
	}
}

func (s *Session) handleEventRequest(from replication.ParticipantID, env proto.Envelope) {
	if !s.local.IsServer() {
		s.malformed(env, "event request addressed to a client")
		return
	}
	e, handler, ok := s.lookupEvent(env)
	if !ok {
		return
	}
	ctx, span := s.deps.Tracer.Start(context.Background(), "session.event_request", trace.WithAttributes(
		attribute.String("entity", env.Entity),
		attribute.String("event", env.Event),
		attribute.String("initiator", string(from)),
	))
	defer span.End()

	if from != e.owner {
		span.SetStatus(codes.Error, replication.ErrAuthorityViolation.Error())
		s.violation(ctx, e, env.Event, replication.OwnerAuthoritative, from, "eventRequest")
		return
	}
	if err := handler.HandleRequest(from, env.Data); err != nil {
		span.RecordError(err)
		s.malformed(env, err.Error())
	}
}

func (s *Session) handleEventBroadcast(from replication.ParticipantID, env proto.Envelope) {
	if !s.fromAuthority(from, env) {
		return
	}
	_, handler, ok := s.lookupEvent(env)
	if !ok {
		return
	}
	if err := handler.HandleBroadcast(replication.ParticipantID(env.Origin), env.Data); err != nil {
		s.malformed(env, err.Error())
	}
}

func (s *Session) fromAuthority(from replication.ParticipantID, env proto.Envelope) bool {
	if s.local.IsServer() || from != s.Authority() {
		s.malformed(env, "message type is only accepted from the authority")
		return false
	}
	return true
}

func (s *Session) lookupField(env proto.Envelope) (*Entity, replication.Field, bool) {
	e, ok := s.Entity(replication.EntityID(env.Entity))
	if !ok {
		s.deps.Logger.Printf("[session] %s for unknown entity %s ignored", env.Type, env.Entity)
		return nil, nil, false
	}
	f, ok := e.Field(replication.FieldID(env.Field))
	if !ok {
		s.malformed(env, replication.ErrUnknownField.Error())
		return nil, nil, false
	}
	return e, f, true
}

func (s *Session) lookupEvent(env proto.Envelope) (*Entity, EventHandler, bool) {
	e, ok := s.Entity(replication.EntityID(env.Entity))
	if !ok {
		s.deps.Logger.Printf("[session] %s for unknown entity %s ignored", env.Type, env.Entity)
		return nil, nil, false
	}
	handler, ok := e.events[replication.EventID(env.Event)]
	if !ok {
		s.malformed(env, replication.ErrUnknownEvent.Error())
		return nil, nil, false
	}
	return e, handler, true
}

func (s *Session) stale(ctx context.Context, e *Entity, f replication.Field, received uint64) {
	if s.deps.Counters != nil {
		s.deps.Counters.RecordStaleUpdate()
	}
	replicationLog.StaleUpdate(ctx, s.deps.Publisher, s.Tick(), logging.EntityRefOf(string(e.id)), replicationLog.StalePayload{
		Field:    string(f.ID()),
		Current:  f.Version(),
		Received: received,
	}, nil)
}

func (s *Session) malformed(env proto.Envelope, reason string) {
	networkLog.MalformedMessage(context.Background(), s.deps.Publisher, s.Tick(), logging.ParticipantRef(env.From), networkLog.MalformedPayload{
		Type:   env.Type,
		Reason: reason,
	}, nil)
}
