// Package session owns the replicas one participant holds and routes wire
// messages between them and the transport.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"netsync/internal/id"
	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/internal/telemetry"
	"netsync/internal/transport"
	"netsync/logging"
	lifecycleLog "netsync/logging/lifecycle"
	networkLog "netsync/logging/network"
	replicationLog "netsync/logging/replication"
)

var (
	// ErrNotAuthority is returned when a client calls an authority-only operation.
	ErrNotAuthority = errors.New("session: operation requires authority")
	// ErrUnknownKind is returned when no factory is registered for an entity kind.
	ErrUnknownKind = errors.New("session: unknown entity kind")
	// ErrUnknownEntity is returned when an entity id is not present.
	ErrUnknownEntity = errors.New("session: unknown entity")
)

// Deps bundles the ambient collaborators of a session.
type Deps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Counters  *telemetry.Counters
	Tracer    trace.Tracer
	Policy    replication.Policy
	// NewEntityID mints identifiers for entities spawned by the authority.
	NewEntityID func() replication.EntityID
}

// CommitRecord describes a value accepted by this participant.
type CommitRecord struct {
	Tick    uint64
	Entity  replication.EntityID
	Field   replication.FieldID
	Origin  replication.ParticipantID
	Version uint64
	Data    []byte
	Remote  bool
}

// Session is single-threaded: Advance, Spawn, and Despawn run on the
// simulation goroutine. Describe may be called concurrently.
type Session struct {
	endpoint  transport.Endpoint
	local     replication.Participant
	deps      Deps
	factories map[string]Factory

	mu        sync.RWMutex
	entities  map[replication.EntityID]*Entity
	order     []replication.EntityID
	peers     map[replication.ParticipantID]replication.Kind
	peerOrder []replication.ParticipantID
	tick      uint64
	detached  bool

	commitHooks []func(CommitRecord)
	joinHooks   []func(replication.Participant)
	leaveHooks  []func(replication.ParticipantID)
}

// New attaches a session to endpoint.
func New(endpoint transport.Endpoint, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = telemetry.Discard
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("netsync/session")
	}
	if deps.Policy == nil {
		deps.Policy = replication.DefaultPolicy{}
	}
	if deps.NewEntityID == nil {
		deps.NewEntityID = id.NewEntity
	}
	return &Session{
		endpoint:  endpoint,
		local:     endpoint.Local(),
		deps:      deps,
		factories: make(map[string]Factory),
		entities:  make(map[replication.EntityID]*Entity),
		peers:     make(map[replication.ParticipantID]replication.Kind),
	}
}

// Register installs the factory used for entities of kind.
func (s *Session) Register(kind string, factory Factory) {
	s.factories[kind] = factory
}

// OnCommit observes every value accepted locally or from the network.
func (s *Session) OnCommit(fn func(CommitRecord)) {
	s.commitHooks = append(s.commitHooks, fn)
}

// OnPeerJoined runs on the authority after a new participant received the
// current world.
func (s *Session) OnPeerJoined(fn func(replication.Participant)) {
	s.joinHooks = append(s.joinHooks, fn)
}

// OnPeerLeft runs on the authority after a participant's entities were
// despawned.
func (s *Session) OnPeerLeft(fn func(replication.ParticipantID)) {
	s.leaveHooks = append(s.leaveHooks, fn)
}

func (s *Session) Local() replication.Participant       { return s.local }
func (s *Session) Authority() replication.ParticipantID { return s.endpoint.Authority() }

// Tick returns the number of completed Advance calls.
func (s *Session) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Detached reports whether a client lost its authority.
func (s *Session) Detached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detached
}

// Entity looks up a replica by id.
func (s *Session) Entity(id replication.EntityID) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Entities returns replicas in spawn order.
func (s *Session) Entities() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entities[id])
	}
	return out
}

// OwnedBy returns the replicas owned by participant in spawn order.
func (s *Session) OwnedBy(owner replication.ParticipantID) []*Entity {
	var out []*Entity
	for _, e := range s.Entities() {
		if e.owner == owner {
			out = append(out, e)
		}
	}
	return out
}

// Advance drains the transport, dispatches every delivered message, then
// ticks each entity behaviour in spawn order.
func (s *Session) Advance(dt float64) {
	for _, env := range s.endpoint.Drain() {
		s.dispatch(env)
	}
	for _, e := range s.Entities() {
		if e.behavior != nil {
			e.behavior.Tick(dt)
		}
	}
	s.mu.Lock()
	s.tick++
	s.mu.Unlock()
}

// Spawn creates an entity on the authority and announces it to every
// participant.
func (s *Session) Spawn(kind string, owner replication.ParticipantID) (*Entity, error) {
	if !s.local.IsServer() {
		return nil, ErrNotAuthority
	}
	entityID := s.deps.NewEntityID()
	return s.create(entityID, owner, kind, func() {
		s.broadcast(proto.Spawn(string(entityID), string(owner), kind))
	})
}

// Despawn tears down an entity on the authority and on every participant.
func (s *Session) Despawn(entityID replication.EntityID) error {
	if !s.local.IsServer() {
		return ErrNotAuthority
	}
	if _, ok := s.Entity(entityID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	s.remove(entityID)
	s.broadcast(proto.Despawn(string(entityID)))
	return nil
}

// Close tears down every replica and detaches from the transport.
func (s *Session) Close() error {
	for _, e := range s.Entities() {
		s.remove(e.id)
	}
	return s.endpoint.Close()
}

// create builds a replica. announce runs before the factory so that commits
// made during construction reach peers after the spawn message.
func (s *Session) create(entityID replication.EntityID, owner replication.ParticipantID, kind string, announce func()) (*Entity, error) {
	factory, ok := s.factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	e := newEntity(s, entityID, owner, kind)
	if announce != nil {
		announce()
	}
	behavior, err := factory(e)
	if err != nil {
		e.close()
		if announce != nil {
			s.broadcast(proto.Despawn(string(entityID)))
		}
		return nil, fmt.Errorf("build %s: %w", kind, err)
	}
	e.behavior = behavior

	s.mu.Lock()
	s.entities[entityID] = e
	s.order = append(s.order, entityID)
	s.mu.Unlock()

	lifecycleLog.EntitySpawned(context.Background(), s.deps.Publisher, s.Tick(), logging.EntityRefOf(string(entityID)), lifecycleLog.EntityPayload{
		Owner: string(owner),
		Kind:  kind,
		Role:  e.role.String(),
	}, nil)
	return e, nil
}

func (s *Session) remove(entityID replication.EntityID) {
	s.mu.Lock()
	e, ok := s.entities[entityID]
	if ok {
		delete(s.entities, entityID)
		for i, existing := range s.order {
			if existing == entityID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if leaked := e.close(); leaked > 0 {
		s.deps.Logger.Printf("[session] entity %s despawned with %d change observers still registered", entityID, leaked)
	}
	lifecycleLog.EntityDespawned(context.Background(), s.deps.Publisher, s.Tick(), logging.EntityRefOf(string(entityID)), lifecycleLog.EntityPayload{
		Owner: string(e.owner),
		Kind:  e.kind,
		Role:  e.role.String(),
	}, nil)
}

// sendWorld brings a late joiner up to date: every entity followed by every
// field that has been committed at least once.
func (s *Session) sendWorld(to replication.ParticipantID) {
	for _, e := range s.Entities() {
		s.send(to, proto.Spawn(string(e.id), string(e.owner), e.kind))
		for _, fieldID := range e.fieldOrder {
			version, data, err := e.fields[fieldID].Encoded()
			if err != nil {
				s.deps.Logger.Printf("[session] encode %s/%s for late join: %v", e.id, fieldID, err)
				continue
			}
			if version == 0 {
				continue
			}
			s.send(to, proto.VarUpdate(string(e.id), string(fieldID), version, data))
		}
	}
}

// published forwards a local commit: the authority fans it out, an owning
// client reports it to the authority.
func (s *Session) published(e *Entity, f replication.Field, version uint64, data []byte, err error) {
	if err != nil {
		s.deps.Logger.Printf("[session] encode commit %s/%s: %v", e.id, f.ID(), err)
		return
	}
	s.committed(e, f.ID(), s.local.ID, version, data, false)
	env := proto.VarUpdate(string(e.id), string(f.ID()), version, data)
	env.Origin = string(s.local.ID)
	if s.local.IsServer() {
		s.broadcast(env)
		return
	}
	s.send(s.Authority(), env)
}

func (s *Session) committed(e *Entity, field replication.FieldID, origin replication.ParticipantID, version uint64, data []byte, remote bool) {
	tick := s.Tick()
	if s.deps.Counters != nil {
		s.deps.Counters.RecordCommit(remote)
	}
	replicationLog.CommitApplied(context.Background(), s.deps.Publisher, tick, logging.EntityRefOf(string(e.id)), replicationLog.CommitPayload{
		Field:   string(field),
		Version: version,
		Remote:  remote,
	}, map[string]any{"origin": string(origin)})
	if len(s.commitHooks) == 0 {
		return
	}
	record := CommitRecord{
		Tick:    tick,
		Entity:  e.id,
		Field:   field,
		Origin:  origin,
		Version: version,
		Data:    append([]byte(nil), data...),
		Remote:  remote,
	}
	for _, hook := range s.commitHooks {
		hook(record)
	}
}

func (s *Session) requested(e *Entity, field replication.FieldID, bytes int) {
	if s.deps.Counters != nil {
		s.deps.Counters.RecordCommitRequest()
	}
	replicationLog.CommitRequested(context.Background(), s.deps.Publisher, s.Tick(), logging.EntityRefOf(string(e.id)), replicationLog.RequestPayload{
		Field:     string(field),
		Authority: string(s.Authority()),
		Bytes:     bytes,
	}, nil)
}

func (s *Session) relayed(e *Entity, event replication.EventID, initiator replication.ParticipantID) {
	if s.deps.Counters != nil {
		s.deps.Counters.RecordEventRelayed()
	}
	replicationLog.Relayed(context.Background(), s.deps.Publisher, s.Tick(), logging.EntityRefOf(string(e.id)), replicationLog.RelayPayload{
		Event:     string(event),
		Initiator: string(initiator),
	}, nil)
}

func (s *Session) violation(ctx context.Context, e *Entity, field string, writer replication.WriterRole, caller replication.ParticipantID, path string) {
	if s.deps.Counters != nil {
		s.deps.Counters.RecordAuthorityViolation()
	}
	callerRole := replication.RoleOf(replication.Participant{ID: caller, Kind: replication.KindClient}, e.owner)
	if caller == s.local.ID {
		callerRole = e.role
	}
	replicationLog.AuthorityViolation(ctx, s.deps.Publisher, s.Tick(), logging.ParticipantRef(string(caller)), replicationLog.ViolationPayload{
		Entity: string(e.id),
		Field:  field,
		Writer: writer.String(),
		Caller: callerRole.String(),
		Path:   path,
	}, nil)
}

func (s *Session) send(to replication.ParticipantID, env proto.Envelope) error {
	if err := s.endpoint.Send(to, env); err != nil {
		s.sendFailed(string(to), env, err)
		return err
	}
	if s.deps.Counters != nil {
		s.deps.Counters.RecordSend(len(env.Data))
	}
	return nil
}

func (s *Session) broadcast(env proto.Envelope, except ...replication.ParticipantID) error {
	if err := s.endpoint.Broadcast(env, except...); err != nil {
		s.sendFailed("*", env, err)
		return err
	}
	if s.deps.Counters != nil {
		s.deps.Counters.RecordSend(len(env.Data))
	}
	return nil
}

// sessionSender routes pipeline traffic through the session so failures are
// counted and published like any other send.
type sessionSender struct {
	s *Session
}

func (w sessionSender) Send(to replication.ParticipantID, env proto.Envelope) error {
	return w.s.send(to, env)
}

func (w sessionSender) Broadcast(env proto.Envelope, except ...replication.ParticipantID) error {
	return w.s.broadcast(env, except...)
}

func (s *Session) sendFailed(to string, env proto.Envelope, err error) {
	if s.deps.Counters != nil {
		s.deps.Counters.RecordDrop()
	}
	networkLog.SendFailed(context.Background(), s.deps.Publisher, s.Tick(), logging.ParticipantRef(string(s.local.ID)), networkLog.SendFailedPayload{
		To:     to,
		Type:   env.Type,
		Reason: err.Error(),
	}, nil)
}

// EntityInfo summarises one replica for diagnostics.
type EntityInfo struct {
	ID     string            `json:"id"`
	Owner  string            `json:"owner"`
	Kind   string            `json:"kind"`
	Role   string            `json:"role"`
	Fields map[string]uint64 `json:"fields"`
}

// Diagnostics summarises a session for the diagnostics endpoint.
type Diagnostics struct {
	Participant string       `json:"participant"`
	Kind        string       `json:"kind"`
	Authority   string       `json:"authority"`
	Tick        uint64       `json:"tick"`
	Peers       []string     `json:"peers,omitempty"`
	Entities    []EntityInfo `json:"entities"`
}

// Describe returns a point-in-time summary. Field versions are read through
// the variables, which are safe for concurrent use.
func (s *Session) Describe() Diagnostics {
	s.mu.RLock()
	diag := Diagnostics{
		Participant: string(s.local.ID),
		Kind:        s.local.Kind.String(),
		Tick:        s.tick,
		Entities:    make([]EntityInfo, 0, len(s.order)),
	}
	for _, peer := range s.peerOrder {
		diag.Peers = append(diag.Peers, string(peer))
	}
	entities := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		entities = append(entities, s.entities[id])
	}
	s.mu.RUnlock()

	diag.Authority = string(s.Authority())
	for _, e := range entities {
		info := EntityInfo{
			ID:     string(e.id),
			Owner:  string(e.owner),
			Kind:   e.kind,
			Role:   e.role.String(),
			Fields: make(map[string]uint64, len(e.fieldOrder)),
		}
		for _, fieldID := range e.fieldOrder {
			info.Fields[string(fieldID)] = e.fields[fieldID].Version()
		}
		diag.Entities = append(diag.Entities, info)
	}
	sort.SliceStable(diag.Peers, func(i, j int) bool { return diag.Peers[i] < diag.Peers[j] })
	return diag
}
