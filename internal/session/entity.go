package session

import (
	"netsync/internal/replication"
	"netsync/internal/transport"
)

// Behavior drives one entity on every tick.
type Behavior interface {
	Tick(dt float64)
	Close()
}

// Factory builds the behaviour of a freshly spawned entity replica.
type Factory func(e *Entity) (Behavior, error)

// CommitHandler applies a commit request forwarded by the entity's owner.
type CommitHandler interface {
	HandleCommitRequest(role replication.Role, data []byte) error
}

// EventHandler receives one-shot events addressed to an entity.
type EventHandler interface {
	HandleRequest(initiator replication.ParticipantID, data []byte) error
	HandleBroadcast(initiator replication.ParticipantID, data []byte) error
}

// Entity is one participant's replica of a replicated object.
type Entity struct {
	id      replication.EntityID
	owner   replication.ParticipantID
	kind    string
	role    replication.Role
	session *Session

	fields     map[replication.FieldID]replication.Field
	fieldOrder []replication.FieldID
	commits    map[replication.FieldID]CommitHandler
	events     map[replication.EventID]EventHandler
	behavior   Behavior
}

func newEntity(s *Session, id replication.EntityID, owner replication.ParticipantID, kind string) *Entity {
	return &Entity{
		id:      id,
		owner:   owner,
		kind:    kind,
		role:    replication.RoleOf(s.local, owner),
		session: s,
		fields:  make(map[replication.FieldID]replication.Field),
		commits: make(map[replication.FieldID]CommitHandler),
		events:  make(map[replication.EventID]EventHandler),
	}
}

func (e *Entity) ID() replication.EntityID             { return e.id }
func (e *Entity) Owner() replication.ParticipantID     { return e.owner }
func (e *Entity) Kind() string                         { return e.kind }
func (e *Entity) Role() replication.Role               { return e.role }
func (e *Entity) Local() replication.Participant       { return e.session.local }
func (e *Entity) Authority() replication.ParticipantID { return e.session.Authority() }
func (e *Entity) Sender() transport.Sender             { return sessionSender{s: e.session} }
func (e *Entity) Policy() replication.Policy           { return e.session.deps.Policy }
func (e *Entity) Behavior() Behavior                   { return e.behavior }

// Tick reports the session tick the entity is being simulated in.
func (e *Entity) Tick() uint64 { return e.session.Tick() }

// AddField registers a replicated field. Every local commit to it is
// forwarded through the session.
func (e *Entity) AddField(f replication.Field) {
	if _, exists := e.fields[f.ID()]; !exists {
		e.fieldOrder = append(e.fieldOrder, f.ID())
	}
	e.fields[f.ID()] = f
	f.OnCommitted(func(version uint64, data []byte, err error) {
		e.session.published(e, f, version, data, err)
	})
}

// Field looks up a registered field.
func (e *Entity) Field(id replication.FieldID) (replication.Field, bool) {
	f, ok := e.fields[id]
	return f, ok
}

// AddCommitHandler routes commit requests for a field to h.
func (e *Entity) AddCommitHandler(field replication.FieldID, h CommitHandler) {
	e.commits[field] = h
}

// AddEvent routes event requests and broadcasts for id to h.
func (e *Entity) AddEvent(id replication.EventID, h EventHandler) {
	e.events[id] = h
}

// RequestObserver returns a hook recording commit requests for field.
func (e *Entity) RequestObserver(field replication.FieldID) func(bytes int) {
	return func(bytes int) {
		e.session.requested(e, field, bytes)
	}
}

// RelayObserver returns a hook recording relays of event.
func (e *Entity) RelayObserver(event replication.EventID) func(initiator replication.ParticipantID) {
	return func(initiator replication.ParticipantID) {
		e.session.relayed(e, event, initiator)
	}
}

// close tears down the behaviour and every field, returning the number of
// change observers that were still registered.
func (e *Entity) close() int {
	if e.behavior != nil {
		e.behavior.Close()
	}
	leaked := 0
	for _, id := range e.fieldOrder {
		f := e.fields[id]
		f.OnCommitted(nil)
		leaked += f.Close()
	}
	return leaked
}
