package proto

import (
	"encoding/json"
	"fmt"
)

const (
	// Version tracks the wire-protocol revision expected by peers.
	Version = 1
)

// Envelope type identifiers.
const (
	TypeWelcome        = "welcome"
	TypeSpawn          = "spawn"
	TypeDespawn        = "despawn"
	TypeVarUpdate      = "varUpdate"
	TypeCommitRequest  = "commitRequest"
	TypeEventRequest   = "eventRequest"
	TypeEventBroadcast = "eventBroadcast"
)

// Local-only types synthesised by transports to report membership changes.
// They are never accepted from the wire.
const (
	TypePeerJoined = "peerJoined"
	TypePeerLeft   = "peerLeft"
)

var knownTypes = map[string]struct{}{
	TypeWelcome:        {},
	TypeSpawn:          {},
	TypeDespawn:        {},
	TypeVarUpdate:      {},
	TypeCommitRequest:  {},
	TypeEventRequest:   {},
	TypeEventBroadcast: {},
}

// Envelope is the single message shape exchanged between participants.
// Data carries the codec output of the addressed field or event.
type Envelope struct {
	Ver     int    `json:"ver" jsonschema:"enum=1"`
	Type    string `json:"type" jsonschema:"enum=welcome,enum=spawn,enum=despawn,enum=varUpdate,enum=commitRequest,enum=eventRequest,enum=eventBroadcast"`
	From    string `json:"from,omitempty" jsonschema:"description=Participant that sent this envelope; stamped by the transport"`
	Origin  string `json:"origin,omitempty" jsonschema:"description=Participant that authored a relayed write or event"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Event   string `json:"event,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Kind    string `json:"kind,omitempty" jsonschema:"description=Entity kind on spawn or participant kind on welcome"`
	Version uint64 `json:"version,omitempty"`
	Tick    uint64 `json:"tick,omitempty"`
	Data    []byte `json:"data,omitempty" jsonschema:"description=Base64 codec output"`
}

// Encode renders an envelope, stamping the protocol version when unset.
func Encode(env Envelope) ([]byte, error) {
	if env.Ver == 0 {
		env.Ver = Version
	}
	return json.Marshal(env)
}

// Decode parses and validates an inbound envelope.
func Decode(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Ver == 0 {
		env.Ver = Version
	}
	if env.Ver != Version {
		return env, fmt.Errorf("unsupported protocol version %d", env.Ver)
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return env, fmt.Errorf("unknown message type %q", env.Type)
	}
	return env, nil
}

// Welcome tells a participant its identity and the authority's identity.
func Welcome(participant, kind, authority string) Envelope {
	return Envelope{Ver: Version, Type: TypeWelcome, Entity: participant, Kind: kind, Owner: authority}
}

// PeerJoined reports that a participant attached to the transport.
func PeerJoined(participant, kind string) Envelope {
	return Envelope{Ver: Version, Type: TypePeerJoined, From: participant, Kind: kind}
}

// PeerLeft reports that a participant detached from the transport.
func PeerLeft(participant string) Envelope {
	return Envelope{Ver: Version, Type: TypePeerLeft, From: participant}
}

// Spawn announces an entity replica.
func Spawn(entity, owner, kind string) Envelope {
	return Envelope{Ver: Version, Type: TypeSpawn, Entity: entity, Owner: owner, Kind: kind}
}

// Despawn announces entity teardown.
func Despawn(entity string) Envelope {
	return Envelope{Ver: Version, Type: TypeDespawn, Entity: entity}
}

// VarUpdate carries a committed field value.
func VarUpdate(entity, field string, version uint64, data []byte) Envelope {
	return Envelope{Ver: Version, Type: TypeVarUpdate, Entity: entity, Field: field, Version: version, Data: data}
}

// CommitRequest asks the authority to adopt a candidate value.
func CommitRequest(entity, field string, data []byte) Envelope {
	return Envelope{Ver: Version, Type: TypeCommitRequest, Entity: entity, Field: field, Data: data}
}

// EventRequest asks the authority to rebroadcast a one-shot event.
func EventRequest(entity, event string, data []byte) Envelope {
	return Envelope{Ver: Version, Type: TypeEventRequest, Entity: entity, Event: event, Data: data}
}

// EventBroadcast carries a relayed event to non-initiating participants.
func EventBroadcast(entity, event, origin string, data []byte) Envelope {
	return Envelope{Ver: Version, Type: TypeEventBroadcast, Entity: entity, Event: event, Origin: origin, Data: data}
}
