// Package replication holds the authority model and the replicated variable
// primitive shared by every participant in a session.
package replication

// ParticipantID identifies one process taking part in a session.
type ParticipantID string

// EntityID identifies a replicated object.
type EntityID string

// FieldID names a replicated variable within an entity.
type FieldID string

// EventID names a one-shot broadcast event within an entity.
type EventID string

// Kind describes what a participant process runs.
type Kind uint8

const (
	// KindClient runs a local view but holds no server authority.
	KindClient Kind = iota
	// KindServer is a dedicated authority with no local view.
	KindServer
	// KindHost is a server that also runs a local client view.
	KindHost
)

func (k Kind) String() string {
	switch k {
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// ParseKind maps a textual kind onto a Kind.
func ParseKind(raw string) (Kind, bool) {
	switch raw {
	case "client":
		return KindClient, true
	case "server":
		return KindServer, true
	case "host":
		return KindHost, true
	default:
		return KindClient, false
	}
}

// Participant describes the local process.
type Participant struct {
	ID   ParticipantID
	Kind Kind
}

// IsServer reports whether the participant holds server authority.
func (p Participant) IsServer() bool {
	return p.Kind == KindServer || p.Kind == KindHost
}

// HasView reports whether the participant runs local effects and rendering.
func (p Participant) HasView() bool {
	return p.Kind == KindClient || p.Kind == KindHost
}

// Role is a participant's relationship to one entity.
type Role uint8

const (
	// RoleObserver may read but never write.
	RoleObserver Role = iota
	// RoleOwner is the client owning the entity.
	RoleOwner
	// RoleServer is the authority process, not owning the entity.
	RoleServer
	// RoleHost is the authority process owning the entity.
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleObserver:
		return "observer"
	case RoleOwner:
		return "owner"
	case RoleServer:
		return "server"
	case RoleHost:
		return "host"
	default:
		return "unknown"
	}
}

// IsOwner reports whether the role owns the entity.
func (r Role) IsOwner() bool {
	return r == RoleOwner || r == RoleHost
}

// IsServer reports whether the role carries server authority.
func (r Role) IsServer() bool {
	return r == RoleServer || r == RoleHost
}

// RoleOf resolves the role of participant p for an entity owned by owner.
func RoleOf(p Participant, owner ParticipantID) Role {
	owns := owner != "" && p.ID == owner
	switch p.Kind {
	case KindServer:
		return RoleServer
	case KindHost:
		if owns {
			return RoleHost
		}
		return RoleServer
	default:
		if owns {
			return RoleOwner
		}
		return RoleObserver
	}
}
