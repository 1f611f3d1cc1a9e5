package replication

// WriterRole is the authority assignment of a replicated field. It is fixed
// when the field is configured.
type WriterRole uint8

const (
	// OwnerAuthoritative fields are written by the owning participant.
	OwnerAuthoritative WriterRole = iota
	// ServerAuthoritative fields are written only by the server.
	ServerAuthoritative
)

func (w WriterRole) String() string {
	switch w {
	case OwnerAuthoritative:
		return "owner"
	case ServerAuthoritative:
		return "server"
	default:
		return "unknown"
	}
}

// Decision is the outcome of an authority check.
type Decision uint8

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Policy decides whether a caller may write a field.
type Policy interface {
	AuthorizeWrite(entity EntityID, writer WriterRole, caller Role) Decision
	AuthorizeRead(entity EntityID, writer WriterRole, caller Role) Decision
}

// DefaultPolicy implements the owner/server authority table. A server that
// does not own the entity may relay owner-authoritative writes but never
// author them.
type DefaultPolicy struct{}

// AuthorizeWrite implements Policy.
func (DefaultPolicy) AuthorizeWrite(_ EntityID, writer WriterRole, caller Role) Decision {
	switch writer {
	case OwnerAuthoritative:
		if caller.IsOwner() {
			return Allowed
		}
	case ServerAuthoritative:
		if caller.IsServer() {
			return Allowed
		}
	}
	return Denied
}

// AuthorizeRead implements Policy. Every field is readable by every role.
func (DefaultPolicy) AuthorizeRead(EntityID, WriterRole, Role) Decision {
	return Allowed
}

// CanWrite is a convenience wrapper around policy.AuthorizeWrite.
func CanWrite(policy Policy, entity EntityID, writer WriterRole, caller Role) bool {
	if policy == nil {
		policy = DefaultPolicy{}
	}
	return policy.AuthorizeWrite(entity, writer, caller) == Allowed
}
