package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorityViolation marks a write attempted by a role without authority.
	ErrAuthorityViolation = errors.New("authority violation")
	// ErrUnknownField marks a message addressing a field the entity lacks.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownEvent marks a message addressing an event the entity lacks.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrClosed marks an operation on a torn-down variable.
	ErrClosed = errors.New("variable closed")
)

// AuthorityViolationError describes a rejected write.
type AuthorityViolationError struct {
	Entity EntityID
	Field  FieldID
	Writer WriterRole
	Caller Role
}

func (e *AuthorityViolationError) Error() string {
	return fmt.Sprintf("%s: %s/%s is %s-authoritative, caller is %s", ErrAuthorityViolation, e.Entity, e.Field, e.Writer, e.Caller)
}

// Is lets errors.Is match ErrAuthorityViolation.
func (e *AuthorityViolationError) Is(target error) bool {
	return target == ErrAuthorityViolation
}
