// Package id mints identifiers for participants and entities.
package id

import (
	"github.com/google/uuid"

	"netsync/internal/replication"
)

// NewParticipant returns a fresh participant identifier.
func NewParticipant() replication.ParticipantID {
	return replication.ParticipantID("p-" + uuid.NewString())
}

// NewEntity returns a fresh entity identifier.
func NewEntity() replication.EntityID {
	return replication.EntityID("e-" + uuid.NewString())
}

// Valid reports whether raw carries a well-formed identifier suffix.
func Valid(raw string) bool {
	if len(raw) < 3 || raw[1] != '-' {
		return false
	}
	_, err := uuid.Parse(raw[2:])
	return err == nil
}

// NewRun identifies one server process run in the durable commit log.
func NewRun() string {
	return "r-" + uuid.NewString()
}
