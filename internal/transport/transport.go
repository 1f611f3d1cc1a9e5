// Package transport defines the boundary between sessions and the network:
// directed requests to the authority, fan-out from the authority, and a
// drained inbox processed on the simulation goroutine.
package transport

import (
	"errors"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
)

var (
	// ErrUnknownParticipant is returned when sending to a detached participant.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrNoRoute is returned when a client addresses anyone but the authority.
	ErrNoRoute = errors.New("clients may only send to the authority")
	// ErrNotAuthority is returned when a non-authority tries to broadcast.
	ErrNotAuthority = errors.New("only the authority may broadcast")
	// ErrClosed is returned after the endpoint is closed.
	ErrClosed = errors.New("endpoint closed")
	// ErrDuplicateParticipant is returned when an identity is attached twice.
	ErrDuplicateParticipant = errors.New("participant already attached")
	// ErrNoAuthority is returned when a client joins before any authority.
	ErrNoAuthority = errors.New("network has no authority")
)

// Sender delivers envelopes without blocking the caller. Delivery is ordered
// per link; loss leaves the receiver stale.
type Sender interface {
	Send(to replication.ParticipantID, env proto.Envelope) error
	Broadcast(env proto.Envelope, except ...replication.ParticipantID) error
}

// Endpoint is one participant's attachment to the network.
type Endpoint interface {
	Sender
	Local() replication.Participant
	Authority() replication.ParticipantID
	// Drain returns every envelope delivered since the previous call, in
	// arrival order. From is stamped by the transport.
	Drain() []proto.Envelope
	Close() error
}

// Excluded reports whether id appears in except.
func Excluded(id replication.ParticipantID, except []replication.ParticipantID) bool {
	for _, e := range except {
		if e == id {
			return true
		}
	}
	return false
}
