// Package pipeline routes state commits and one-shot events through the
// authority so every participant converges on the same result.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"netsync/internal/net/proto"
	"netsync/internal/replication"
	"netsync/internal/transport"
)

// Mode is how a commit pipeline applies candidates.
type Mode uint8

const (
	// LocalAuthority commits candidates directly.
	LocalAuthority Mode = iota
	// RemoteAuthority forwards candidates to the authority and waits for the
	// replicated result.
	RemoteAuthority
)

func (m Mode) String() string {
	if m == LocalAuthority {
		return "local"
	}
	return "remote"
}

// ErrNotOwner is returned when a participant without ownership tries to
// initiate a commit or an event.
var ErrNotOwner = errors.New("pipeline: caller does not own the entity")

// CommitConfig wires a commit pipeline to its variable and transport.
type CommitConfig[T comparable] struct {
	Variable  *replication.Variable[T]
	Codec     replication.Codec[T]
	Role      replication.Role
	Policy    replication.Policy
	Sender    transport.Sender
	Authority replication.ParticipantID
	// OnRequest observes every commit request forwarded to the authority.
	OnRequest func(bytes int)
}

// CommitPipeline applies candidate values for one field. Its mode is derived
// once from the caller's role and the field's authority assignment.
type CommitPipeline[T comparable] struct {
	cfg    CommitConfig[T]
	mode   Mode
	handle replication.ChangeHandle

	mu      sync.Mutex
	pending uint64
}

// NewCommitPipeline selects the pipeline mode and starts tracking in-flight
// requests.
func NewCommitPipeline[T comparable](cfg CommitConfig[T]) *CommitPipeline[T] {
	if cfg.Policy == nil {
		cfg.Policy = replication.DefaultPolicy{}
	}
	if cfg.Codec == nil {
		cfg.Codec = replication.JSONCodec[T]{}
	}
	p := &CommitPipeline[T]{cfg: cfg, mode: RemoteAuthority}
	v := cfg.Variable
	if replication.CanWrite(cfg.Policy, v.Entity(), v.Writer(), cfg.Role) {
		p.mode = LocalAuthority
	}
	p.handle = v.OnChange(func(_, _ T) {
		p.mu.Lock()
		p.pending = 0
		p.mu.Unlock()
	})
	return p
}

// Mode reports whether commits apply locally or remotely.
func (p *CommitPipeline[T]) Mode() Mode { return p.mode }

// Pending reports requests sent since the variable last changed.
func (p *CommitPipeline[T]) Pending() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Commit applies candidate. With remote authority the local value is left
// untouched until the authority's update arrives.
func (p *CommitPipeline[T]) Commit(candidate T) error {
	if p.mode == LocalAuthority {
		return p.cfg.Variable.Set(p.cfg.Role, candidate)
	}
	if !p.cfg.Role.IsOwner() {
		return ErrNotOwner
	}
	data, err := p.cfg.Codec.Encode(candidate)
	if err != nil {
		return fmt.Errorf("encode commit request: %w", err)
	}
	v := p.cfg.Variable
	env := proto.CommitRequest(string(v.Entity()), string(v.Field()), data)
	if err := p.cfg.Sender.Send(p.cfg.Authority, env); err != nil {
		return fmt.Errorf("send commit request: %w", err)
	}
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
	if p.cfg.OnRequest != nil {
		p.cfg.OnRequest(len(data))
	}
	return nil
}

// HandleCommitRequest runs on the authority when the owner forwards a
// candidate. role is the authority's role for the entity.
func (p *CommitPipeline[T]) HandleCommitRequest(role replication.Role, data []byte) error {
	candidate, err := p.cfg.Codec.Decode(data)
	if err != nil {
		return fmt.Errorf("decode commit request: %w", err)
	}
	return p.cfg.Variable.Set(role, candidate)
}

// Close releases the change observer installed by NewCommitPipeline.
func (p *CommitPipeline[T]) Close() {
	p.cfg.Variable.OffChange(p.handle)
}
