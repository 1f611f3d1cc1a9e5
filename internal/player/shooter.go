package player

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"netsync/internal/motion"
	"netsync/internal/pipeline"
	"netsync/internal/replication"
	"netsync/internal/session"
)

// FireEvent is the payload of a fire action.
type FireEvent struct {
	Direction motion.Vec3
}

const fireEventSize = 12

// FireCodec encodes a FireEvent as three little-endian float32 components.
type FireCodec struct{}

func (FireCodec) Encode(ev FireEvent) ([]byte, error) {
	buf := make([]byte, fireEventSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(ev.Direction.X)))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(float32(ev.Direction.Y)))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(float32(ev.Direction.Z)))
	return buf, nil
}

func (FireCodec) Decode(data []byte) (FireEvent, error) {
	if len(data) != fireEventSize {
		return FireEvent{}, fmt.Errorf("fire event: expected %d bytes, got %d", fireEventSize, len(data))
	}
	return FireEvent{Direction: motion.Vec3{
		X: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[0:4]))),
		Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4:8]))),
		Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))),
	}}, nil
}

// validateFire normalises the direction on the authority. Zero or non-finite
// directions are rejected.
func validateFire(ev FireEvent) (FireEvent, error) {
	dir, ok := ev.Direction.Normalized()
	if !ok {
		return ev, fmt.Errorf("%w: direction %+v", pipeline.ErrInvalidEvent, ev.Direction)
	}
	return FireEvent{Direction: dir}, nil
}

// Shooter fires along the owner's facing, at most once per cooldown.
type Shooter struct {
	role      replication.Role
	cooldown  time.Duration
	clock     Clock
	transform *TransformSync
	pipeline  *pipeline.BroadcastPipeline[FireEvent]
	deps      Deps

	mu        sync.Mutex
	lastFired time.Time
	fired     bool
}

func newShooter(e *session.Entity, cfg Config, deps Deps, transform *TransformSync) *Shooter {
	entity := e.ID()
	s := &Shooter{
		role:      e.Role(),
		cooldown:  cfg.FireCooldown,
		clock:     deps.Clock,
		transform: transform,
		deps:      deps,
	}
	s.pipeline = pipeline.NewBroadcastPipeline(pipeline.BroadcastConfig[FireEvent]{
		Entity:    entity,
		Event:     EventFire,
		Local:     e.Local(),
		Role:      e.Role(),
		Authority: e.Authority(),
		Sender:    e.Sender(),
		Codec:     FireCodec{},
		Effect: func(ev FireEvent) {
			if deps.Counters != nil {
				deps.Counters.RecordEventExecuted()
			}
			deps.Effects.OnFireEvent(entity, ev.Direction)
		},
		Validate: validateFire,
		OnRelay:  e.RelayObserver(EventFire),
	})
	e.AddEvent(EventFire, s.pipeline)
	return s
}

// Fire shoots along the current facing. It reports false with ErrCooldown
// when the previous shot is too recent.
func (s *Shooter) Fire() (bool, error) {
	if !s.role.IsOwner() {
		return false, pipeline.ErrNotOwner
	}
	now := s.clock.Now()
	s.mu.Lock()
	if s.fired && now.Sub(s.lastFired) <= s.cooldown {
		s.mu.Unlock()
		return false, ErrCooldown
	}
	s.lastFired = now
	s.fired = true
	s.mu.Unlock()

	if s.deps.Counters != nil {
		s.deps.Counters.RecordEventFired()
	}
	direction := motion.Forward(s.transform.Yaw())
	if err := s.pipeline.Fire(FireEvent{Direction: direction}); err != nil {
		return true, err
	}
	return true, nil
}

// Ready reports whether the cooldown has elapsed.
func (s *Shooter) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.fired || s.clock.Now().Sub(s.lastFired) > s.cooldown
}
