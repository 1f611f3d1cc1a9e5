// Package player assembles the replicated player entity: a synchronised
// transform, a server-authoritative color, and a fire event.
package player

import (
	"errors"
	"fmt"
	"time"

	"netsync/internal/motion"
	"netsync/internal/palette"
	"netsync/internal/replication"
	"netsync/internal/session"
	"netsync/internal/telemetry"
)

// Kind is the entity kind registered for players.
const Kind = "player"

const (
	FieldTransform replication.FieldID = "transform"
	FieldColor     replication.FieldID = "color"
	EventFire      replication.EventID = "fire"
)

const (
	defaultInterpolationTime = 0.1
	defaultFireCooldown      = 500 * time.Millisecond
)

// Config tunes every player spawned by a factory.
type Config struct {
	// ServerAuthoritative makes the transform server-written; owners then
	// forward their samples as commit requests.
	ServerAuthoritative bool
	// InterpolationTime is the smoothing time constant in seconds.
	InterpolationTime float64
	FireCooldown      time.Duration
	Palette           []palette.Color
	// ColorStart seeds the owner's palette cursor.
	ColorStart int
	Spawn      motion.Vec2
}

// DefaultConfig returns owner-authoritative movement with the default palette.
func DefaultConfig() Config {
	return Config{
		InterpolationTime: defaultInterpolationTime,
		FireCooldown:      defaultFireCooldown,
		Palette:           palette.Default(),
	}
}

// Clock reports the current time for fire cooldowns.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps supplies the per-participant collaborators a player needs.
type Deps struct {
	Clock    Clock
	Effects  Effects
	Counters *telemetry.Counters
	// Sink returns where an entity's motion is presented. Nil discards.
	Sink func(e *session.Entity) motion.Sink
	// Source returns the input driving an owned entity. Nil keeps the
	// owner stationary.
	Source func(e *session.Entity) Source
	// OnSpawn observes every constructed player.
	OnSpawn func(p *Player)
}

// Player is the behaviour attached to a player entity replica.
type Player struct {
	entity    *session.Entity
	transform *TransformSync
	color     *ColorSync
	shooter   *Shooter
}

// Factory returns a session factory building players with cfg.
func Factory(cfg Config, deps Deps) session.Factory {
	if cfg.InterpolationTime <= 0 {
		cfg.InterpolationTime = defaultInterpolationTime
	}
	if cfg.FireCooldown <= 0 {
		cfg.FireCooldown = defaultFireCooldown
	}
	if len(cfg.Palette) == 0 {
		cfg.Palette = palette.Default()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.Effects == nil {
		deps.Effects = NopEffects{}
	}
	return func(e *session.Entity) (session.Behavior, error) {
		p, err := newPlayer(e, cfg, deps)
		if err != nil {
			return nil, err
		}
		if deps.OnSpawn != nil {
			deps.OnSpawn(p)
		}
		return p, nil
	}
}

func newPlayer(e *session.Entity, cfg Config, deps Deps) (*Player, error) {
	var sink motion.Sink
	if deps.Sink != nil {
		sink = deps.Sink(e)
	}
	var source Source
	if deps.Source != nil && e.Role().IsOwner() {
		source = deps.Source(e)
	}
	transform := newTransformSync(e, cfg, source, sink)
	color, err := newColorSync(e, cfg, deps.Effects)
	if err != nil {
		transform.Close()
		return nil, fmt.Errorf("color: %w", err)
	}
	shooter := newShooter(e, cfg, deps, transform)
	return &Player{entity: e, transform: transform, color: color, shooter: shooter}, nil
}

func (p *Player) Entity() *session.Entity   { return p.entity }
func (p *Player) Transform() *TransformSync { return p.transform }
func (p *Player) Color() *ColorSync         { return p.color }
func (p *Player) Shooter() *Shooter         { return p.shooter }

// Tick transmits the owner's state or consumes the replicated one.
func (p *Player) Tick(dt float64) {
	p.transform.Tick(dt)
}

// Close unregisters every observer the player installed.
func (p *Player) Close() {
	p.transform.Close()
	p.color.Close()
}

// Fire shoots along the player's facing if the cooldown allows.
func (p *Player) Fire() (bool, error) {
	return p.shooter.Fire()
}

// AdvanceColor commits the next palette color.
func (p *Player) AdvanceColor() error {
	return p.color.Advance()
}

// ErrCooldown is returned when firing again before the cooldown elapsed.
var ErrCooldown = errors.New("player: fire on cooldown")
