package app

import (
	"errors"
	"math"
	"time"

	"netsync/internal/motion"
	"netsync/internal/player"
	"netsync/internal/telemetry"
)

const (
	pilotAngularSpeed = 0.8
	pilotAimDistance  = 5.0
)

// pilot drives an owned player around a circle, firing and cycling its
// color on fixed intervals.
type pilot struct {
	controller    *player.Controller
	self          *player.Player
	fireEvery     float64
	colorEvery    float64
	phase         float64
	elapsed       float64
	sinceFire     float64
	sinceColor    float64
	logger        telemetry.Logger
	fired, cycled int
}

func newPilot(start motion.Vec2, phase float64, fireEvery, colorEvery time.Duration, logger telemetry.Logger) *pilot {
	return &pilot{
		controller: player.NewController(start, 0),
		fireEvery:  fireEvery.Seconds(),
		colorEvery: colorEvery.Seconds(),
		phase:      phase,
		logger:     logger,
	}
}

// Source is handed to the player factory for the owned entity.
func (p *pilot) Source() player.Source { return p.controller }

func (p *pilot) attach(self *player.Player) { p.self = self }

// Step steers the controller; the player samples it during the session tick.
func (p *pilot) Step(dt float64) {
	p.elapsed += dt
	angle := p.phase + p.elapsed*pilotAngularSpeed
	tangent := motion.Vec2{X: -math.Sin(angle), Z: math.Cos(angle)}
	p.controller.SetInput(tangent)
	p.controller.SetAim(p.controller.Position().Add(tangent.Scale(pilotAimDistance)))

	if p.self == nil {
		return
	}
	p.sinceFire += dt
	if p.fireEvery > 0 && p.sinceFire >= p.fireEvery {
		p.sinceFire = 0
		if ok, err := p.self.Fire(); err != nil && !errors.Is(err, player.ErrCooldown) {
			p.logger.Printf("fire failed: %v", err)
		} else if ok {
			p.fired++
		}
	}
	p.sinceColor += dt
	if p.colorEvery > 0 && p.sinceColor >= p.colorEvery {
		p.sinceColor = 0
		if err := p.self.AdvanceColor(); err != nil {
			p.logger.Printf("color advance failed: %v", err)
		} else {
			p.cycled++
		}
	}
}
