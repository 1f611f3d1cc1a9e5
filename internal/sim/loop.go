// Package sim runs the fixed-timestep loop that advances sessions.
package sim

import (
	"time"

	"netsync/logging"
)

const defaultTickRate = 60

// Stepper advances the simulation by dt seconds.
type Stepper interface {
	Advance(dt float64)
}

// StepperFunc adapts a function into a Stepper.
type StepperFunc func(dt float64)

// Advance implements Stepper.
func (f StepperFunc) Advance(dt float64) {
	if f != nil {
		f(dt)
	}
}

// LoopConfig tunes the tick loop.
type LoopConfig struct {
	TickRate        int
	CatchupMaxTicks int
}

// LoopTickContext describes the step about to run.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult reports how a step went.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	// ObservedDelta is the wall-clock gap before clamping.
	ObservedDelta float64
}

// LoopHooks observe the loop without owning it.
type LoopHooks struct {
	Prepare   func(LoopTickContext)
	AfterStep func(LoopStepResult)
	NextTick  func() uint64
}

// Loop drives a Stepper at a fixed rate.
type Loop struct {
	stepper Stepper
	hooks   LoopHooks
	config  LoopConfig
	clock   logging.Clock
	tick    uint64
}

// NewLoop wraps stepper in a fixed-rate loop.
func NewLoop(stepper Stepper, cfg LoopConfig, hooks LoopHooks, clock logging.Clock) *Loop {
	if stepper == nil {
		return nil
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if clock == nil {
		clock = logging.SystemClock{}
	}
	return &Loop{stepper: stepper, hooks: hooks, config: cfg, clock: clock}
}

// Budget returns the wall-clock time allotted to one step.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickRate)
}

// Advance executes a single step.
func (l *Loop) Advance(ctx LoopTickContext) LoopStepResult {
	if l == nil {
		return LoopStepResult{}
	}
	if l.hooks.Prepare != nil {
		l.hooks.Prepare(ctx)
	}
	start := l.clock.Now()
	l.stepper.Advance(ctx.Delta)
	return LoopStepResult{
		Tick:     ctx.Tick,
		Now:      ctx.Now,
		Delta:    ctx.Delta,
		Duration: l.clock.Now().Sub(start),
		Budget:   l.Budget(),
	}
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	if l == nil {
		return
	}
	budgetDuration := l.Budget()
	ticker := time.NewTicker(budgetDuration)
	defer ticker.Stop()

	last := l.clock.Now()
	budgetSeconds := budgetDuration.Seconds()
	maxDt := budgetSeconds
	if l.config.CatchupMaxTicks > 1 {
		maxDt = budgetSeconds * float64(l.config.CatchupMaxTicks)
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := l.clock.Now()
			observed := now.Sub(last).Seconds()
			dt := observed
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now

			var tick uint64
			if l.hooks.NextTick != nil {
				tick = l.hooks.NextTick()
			} else {
				l.tick++
				tick = l.tick
			}

			result := l.Advance(LoopTickContext{Tick: tick, Now: now, Delta: dt})
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			result.ObservedDelta = observed

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}
