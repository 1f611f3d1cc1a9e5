package sim

import (
	"context"

	"netsync/internal/telemetry"
	"netsync/logging"
	"netsync/logging/simulation"
)

// BudgetMonitor records step durations and reports ticks that overran
// their budget.
type BudgetMonitor struct {
	counters  *telemetry.Counters
	publisher logging.Publisher
}

// NewBudgetMonitor constructs a monitor. Either collaborator may be nil.
func NewBudgetMonitor(counters *telemetry.Counters, publisher logging.Publisher) *BudgetMonitor {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &BudgetMonitor{counters: counters, publisher: publisher}
}

// AfterStep is suitable for LoopHooks.AfterStep.
func (m *BudgetMonitor) AfterStep(result LoopStepResult) {
	m.counters.RecordTickDuration(result.Duration)
	if result.ClampedDelta {
		simulation.DeltaClamped(context.Background(), m.publisher, result.Tick, simulation.DeltaClampedPayload{
			ObservedSeconds: result.ObservedDelta,
			MaxSeconds:      result.MaxDelta,
		})
	}
	if result.Budget <= 0 || result.Duration <= result.Budget {
		m.counters.ResetTickBudgetOverrunStreak()
		return
	}
	streak := m.counters.RecordTickBudgetOverrun(result.Duration, result.Budget)
	simulation.TickBudgetOverrun(context.Background(), m.publisher, result.Tick,
		simulation.NewTickBudgetOverrunPayload(result.Duration, result.Budget, streak, result.ClampedDelta))
}
