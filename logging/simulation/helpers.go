// Package simulation holds the structured events emitted by the fixed-step
// tick loop.
package simulation

import (
	"context"
	"time"

	"netsync/logging"
)

const (
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	EventDeltaClamped      logging.EventType = "simulation.delta_clamped"
)

// TickBudgetOverrunPayload describes a step that ran longer than its budget.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
	ClampedDelta   bool    `json:"clampedDelta,omitempty"`
}

// NewTickBudgetOverrunPayload derives the ratio from duration and budget.
func NewTickBudgetOverrunPayload(duration, budget time.Duration, streak uint64, clamped bool) TickBudgetOverrunPayload {
	payload := TickBudgetOverrunPayload{
		DurationMillis: duration.Milliseconds(),
		BudgetMillis:   budget.Milliseconds(),
		Streak:         streak,
		ClampedDelta:   clamped,
	}
	if budget > 0 {
		payload.Ratio = float64(duration) / float64(budget)
	}
	return payload
}

// DeltaClampedPayload reports a tick whose elapsed time was capped, which
// happens after a stall long enough to make interpolation jump.
type DeltaClampedPayload struct {
	ObservedSeconds float64 `json:"observedSeconds"`
	MaxSeconds      float64 `json:"maxSeconds"`
}

// TickBudgetOverrun publishes a warning for a step over budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Payload:  payload,
	})
}

// DeltaClamped publishes an info event for a capped tick delta.
func DeltaClamped(ctx context.Context, pub logging.Publisher, tick uint64, payload DeltaClampedPayload) {
	publish(ctx, pub, logging.Event{
		Type:     EventDeltaClamped,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Payload:  payload,
	})
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategorySystem
	pub.Publish(ctx, event)
}
