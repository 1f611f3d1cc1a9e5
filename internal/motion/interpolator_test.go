package motion

import (
	"math"
	"testing"
)

const stepsPerSecond = 60

func TestDeltaAngleShortestPath(t *testing.T) {
	tests := []struct {
		current, target, want float64
	}{
		{350, 10, 20},
		{10, 350, -20},
		{0, 180, 180},
		{180, 0, 180},
		{90, 90, 0},
		{720, 45, 45},
	}
	for _, tt := range tests {
		if got := DeltaAngle(tt.current, tt.target); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("DeltaAngle(%v, %v) = %v, want %v", tt.current, tt.target, got, tt.want)
		}
	}
}

func TestInterpolatorYawCrossesZero(t *testing.T) {
	interp := NewInterpolator(0.1, Vec2{}, 350)
	target := NewSnapshot(Vec2{}, 10)
	dt := 1.0 / stepsPerSecond

	previous := interp.Yaw()
	travelled := 0.0
	for i := 0; i < 5*stepsPerSecond; i++ {
		_, yaw := interp.Step(target, dt)
		delta := DeltaAngle(previous, yaw)
		if delta < 0 {
			t.Fatalf("step %d moved backwards from %.4f to %.4f", i, previous, yaw)
		}
		travelled += delta
		previous = yaw
	}
	if math.Abs(DeltaAngle(interp.Yaw(), 10)) > 1e-3 {
		t.Fatalf("expected convergence to 10°, got %.4f", interp.Yaw())
	}
	if travelled > 20+1e-6 {
		t.Fatalf("expected at most 20° of travel, got %.4f", travelled)
	}
}

func TestInterpolatorConvergesWithoutOvershoot(t *testing.T) {
	for _, tau := range []float64{0.05, 0.1, 0.5} {
		interp := NewInterpolator(tau, Vec2{X: -4, Z: 3}, 0)
		target := NewSnapshot(Vec2{X: 6, Z: -2}, 0)
		dt := 1.0 / stepsPerSecond

		distance := interp.Position().Distance(target.Position())
		converged := -1
		for i := 0; i < int(20*tau*stepsPerSecond)+stepsPerSecond; i++ {
			pos, _ := interp.Step(target, dt)
			next := pos.Distance(target.Position())
			if next > distance {
				t.Fatalf("tau=%v step %d: distance grew from %g to %g", tau, i, distance, next)
			}
			if distance > 1e-6 && next >= distance {
				t.Fatalf("tau=%v step %d: distance did not decrease (%g -> %g)", tau, i, distance, next)
			}
			distance = next
			if converged < 0 && distance < 1e-3 {
				converged = i
			}
		}
		if converged < 0 {
			t.Fatalf("tau=%v: never converged, final distance %g", tau, distance)
		}
		if bound := int(10 * tau * stepsPerSecond); converged > bound {
			t.Fatalf("tau=%v: converged after %d steps, expected within %d", tau, converged, bound)
		}
	}
}

func TestInterpolatorEndToEndScenario(t *testing.T) {
	interp := NewInterpolator(0.1, Vec2{}, 0)
	target := NewSnapshot(Vec2{X: 1, Z: 2}, 90)
	dt := 1.0 / stepsPerSecond

	var pos Vec2
	var yaw float64
	for i := 0; i < stepsPerSecond; i++ {
		pos, yaw = interp.Step(target, dt)
	}
	if pos.Distance(Vec2{X: 1, Z: 2}) > 0.01 {
		t.Fatalf("position %+v not within 0.01 of (1,2)", pos)
	}
	if math.Abs(DeltaAngle(yaw, 90)) > 1 {
		t.Fatalf("yaw %.3f not within 1° of 90", yaw)
	}
}

func TestInterpolatorResetClearsVelocity(t *testing.T) {
	interp := NewInterpolator(0.2, Vec2{}, 0)
	target := NewSnapshot(Vec2{X: 10}, 45)
	for i := 0; i < 5; i++ {
		interp.Step(target, 1.0/stepsPerSecond)
	}
	interp.Reset(Vec2{X: 10}, 45)
	pos, yaw := interp.Step(target, 1.0/stepsPerSecond)
	if pos != (Vec2{X: 10}) || yaw != 45 {
		t.Fatalf("expected reset interpolator to hold at target, got %+v %.3f", pos, yaw)
	}
}

func TestSmoothDampZeroDeltaTime(t *testing.T) {
	velocity := 3.0
	if got := SmoothDamp(1, 5, &velocity, 0.1, 0); got != 1 || velocity != 3 {
		t.Fatalf("expected no change for dt=0, got %v velocity %v", got, velocity)
	}
}
