package motion

import "math"

const minSmoothTime = 0.0001

// SmoothDamp moves current towards target with a critically damped spring
// of time constant smoothTime. velocity carries state between calls. The
// result never passes the target.
func SmoothDamp(current, target float64, velocity *float64, smoothTime, dt float64) float64 {
	if dt <= 0 {
		return current
	}
	smoothTime = math.Max(minSmoothTime, smoothTime)
	omega := 2 / smoothTime
	decay := dampFactor(omega * dt)

	change := current - target
	temp := (*velocity + omega*change) * dt
	*velocity = (*velocity - omega*temp) * decay
	output := target + (change+temp)*decay

	if (target-current > 0) == (output > target) {
		output = target
		*velocity = 0
	}
	return output
}

// SmoothDampVec2 applies SmoothDamp to both ground axes, clamping at the
// target along the direction of travel.
func SmoothDampVec2(current, target Vec2, velocity *Vec2, smoothTime, dt float64) Vec2 {
	if dt <= 0 {
		return current
	}
	smoothTime = math.Max(minSmoothTime, smoothTime)
	omega := 2 / smoothTime
	decay := dampFactor(omega * dt)

	change := current.Sub(target)
	temp := velocity.Add(change.Scale(omega)).Scale(dt)
	*velocity = velocity.Sub(temp.Scale(omega)).Scale(decay)
	output := target.Add(change.Add(temp).Scale(decay))

	if target.Sub(current).Dot(output.Sub(target)) > 0 {
		output = target
		*velocity = Vec2{}
	}
	return output
}

// DeltaAngle returns the shortest signed difference from current to target
// in degrees, in (-180, 180].
func DeltaAngle(current, target float64) float64 {
	delta := math.Mod(target-current, 360)
	if delta < 0 {
		delta += 360
	}
	if delta > 180 {
		delta -= 360
	}
	return delta
}

// SmoothDampAngle smooths an angle along the shortest path, handling the
// 0/360 wrap. The result is unwrapped; callers normalise it if needed.
func SmoothDampAngle(current, target float64, velocity *float64, smoothTime, dt float64) float64 {
	target = current + DeltaAngle(current, target)
	return SmoothDamp(current, target, velocity, smoothTime, dt)
}

// dampFactor approximates exp(-x) with the polynomial used by common game
// engines, stable for large x.
func dampFactor(x float64) float64 {
	return 1 / (1 + x + 0.48*x*x + 0.235*x*x*x)
}
