package motion

// Sink receives the local transform once per simulation step.
type Sink interface {
	ApplyMotion(position Vec2, yawDegrees float64)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(position Vec2, yawDegrees float64)

func (f SinkFunc) ApplyMotion(position Vec2, yawDegrees float64) {
	if f != nil {
		f(position, yawDegrees)
	}
}

// Interpolator converges a local transform towards the latest replicated
// snapshot. Position and yaw keep independent velocity state, reset only by
// Reset. Teleports are smoothed like any other jump.
type Interpolator struct {
	tau      float64
	position Vec2
	yaw      float64
	posVel   Vec2
	yawVel   float64
}

// NewInterpolator starts at the given transform with zero velocity.
func NewInterpolator(tau float64, position Vec2, yawDegrees float64) *Interpolator {
	i := &Interpolator{tau: tau}
	i.Reset(position, yawDegrees)
	return i
}

// Reset places the interpolator at a transform and clears velocity.
func (i *Interpolator) Reset(position Vec2, yawDegrees float64) {
	i.position = position
	i.yaw = NormalizeDegrees(yawDegrees)
	i.posVel = Vec2{}
	i.yawVel = 0
}

// Step advances by dt seconds towards target and returns the new transform.
func (i *Interpolator) Step(target Snapshot, dt float64) (Vec2, float64) {
	i.position = SmoothDampVec2(i.position, target.Position(), &i.posVel, i.tau, dt)
	i.yaw = NormalizeDegrees(SmoothDampAngle(i.yaw, target.YawDegrees(), &i.yawVel, i.tau, dt))
	return i.position, i.yaw
}

// Position returns the current smoothed position.
func (i *Interpolator) Position() Vec2 { return i.position }

// Yaw returns the current smoothed yaw in [0, 360).
func (i *Interpolator) Yaw() float64 { return i.yaw }

// Tau returns the smoothing time constant in seconds.
func (i *Interpolator) Tau() float64 { return i.tau }
