package player

import (
	"math"

	"netsync/internal/motion"
)

const (
	defaultAcceleration  = 80.0
	defaultMaxSpeed      = 10.0
	defaultRotationSpeed = 450.0
)

// Controller is a kinematic stand-in for physics: input accelerates the body
// up to a speed cap and the facing turns toward an aim point at a bounded
// rate.
type Controller struct {
	Acceleration  float64
	MaxSpeed      float64
	RotationSpeed float64

	position motion.Vec2
	velocity motion.Vec2
	yaw      float64
	input    motion.Vec2
	aim      motion.Vec2
	aiming   bool
}

// NewController places a controller at position facing yaw degrees.
func NewController(position motion.Vec2, yaw float64) *Controller {
	return &Controller{
		Acceleration:  defaultAcceleration,
		MaxSpeed:      defaultMaxSpeed,
		RotationSpeed: defaultRotationSpeed,
		position:      position,
		yaw:           motion.NormalizeDegrees(yaw),
	}
}

// SetInput sets the movement axis. Its direction matters, not its length.
func (c *Controller) SetInput(input motion.Vec2) { c.input = input }

// SetAim sets the world point the controller turns to face.
func (c *Controller) SetAim(point motion.Vec2) {
	c.aim = point
	c.aiming = true
}

// ClearAim stops turning.
func (c *Controller) ClearAim() { c.aiming = false }

// Sample integrates one step and returns the new position and yaw.
func (c *Controller) Sample(dt float64) (motion.Vec2, float64) {
	if dt <= 0 {
		return c.position, c.yaw
	}
	c.velocity = c.velocity.Add(c.input.Normalized().Scale(c.Acceleration * dt)).ClampLength(c.MaxSpeed)
	c.position = c.position.Add(c.velocity.Scale(dt))
	if c.aiming && c.aim.Distance(c.position) > 0 {
		target := motion.YawTowards(c.position, c.aim)
		delta := motion.DeltaAngle(c.yaw, target)
		limit := c.RotationSpeed * dt
		if math.Abs(delta) > limit {
			delta = math.Copysign(limit, delta)
		}
		c.yaw = motion.NormalizeDegrees(c.yaw + delta)
	}
	return c.position, c.yaw
}

// Position returns the integrated position.
func (c *Controller) Position() motion.Vec2 { return c.position }

// Velocity returns the current velocity.
func (c *Controller) Velocity() motion.Vec2 { return c.velocity }

// Yaw returns the current facing in degrees.
func (c *Controller) Yaw() float64 { return c.yaw }
