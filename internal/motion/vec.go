// Package motion covers ground-plane transforms: the compact replicated
// snapshot, critically damped smoothing, and the interpolator that hides
// snapshot sparsity from the render sink.
package motion

import "math"

// Vec2 is a point on the ground plane. Elevation is never replicated.
type Vec2 struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

func (v Vec2) Add(o Vec2) Vec2         { return Vec2{v.X + o.X, v.Z + o.Z} }
func (v Vec2) Sub(o Vec2) Vec2         { return Vec2{v.X - o.X, v.Z - o.Z} }
func (v Vec2) Scale(s float64) Vec2    { return Vec2{v.X * s, v.Z * s} }
func (v Vec2) Dot(o Vec2) float64      { return v.X*o.X + v.Z*o.Z }
func (v Vec2) Length() float64         { return math.Hypot(v.X, v.Z) }
func (v Vec2) Distance(o Vec2) float64 { return v.Sub(o).Length() }

// ClampLength limits the vector magnitude to max.
func (v Vec2) ClampLength(max float64) Vec2 {
	length := v.Length()
	if length <= max || length == 0 {
		return v
	}
	return v.Scale(max / length)
}

// Normalized returns the unit vector, or the zero vector when v is zero.
func (v Vec2) Normalized() Vec2 {
	length := v.Length()
	if length == 0 {
		return Vec2{}
	}
	return v.Scale(1 / length)
}

// Vec3 is a full 3D vector, used for event directions.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Normalized returns the unit vector and false when v has no direction.
func (v Vec3) Normalized() (Vec3, bool) {
	length := v.Length()
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return Vec3{}, false
	}
	return Vec3{v.X / length, v.Y / length, v.Z / length}, true
}

// Forward returns the unit facing vector for a yaw in degrees, with 0°
// pointing along +Z and 90° along +X.
func Forward(yawDegrees float64) Vec3 {
	rad := yawDegrees * math.Pi / 180
	return Vec3{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
}

// YawTowards returns the yaw in degrees that faces from origin to target.
func YawTowards(origin, target Vec2) float64 {
	d := target.Sub(origin)
	if d.X == 0 && d.Z == 0 {
		return 0
	}
	return NormalizeDegrees(math.Atan2(d.X, d.Z) * 180 / math.Pi)
}
