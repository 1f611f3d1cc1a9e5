package motion

import (
	"encoding/binary"
	"fmt"
	"math"
)

// YawStep is the yaw quantization step in degrees.
const YawStep = 1.0

// SnapshotSize is the encoded size of a Snapshot in bytes.
const SnapshotSize = 10

// Snapshot is the replicated transform: ground position in float32 and yaw
// quantized to whole degrees in [0, 360). Elevation, pitch and roll are
// intentionally absent.
type Snapshot struct {
	X   float32
	Z   float32
	Yaw int16
}

// NewSnapshot quantizes a position and yaw into a Snapshot.
func NewSnapshot(position Vec2, yawDegrees float64) Snapshot {
	return Snapshot{
		X:   float32(position.X),
		Z:   float32(position.Z),
		Yaw: QuantizeYaw(yawDegrees),
	}
}

// Position returns the ground-plane position.
func (s Snapshot) Position() Vec2 {
	return Vec2{X: float64(s.X), Z: float64(s.Z)}
}

// YawDegrees returns the decoded yaw.
func (s Snapshot) YawDegrees() float64 {
	return float64(s.Yaw) * YawStep
}

// QuantizeYaw rounds a yaw to the nearest step and wraps it into [0, 360).
func QuantizeYaw(yawDegrees float64) int16 {
	steps := math.Round(NormalizeDegrees(yawDegrees) / YawStep)
	full := math.Round(360 / YawStep)
	if steps >= full {
		steps -= full
	}
	return int16(steps)
}

// NormalizeDegrees wraps an angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	wrapped := math.Mod(deg, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	if wrapped >= 360 {
		wrapped = 0
	}
	return wrapped
}

// SnapshotCodec encodes snapshots as little-endian x, z (float32) and yaw
// (int16).
type SnapshotCodec struct{}

func (SnapshotCodec) Encode(s Snapshot) ([]byte, error) {
	buf := make([]byte, SnapshotSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(s.X))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(s.Z))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(s.Yaw))
	return buf, nil
}

func (SnapshotCodec) Decode(data []byte) (Snapshot, error) {
	if len(data) != SnapshotSize {
		return Snapshot{}, fmt.Errorf("snapshot: expected %d bytes, got %d", SnapshotSize, len(data))
	}
	s := Snapshot{
		X:   math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
		Z:   math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
		Yaw: int16(binary.LittleEndian.Uint16(data[8:10])),
	}
	if isBad32(s.X) || isBad32(s.Z) {
		return Snapshot{}, fmt.Errorf("snapshot: non-finite position")
	}
	return s, nil
}

func isBad32(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}
