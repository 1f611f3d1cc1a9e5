package motion

import (
	"math"
	"testing"
)

func TestSnapshotQuantizationRoundTrip(t *testing.T) {
	positions := []Vec2{
		{0, 0},
		{1.25, -3.5},
		{1234.5678, -9876.54321},
		{0.1, 0.2},
		{-0.000123, 77777.7},
	}
	yaws := []float64{0, 0.49, 0.51, 89.7, 90, 179.5, 180.2, 359.4, 359.6, -45, 725.3}
	codec := SnapshotCodec{}

	for _, pos := range positions {
		for _, yaw := range yaws {
			encoded, err := codec.Encode(NewSnapshot(pos, yaw))
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(encoded) != SnapshotSize {
				t.Fatalf("expected %d bytes, got %d", SnapshotSize, len(encoded))
			}
			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}

			got := decoded.Position()
			if !withinFloat32Step(pos.X, got.X) || !withinFloat32Step(pos.Z, got.Z) {
				t.Fatalf("position %+v decoded to %+v", pos, got)
			}
			if d := math.Abs(DeltaAngle(yaw, decoded.YawDegrees())); d > YawStep {
				t.Fatalf("yaw %.3f decoded to %.3f (delta %.3f)", yaw, decoded.YawDegrees(), d)
			}
			if decoded.Yaw < 0 || decoded.Yaw >= 360 {
				t.Fatalf("yaw %d outside [0,360)", decoded.Yaw)
			}
		}
	}
}

func withinFloat32Step(want, got float64) bool {
	f := float32(want)
	step := math.Abs(float64(math.Nextafter32(f, float32(math.Inf(1)))) - float64(f))
	return math.Abs(want-got) <= step
}

func TestQuantizeYawWrapsNearFullCircle(t *testing.T) {
	if got := QuantizeYaw(359.7); got != 0 {
		t.Fatalf("expected 359.7 to wrap to 0, got %d", got)
	}
	if got := QuantizeYaw(-90); got != 270 {
		t.Fatalf("expected -90 to map to 270, got %d", got)
	}
}

func TestSnapshotCodecRejectsBadInput(t *testing.T) {
	codec := SnapshotCodec{}
	if _, err := codec.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short buffer to fail")
	}
	nan, _ := codec.Encode(Snapshot{X: float32(math.NaN())})
	if _, err := codec.Decode(nan); err == nil {
		t.Fatalf("expected NaN position to fail")
	}
}
