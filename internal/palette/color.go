// Package palette holds the replicated colour type and the cyclic attribute
// that walks a fixed palette on the writer side.
package palette

import "fmt"

// Color is an 8-bit RGBA colour.
type Color struct {
	R, G, B, A uint8
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

var (
	Red     = Color{R: 255, A: 255}
	Blue    = Color{B: 255, A: 255}
	Green   = Color{G: 255, A: 255}
	Yellow  = Color{R: 255, G: 235, B: 4, A: 255}
	Black   = Color{A: 255}
	White   = Color{R: 255, G: 255, B: 255, A: 255}
	Magenta = Color{R: 255, B: 255, A: 255}
	Gray    = Color{R: 128, G: 128, B: 128, A: 255}
)

// Default is the player colour palette, in cycle order.
func Default() []Color {
	return []Color{Red, Blue, Green, Yellow, Black, White, Magenta, Gray}
}

// ColorCodec encodes colours as four bytes RGBA.
type ColorCodec struct{}

func (ColorCodec) Encode(c Color) ([]byte, error) {
	return []byte{c.R, c.G, c.B, c.A}, nil
}

func (ColorCodec) Decode(data []byte) (Color, error) {
	if len(data) != 4 {
		return Color{}, fmt.Errorf("color: expected 4 bytes, got %d", len(data))
	}
	return Color{R: data[0], G: data[1], B: data[2], A: data[3]}, nil
}
