package color

import (
	"encoding/binary"
	stdcolor "image/color"
)

// Mode identifies the pixel format a device expects on the wire.
type Mode uint8

const (
	ModeUnspecified Mode = 0
	ModeRGB565      Mode = 1
)

// BytesPerPixel is the wire width of one RGB565 color.
const BytesPerPixel = 2

// Color is a packed 5:6:5 device color.
type Color uint16

const (
	Black Color = 0x0000
	White Color = 0xFFFF
	Red   Color = 0xF800
	Green Color = 0x07E0
	Blue  Color = 0x001F
)

// ActiveMode is the color mode reported in status responses.
func ActiveMode() Mode {
	return ModeRGB565
}

// FromRGB565 packs components that are already in 5/6/5 bit ranges.
func FromRGB565(r, g, b uint8) Color {
	return Color(uint16(r&0x1F)<<11 | uint16(g&0x3F)<<5 | uint16(b&0x1F))
}

// FromRGB888 converts 8-bit components down to 5:6:5.
func FromRGB888(r, g, b uint8) Color {
	return FromRGB565(r>>3, g>>2, b>>3)
}

func (c Color) RGB565() (r, g, b uint8) {
	return uint8(c >> 11), uint8((c & 0x07E0) >> 5), uint8(c & 0x001F)
}

func (c Color) RGB888() (r, g, b uint8) {
	r5, g6, b5 := c.RGB565()
	return r5 << 3, g6 << 2, b5 << 3
}

// RGBA satisfies image/color.Color so textures can feed image pipelines.
func (c Color) RGBA() (r, g, b, a uint32) {
	r8, g8, b8 := c.RGB888()
	r = uint32(r8)
	r |= r << 8
	g = uint32(g8)
	g |= g << 8
	b = uint32(b8)
	b |= b << 8
	return r, g, b, 0xFFFF
}

// Model converts arbitrary colors into RGB565.
var Model = stdcolor.ModelFunc(func(c stdcolor.Color) stdcolor.Color {
	if packed, ok := c.(Color); ok {
		return packed
	}
	r, g, b, _ := c.RGBA()
	return FromRGB888(uint8(r>>8), uint8(g>>8), uint8(b>>8))
})

// Decode reads one big-endian color from the front of b. Callers must have
// checked len(b) >= BytesPerPixel.
func Decode(b []byte) Color {
	return Color(binary.BigEndian.Uint16(b[:BytesPerPixel]))
}

// Put writes c big-endian into the front of b.
func Put(b []byte, c Color) {
	binary.BigEndian.PutUint16(b[:BytesPerPixel], uint16(c))
}

// Append appends the wire form of c to b.
func Append(b []byte, c Color) []byte {
	return binary.BigEndian.AppendUint16(b, uint16(c))
}
