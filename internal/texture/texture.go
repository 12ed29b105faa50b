package texture

import (
	"image"
	stdcolor "image/color"

	"github.com/danmuck/microgpu/internal/color"
)

const (
	FramebufferID uint8 = 0
	// FirstHostID and LastHostID bound the ids the host may define.
	FirstHostID uint8 = 1
	LastHostID  uint8 = 200
	// SwapID is the slot displays rotate the framebuffer through.
	SwapID uint8 = 201

	slotCount = 256
)

// IsHostID reports whether id may be defined by the host.
func IsHostID(id uint8) bool {
	return id >= FirstHostID && id <= LastHostID
}

// Texture is a row-major block of device colors.
type Texture struct {
	ID            uint8
	Width         int
	Height        int
	Transparent   color.Color
	Scale         uint8
	PixelsWritten int
	Pixels        []color.Color

	pool Pool
}

// Capacity is the number of pixels the texture holds.
func (t *Texture) Capacity() int {
	return t.Width * t.Height
}

// Pool returns the pool backing the texture's pixels.
func (t *Texture) Pool() Pool {
	return t.pool
}

// Row returns the pixels of row y.
func (t *Texture) Row(y int) []color.Color {
	start := y * t.Width
	return t.Pixels[start : start+t.Width]
}

// Pixel returns the color at (x, y). Coordinates must be in bounds.
func (t *Texture) Pixel(x, y int) color.Color {
	return t.Pixels[y*t.Width+x]
}

func (t *Texture) SetPixel(x, y int, c color.Color) {
	t.Pixels[y*t.Width+x] = c
}

func (t *Texture) Fill(c color.Color) {
	for i := range t.Pixels {
		t.Pixels[i] = c
	}
}

func (t *Texture) ColorModel() stdcolor.Model {
	return color.Model
}

func (t *Texture) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.Width, t.Height)
}

func (t *Texture) At(x, y int) stdcolor.Color {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return color.Black
	}
	return t.Pixel(x, y)
}

// Set makes Texture a draw.Image so glyph and scaling code can target it.
func (t *Texture) Set(x, y int, c stdcolor.Color) {
	if x < 0 || y < 0 || x >= t.Width || y >= t.Height {
		return
	}
	t.Pixels[y*t.Width+x] = color.Model.Convert(c).(color.Color)
}
