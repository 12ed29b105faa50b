package display

import (
	"image"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/image/draw"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

// upperHalf draws the top pixel as foreground and the bottom as background.
const upperHalf = '▀'

// Terminal renders the framebuffer into a tcell screen, two pixel rows per
// cell row, scaled to fit the screen. Presents are synchronous, so the
// framebuffer is cleared in place afterwards.
type Terminal struct {
	screen tcell.Screen
	width  uint16
	height uint16
	sinks  sinks
	seq    uint64
	canvas *image.RGBA
}

// NewTerminal takes ownership of an initialized screen. width and height are
// the resolution reported to the host.
func NewTerminal(screen tcell.Screen, width, height uint16, sinks ...Sink) *Terminal {
	screen.HideCursor()
	screen.Clear()
	return &Terminal{screen: screen, width: width, height: height, sinks: sinks}
}

// OpenTerminal initializes the controlling terminal.
func OpenTerminal(width, height uint16, sinks ...Sink) (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	return NewTerminal(screen, width, height, sinks...), nil
}

func (t *Terminal) Dimensions() (uint16, uint16) {
	return t.width, t.height
}

func (t *Terminal) Present(textures *texture.Manager) error {
	fb, ok := textures.Framebuffer()
	if !ok {
		return ErrNoFramebuffer
	}
	t.seq++
	t.sinks.publish(Snapshot(fb, t.seq))

	cols, rows := t.screen.Size()
	if cols > 0 && rows > 0 {
		t.blit(fb, cols, rows)
	}
	fb.Fill(color.Black)
	return nil
}

func (t *Terminal) blit(fb *texture.Texture, cols, rows int) {
	bounds := image.Rect(0, 0, cols, rows*2)
	if t.canvas == nil || t.canvas.Bounds() != bounds {
		t.canvas = image.NewRGBA(bounds)
	}
	draw.NearestNeighbor.Scale(t.canvas, bounds, fb, fb.Bounds(), draw.Src, nil)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			top := rgbAt(t.canvas, x, 2*y)
			bottom := rgbAt(t.canvas, x, 2*y+1)
			style := tcell.StyleDefault.Foreground(top).Background(bottom)
			t.screen.SetContent(x, y, upperHalf, nil, style)
		}
	}
	t.screen.Show()
}

func rgbAt(img *image.RGBA, x, y int) tcell.Color {
	i := img.PixOffset(x, y)
	return tcell.NewRGBColor(int32(img.Pix[i]), int32(img.Pix[i+1]), int32(img.Pix[i+2]))
}

// Close restores the terminal.
func (t *Terminal) Close() {
	t.screen.Fini()
}
