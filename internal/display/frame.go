// Package display implements framebuffer consumers for the engine.
package display

import (
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

// Frame is a copy of a presented framebuffer.
type Frame struct {
	Seq         uint64
	Width       int
	Height      int
	Scale       uint8
	Pixels      []color.Color
	PresentedAt time.Time
}

// Snapshot copies t into a Frame.
func Snapshot(t *texture.Texture, seq uint64) Frame {
	pixels := make([]color.Color, len(t.Pixels))
	copy(pixels, t.Pixels)
	return Frame{
		Seq:         seq,
		Width:       t.Width,
		Height:      t.Height,
		Scale:       t.Scale,
		Pixels:      pixels,
		PresentedAt: time.Now(),
	}
}

// Image converts the frame to RGBA, scaled up by the framebuffer scale.
func (f Frame) Image() *image.RGBA {
	src := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.Pixels[y*f.Width+x].RGB888()
			i := src.PixOffset(x, y)
			src.Pix[i+0] = r
			src.Pix[i+1] = g
			src.Pix[i+2] = b
			src.Pix[i+3] = 0xFF
		}
	}
	scale := int(f.Scale)
	if scale <= 1 {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, f.Width*scale, f.Height*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Sink receives every presented frame. Implementations must not block.
type Sink interface {
	Frame(f Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

func (fn SinkFunc) Frame(f Frame) { fn(f) }

// Latest keeps the most recent frame for readers on other goroutines.
type Latest struct {
	mu    sync.RWMutex
	frame Frame
	ok    bool
}

func (l *Latest) Frame(f Frame) {
	l.mu.Lock()
	l.frame = f
	l.ok = true
	l.mu.Unlock()
}

// Get returns the last frame, if any was presented.
func (l *Latest) Get() (Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame, l.ok
}

type sinks []Sink

func (s sinks) publish(f Frame) {
	for _, sink := range s {
		sink.Frame(f)
	}
}
