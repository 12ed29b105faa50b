package display

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/texture"
)

var ErrNoFramebuffer = errors.New("display: framebuffer not defined")

// Headless is a display with no output device. Each present is published to
// its sinks, then the framebuffer is rotated through texture.SwapID so the
// engine draws into the other buffer.
type Headless struct {
	width  uint16
	height uint16
	sinks  sinks
	seq    uint64
}

func NewHeadless(width, height uint16, sinks ...Sink) *Headless {
	return &Headless{width: width, height: height, sinks: sinks}
}

func (h *Headless) Dimensions() (uint16, uint16) {
	return h.width, h.height
}

func (h *Headless) Present(textures *texture.Manager) error {
	fb, ok := textures.Framebuffer()
	if !ok {
		return ErrNoFramebuffer
	}
	h.seq++
	h.sinks.publish(Snapshot(fb, h.seq))
	return rotate(textures)
}

// rotate swaps the framebuffer with the spare slot and clears the new front
// buffer. Without a spare it falls back to clearing in place.
func rotate(textures *texture.Manager) error {
	fb, _ := textures.Framebuffer()
	spare, ok := textures.Get(texture.SwapID)
	if !ok || spare.Width != fb.Width || spare.Height != fb.Height {
		err := textures.DefineInternal(texture.Definition{
			ID:     texture.SwapID,
			Width:  uint16(fb.Width),
			Height: uint16(fb.Height),
			Scale:  1,
		}, texture.PreferSlow)
		if err != nil {
			log.Warn().Err(err).Msg("spare_framebuffer_unavailable")
			fb.Fill(color.Black)
			return nil
		}
	}
	if err := textures.Swap(texture.FramebufferID, texture.SwapID); err != nil {
		return fmt.Errorf("display: rotate: %w", err)
	}
	front, _ := textures.Framebuffer()
	front.Scale = fb.Scale
	front.Fill(color.Black)
	return nil
}
