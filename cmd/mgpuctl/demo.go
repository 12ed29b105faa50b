package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/microgpu/internal/client"
	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/fonts"
	"github.com/danmuck/microgpu/internal/protocol"
)

const (
	spriteID   uint8 = 1
	spriteSize       = 16
)

var (
	background = color.FromRGB888(0x10, 0x18, 0x30)
	spriteKey  = color.FromRGB888(0xFF, 0x00, 0xFF)
)

type demoOptions struct {
	Scale    uint8
	Frames   int
	Interval time.Duration
}

// runDemo draws a bouncing sprite over a static triangle and returns the
// number of frames presented.
func runDemo(ctx context.Context, c *client.Client, opts demoOptions) (int, error) {
	status, err := c.Initialize(opts.Scale)
	if err != nil {
		return 0, err
	}
	w, h := int(status.FramebufferWidth), int(status.FramebufferHeight)

	if err := c.UploadTexture(spriteID, spriteSize, spriteSize, spriteKey, sprite()); err != nil {
		return 0, err
	}

	presented := 0
	for i := 0; i < opts.Frames; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := drawFrame(c, i, w, h); err != nil {
			return presented, err
		}
		if err := c.Present(); err != nil {
			return presented, err
		}
		presented++
		if opts.Interval > 0 && i+1 < opts.Frames {
			select {
			case <-ctx.Done():
			case <-time.After(opts.Interval):
			}
		}
	}

	msg, err := c.LastMessage()
	if err != nil {
		return presented, err
	}
	if msg != "" {
		return presented, fmt.Errorf("device reported: %s", msg)
	}
	return presented, nil
}

func drawFrame(c *client.Client, i, w, h int) error {
	if err := c.FillRect(0, 0, 0, uint16(w), uint16(h), background); err != nil {
		return err
	}
	err := c.Queue(protocol.DrawTriangle{
		TextureID: 0,
		Points: [3]protocol.Point{
			{X: uint16(w / 2), Y: uint16(h / 6)},
			{X: uint16(w / 6), Y: uint16(h * 5 / 6)},
			{X: uint16(w * 5 / 6), Y: uint16(h * 5 / 6)},
		},
		Color: color.Green,
	})
	if err != nil {
		return err
	}
	err = c.Queue(protocol.DrawTexture{
		SourceID:     spriteID,
		TargetID:     0,
		SourceWidth:  spriteSize,
		SourceHeight: spriteSize,
		TargetX:      int16(bounce(i*3, w-spriteSize)),
		TargetY:      int16(bounce(i*2, h-spriteSize)),
	})
	if err != nil {
		return err
	}
	return c.DrawText(0, uint8(fonts.Font8x12), 2, 2, color.White, fmt.Sprintf("frame %d", i))
}

// sprite is a red ring on the transparent key color.
func sprite() []color.Color {
	px := make([]color.Color, spriteSize*spriteSize)
	center := spriteSize/2 - 1
	for y := 0; y < spriteSize; y++ {
		for x := 0; x < spriteSize; x++ {
			dx, dy := x-center, y-center
			d := dx*dx + dy*dy
			switch {
			case d <= 16:
				px[y*spriteSize+x] = color.White
			case d <= 49:
				px[y*spriteSize+x] = color.Red
			default:
				px[y*spriteSize+x] = spriteKey
			}
		}
	}
	return px
}

// bounce folds a monotonic position into [0, limit].
func bounce(pos, limit int) int {
	if limit <= 0 {
		return 0
	}
	period := 2 * limit
	p := pos % period
	if p > limit {
		return period - p
	}
	return p
}
