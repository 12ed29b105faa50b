package client

import (
	"fmt"
	"math"

	"golang.org/x/text/encoding/charmap"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/protocol"
)

// appendHeader is the tag, texture id and pixel count of an append.
const appendHeader = 4

// batchOverhead is the batch header plus one record length.
const batchOverhead = 3 + protocol.BatchRecordHeader

// pixelsPerAppend keeps each append small enough to share a batch.
func (c *Client) pixelsPerAppend() int {
	n := (c.link.MaxPayload() - batchOverhead - appendHeader) / color.BytesPerPixel
	if n > math.MaxUint16 {
		n = math.MaxUint16
	}
	return n
}

// UploadTexture defines texture id and streams pixels into it in row-major
// order, split across as many appends as the transport needs.
func (c *Client) UploadTexture(id uint8, width, height uint16, transparent color.Color, pixels []color.Color) error {
	if len(pixels) > int(width)*int(height) {
		return fmt.Errorf("client: %d pixels exceed a %dx%d texture", len(pixels), width, height)
	}
	err := c.Queue(protocol.DefineTexture{
		TextureID:        id,
		Width:            width,
		Height:           height,
		TransparentColor: transparent,
	})
	if err != nil {
		return err
	}

	chunk := c.pixelsPerAppend()
	if chunk <= 0 {
		return fmt.Errorf("%w: transport too small for pixel appends", protocol.ErrOperationTooLarge)
	}
	for start := 0; start < len(pixels); start += chunk {
		end := min(start+chunk, len(pixels))
		raw := make([]byte, 0, (end-start)*color.BytesPerPixel)
		for _, px := range pixels[start:end] {
			raw = color.Append(raw, px)
		}
		err := c.Queue(protocol.AppendTexturePixels{
			TextureID:  id,
			PixelCount: uint16(end - start),
			Pixels:     protocol.Borrow(raw),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// DrawText queues text in the given font. Runes outside code page 437 are
// drawn as '?'. Text longer than 255 characters is rejected.
func (c *Client) DrawText(textureID, fontID uint8, x, y uint16, fg color.Color, text string) error {
	raw := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		raw = append(raw, b)
	}
	return c.Queue(protocol.DrawChars{
		FontID:    fontID,
		TextureID: textureID,
		Color:     fg,
		X:         x,
		Y:         y,
		Chars:     protocol.Borrow(raw),
	})
}

func (c *Client) FillRect(textureID uint8, x, y, width, height uint16, fill color.Color) error {
	return c.Queue(protocol.DrawRectangle{
		TextureID: textureID,
		X:         x,
		Y:         y,
		Width:     width,
		Height:    height,
		Color:     fill,
	})
}
