package protocol

import (
	"fmt"

	"github.com/danmuck/microgpu/internal/color"
)

// APIVersion is reported in status responses.
const APIVersion uint16 = 2

// OpType is the leading tag byte of every operation payload.
type OpType uint8

const (
	OpInitialize          OpType = 1
	OpDrawRectangle       OpType = 2
	OpDrawTriangle        OpType = 3
	OpGetStatus           OpType = 4
	OpGetLastMessage      OpType = 5
	OpPresentFramebuffer  OpType = 6
	OpBatch               OpType = 7
	OpDefineTexture       OpType = 9
	OpAppendTexturePixels OpType = 10
	OpDrawTexture         OpType = 11
	OpDrawChars           OpType = 12
	OpReset               OpType = 189
)

var opNames = map[OpType]string{
	OpInitialize:          "initialize",
	OpDrawRectangle:       "draw_rectangle",
	OpDrawTriangle:        "draw_triangle",
	OpGetStatus:           "get_status",
	OpGetLastMessage:      "get_last_message",
	OpPresentFramebuffer:  "present_framebuffer",
	OpBatch:               "batch",
	OpDefineTexture:       "define_texture",
	OpAppendTexturePixels: "append_texture_pixels",
	OpDrawTexture:         "draw_texture",
	OpDrawChars:           "draw_chars",
	OpReset:               "reset",
}

func (t OpType) String() string {
	if name, ok := opNames[t]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(t))
}

// Minimum payload sizes including the tag byte.
const (
	sizeInitialize    = 2
	sizeDrawRectangle = 10 + color.BytesPerPixel
	sizeDrawTriangle  = 14 + color.BytesPerPixel
	sizeBatchHeader   = 3
	sizeDefineTexture = 6 + color.BytesPerPixel
	sizeAppendHeader  = 4
	sizeDrawTexture   = 16
	sizeDrawChars     = 3 + color.BytesPerPixel + 5
	sizeReset         = 4

	// BatchRecordHeader is the u16 length prefix in front of every batched operation.
	BatchRecordHeader = 2
)

// ResetMagic guards against a corrupted read turning into a device reset.
var ResetMagic = [3]byte{0x09, 0x13, 0xAC}

// Operation is one decoded command.
type Operation interface {
	Type() OpType
}

type Initialize struct {
	Scale uint8
}

type DrawRectangle struct {
	TextureID     uint8
	X, Y          uint16
	Width, Height uint16
	Color         color.Color
}

type Point struct {
	X, Y uint16
}

type DrawTriangle struct {
	TextureID uint8
	Points    [3]Point
	Color     color.Color
}

type GetStatus struct{}

type GetLastMessage struct{}

type PresentFramebuffer struct{}

// Batch carries length-prefixed inner operation records.
type Batch struct {
	Records View
}

type DefineTexture struct {
	TextureID        uint8
	Width, Height    uint16
	TransparentColor color.Color
}

// AppendTexturePixels streams PixelCount wire colors into a texture.
type AppendTexturePixels struct {
	TextureID  uint8
	PixelCount uint16
	Pixels     View
}

type DrawTexture struct {
	SourceID           uint8
	TargetID           uint8
	SourceX, SourceY   uint16
	SourceWidth        uint16
	SourceHeight       uint16
	TargetX, TargetY   int16
	IgnoreTransparency bool
}

// DrawChars renders up to 255 code page 437 characters; longer text does not
// encode.
type DrawChars struct {
	FontID    uint8
	TextureID uint8
	Color     color.Color
	X, Y      uint16
	Chars     View
}

type Reset struct{}

func (Initialize) Type() OpType          { return OpInitialize }
func (DrawRectangle) Type() OpType       { return OpDrawRectangle }
func (DrawTriangle) Type() OpType        { return OpDrawTriangle }
func (GetStatus) Type() OpType           { return OpGetStatus }
func (GetLastMessage) Type() OpType      { return OpGetLastMessage }
func (PresentFramebuffer) Type() OpType  { return OpPresentFramebuffer }
func (Batch) Type() OpType               { return OpBatch }
func (DefineTexture) Type() OpType       { return OpDefineTexture }
func (AppendTexturePixels) Type() OpType { return OpAppendTexturePixels }
func (DrawTexture) Type() OpType         { return OpDrawTexture }
func (DrawChars) Type() OpType           { return OpDrawChars }
func (Reset) Type() OpType               { return OpReset }
