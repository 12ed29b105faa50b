package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/microgpu/internal/color"
)

// DecodeBytes decodes an operation from bytes that are not owned by a frame buffer.
func DecodeBytes(payload []byte) (Operation, error) {
	return Decode(Borrow(payload))
}

// Decode parses one operation. Variable length operations return views into
// v, so the result must be consumed before the owning frame is replaced.
func Decode(v View) (Operation, error) {
	b := v.Bytes()
	if !v.Valid() {
		return nil, ErrStaleView
	}
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}

	op := OpType(b[0])
	switch op {
	case OpInitialize:
		if err := needBytes(op, b, sizeInitialize); err != nil {
			return nil, err
		}
		return Initialize{Scale: b[1]}, nil

	case OpDrawRectangle:
		if err := needBytes(op, b, sizeDrawRectangle); err != nil {
			return nil, err
		}
		return DrawRectangle{
			TextureID: b[1],
			X:         u16(b, 2),
			Y:         u16(b, 4),
			Width:     u16(b, 6),
			Height:    u16(b, 8),
			Color:     color.Decode(b[10:]),
		}, nil

	case OpDrawTriangle:
		if err := needBytes(op, b, sizeDrawTriangle); err != nil {
			return nil, err
		}
		return DrawTriangle{
			TextureID: b[1],
			Points: [3]Point{
				{X: u16(b, 2), Y: u16(b, 4)},
				{X: u16(b, 6), Y: u16(b, 8)},
				{X: u16(b, 10), Y: u16(b, 12)},
			},
			Color: color.Decode(b[14:]),
		}, nil

	case OpGetStatus:
		return GetStatus{}, nil

	case OpGetLastMessage:
		return GetLastMessage{}, nil

	case OpPresentFramebuffer:
		return PresentFramebuffer{}, nil

	case OpBatch:
		return decodeBatch(v, b)

	case OpDefineTexture:
		if err := needBytes(op, b, sizeDefineTexture); err != nil {
			return nil, err
		}
		return DefineTexture{
			TextureID:        b[1],
			Width:            u16(b, 2),
			Height:           u16(b, 4),
			TransparentColor: color.Decode(b[6:]),
		}, nil

	case OpAppendTexturePixels:
		return decodeAppendPixels(v, b)

	case OpDrawTexture:
		if err := needBytes(op, b, sizeDrawTexture); err != nil {
			return nil, err
		}
		return DrawTexture{
			SourceID:           b[1],
			TargetID:           b[2],
			SourceX:            u16(b, 3),
			SourceY:            u16(b, 5),
			SourceWidth:        u16(b, 7),
			SourceHeight:       u16(b, 9),
			TargetX:            int16(u16(b, 11)),
			TargetY:            int16(u16(b, 13)),
			IgnoreTransparency: b[15]&0x01 != 0,
		}, nil

	case OpDrawChars:
		return decodeDrawChars(v, b)

	case OpReset:
		if err := needBytes(op, b, sizeReset); err != nil {
			return nil, err
		}
		if b[1] != ResetMagic[0] || b[2] != ResetMagic[1] || b[3] != ResetMagic[2] {
			return nil, fmt.Errorf("%w: % x", ErrBadMagic, b[1:4])
		}
		return Reset{}, nil

	default:
		return nil, fmt.Errorf("%w: operation id %d is not a known operation id", ErrUnknownOperation, b[0])
	}
}

func decodeBatch(v View, b []byte) (Operation, error) {
	if len(b) < sizeBatchHeader {
		return nil, fmt.Errorf("%w: batch message had too few bytes (size %d)", ErrTruncated, len(b))
	}
	inner := int(u16(b, 1))
	if inner > len(b)-sizeBatchHeader {
		return nil, fmt.Errorf("%w: batch inner size too large (size %d, inner size %d)",
			ErrInvalidLength, len(b), inner)
	}
	return Batch{Records: v.Slice(sizeBatchHeader, sizeBatchHeader+inner)}, nil
}

func decodeAppendPixels(v View, b []byte) (Operation, error) {
	if err := needBytes(OpAppendTexturePixels, b, sizeAppendHeader); err != nil {
		return nil, err
	}
	count := u16(b, 2)
	needed := int(count) * color.BytesPerPixel
	available := len(b) - sizeAppendHeader
	if needed > available {
		return nil, fmt.Errorf("%w: append to texture op had a pixel count of %d, but only %d bytes were provided",
			ErrInvalidLength, count, available)
	}
	return AppendTexturePixels{
		TextureID:  b[1],
		PixelCount: count,
		Pixels:     v.Slice(sizeAppendHeader, sizeAppendHeader+needed),
	}, nil
}

func decodeDrawChars(v View, b []byte) (Operation, error) {
	if err := needBytes(OpDrawChars, b, sizeDrawChars); err != nil {
		return nil, err
	}
	at := 3 + color.BytesPerPixel
	count := int(b[at+4])
	start := at + 5
	if count > len(b)-start {
		return nil, fmt.Errorf("%w: draw chars declared %d characters, but only %d bytes were provided",
			ErrInvalidLength, count, len(b)-start)
	}
	return DrawChars{
		FontID:    b[1],
		TextureID: b[2],
		Color:     color.Decode(b[3:]),
		X:         u16(b, at),
		Y:         u16(b, at+2),
		Chars:     v.Slice(start, start+count),
	}, nil
}

func needBytes(op OpType, b []byte, size int) error {
	if len(b) < size {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTruncated, op, size, len(b))
	}
	return nil
}

func u16(b []byte, at int) uint16 {
	return binary.BigEndian.Uint16(b[at : at+2])
}
