package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/danmuck/microgpu/internal/color"
)

// EncodeOperation returns the wire payload for op.
func EncodeOperation(op Operation) ([]byte, error) {
	return AppendOperation(nil, op)
}

// AppendOperation appends the wire payload for op to dst.
func AppendOperation(dst []byte, op Operation) ([]byte, error) {
	if op == nil {
		return dst, fmt.Errorf("%w: nil operation", ErrUnknownOperation)
	}
	dst = append(dst, byte(op.Type()))

	switch o := op.(type) {
	case Initialize:
		dst = append(dst, o.Scale)
	case DrawRectangle:
		dst = append(dst, o.TextureID)
		dst = appendU16(dst, o.X, o.Y, o.Width, o.Height)
		dst = color.Append(dst, o.Color)
	case DrawTriangle:
		dst = append(dst, o.TextureID)
		for _, p := range o.Points {
			dst = appendU16(dst, p.X, p.Y)
		}
		dst = color.Append(dst, o.Color)
	case GetStatus, GetLastMessage, PresentFramebuffer:
	case Reset:
		dst = append(dst, ResetMagic[:]...)
	case Batch:
		records := o.Records.Bytes()
		if !o.Records.Valid() {
			return dst, ErrStaleView
		}
		if len(records) > math.MaxUint16 {
			return dst, fmt.Errorf("%w: batch of %d bytes", ErrOperationTooLarge, len(records))
		}
		dst = appendU16(dst, uint16(len(records)))
		dst = append(dst, records...)
	case DefineTexture:
		dst = append(dst, o.TextureID)
		dst = appendU16(dst, o.Width, o.Height)
		dst = color.Append(dst, o.TransparentColor)
	case AppendTexturePixels:
		pixels := o.Pixels.Bytes()
		if !o.Pixels.Valid() {
			return dst, ErrStaleView
		}
		if need := int(o.PixelCount) * color.BytesPerPixel; len(pixels) < need {
			return dst, fmt.Errorf("%w: pixel count %d needs %d bytes, have %d",
				ErrInvalidLength, o.PixelCount, need, len(pixels))
		}
		dst = append(dst, o.TextureID)
		dst = appendU16(dst, o.PixelCount)
		dst = append(dst, pixels[:int(o.PixelCount)*color.BytesPerPixel]...)
	case DrawTexture:
		dst = append(dst, o.SourceID, o.TargetID)
		dst = appendU16(dst, o.SourceX, o.SourceY, o.SourceWidth, o.SourceHeight,
			uint16(o.TargetX), uint16(o.TargetY))
		var flags byte
		if o.IgnoreTransparency {
			flags |= 0x01
		}
		dst = append(dst, flags)
	case DrawChars:
		chars := o.Chars.Bytes()
		if !o.Chars.Valid() {
			return dst, ErrStaleView
		}
		if len(chars) > math.MaxUint8 {
			return dst, fmt.Errorf("%w: %d characters, draw chars carries at most %d",
				ErrOperationTooLarge, len(chars), math.MaxUint8)
		}
		dst = append(dst, o.FontID, o.TextureID)
		dst = color.Append(dst, o.Color)
		dst = appendU16(dst, o.X, o.Y)
		dst = append(dst, byte(len(chars)))
		dst = append(dst, chars...)
	default:
		return dst[:len(dst)-1], fmt.Errorf("%w: %T", ErrUnknownOperation, op)
	}
	return dst, nil
}

func appendU16(dst []byte, values ...uint16) []byte {
	for _, v := range values {
		dst = binary.BigEndian.AppendUint16(dst, v)
	}
	return dst
}

// BatchBuilder packs operations into a single Batch payload that never
// exceeds Budget bytes once encoded.
type BatchBuilder struct {
	budget  int
	records []byte
	count   int
}

// NewBatchBuilder returns a builder for batches of at most budget payload
// bytes, including the batch header.
func NewBatchBuilder(budget int) *BatchBuilder {
	if budget > sizeBatchHeader+math.MaxUint16 {
		budget = sizeBatchHeader + math.MaxUint16
	}
	return &BatchBuilder{budget: budget}
}

// Fits reports whether an encoded operation of size bytes can still be added.
func (b *BatchBuilder) Fits(size int) bool {
	return sizeBatchHeader+len(b.records)+BatchRecordHeader+size <= b.budget
}

// Add appends op as a record. It returns false without changing the batch
// when op does not fit in the remaining budget.
func (b *BatchBuilder) Add(op Operation) (bool, error) {
	encoded, err := EncodeOperation(op)
	if err != nil {
		return false, err
	}
	return b.AddEncoded(encoded)
}

// AddEncoded appends an already encoded operation payload.
func (b *BatchBuilder) AddEncoded(payload []byte) (bool, error) {
	if len(payload) == 0 {
		return false, ErrEmptyPayload
	}
	if sizeBatchHeader+BatchRecordHeader+len(payload) > b.budget {
		return false, fmt.Errorf("%w: %d bytes never fit a batch of %d",
			ErrOperationTooLarge, len(payload), b.budget)
	}
	if !b.Fits(len(payload)) {
		return false, nil
	}
	b.records = appendU16(b.records, uint16(len(payload)))
	b.records = append(b.records, payload...)
	b.count++
	return true, nil
}

func (b *BatchBuilder) Count() int {
	return b.count
}

// Len is the encoded size of the batch operation built so far.
func (b *BatchBuilder) Len() int {
	return sizeBatchHeader + len(b.records)
}

// Bytes encodes the batch operation. The builder keeps its records until Reset.
func (b *BatchBuilder) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	out = append(out, byte(OpBatch))
	out = appendU16(out, uint16(len(b.records)))
	return append(out, b.records...)
}

func (b *BatchBuilder) Reset() {
	b.records = b.records[:0]
	b.count = 0
}
