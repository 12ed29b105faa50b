package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/microgpu/internal/color"
)

func TestOperationRoundTrip(t *testing.T) {
	ops := []Operation{
		Initialize{Scale: 2},
		DrawRectangle{TextureID: 0, X: 10, Y: 20, Width: 30, Height: 40, Color: color.Red},
		DrawTriangle{TextureID: 3, Points: [3]Point{{1, 2}, {300, 4}, {5, 239}}, Color: color.Blue},
		GetStatus{},
		GetLastMessage{},
		PresentFramebuffer{},
		DefineTexture{TextureID: 5, Width: 16, Height: 8, TransparentColor: color.Green},
		AppendTexturePixels{TextureID: 5, PixelCount: 2, Pixels: Borrow([]byte{0xF8, 0x00, 0x00, 0x1F})},
		DrawTexture{SourceID: 5, TargetID: 0, SourceX: 1, SourceY: 2, SourceWidth: 3, SourceHeight: 4,
			TargetX: -7, TargetY: 9, IgnoreTransparency: true},
		DrawChars{FontID: 5, TextureID: 0, Color: color.White, X: 4, Y: 6, Chars: Borrow([]byte("hello"))},
		Reset{},
	}

	for _, op := range ops {
		payload, err := EncodeOperation(op)
		if err != nil {
			t.Fatalf("encode %s: %v", op.Type(), err)
		}
		if OpType(payload[0]) != op.Type() {
			t.Fatalf("tag mismatch for %s: %d", op.Type(), payload[0])
		}
		decoded, err := DecodeBytes(payload)
		if err != nil {
			t.Fatalf("decode %s: %v", op.Type(), err)
		}
		if !reflect.DeepEqual(decoded, op) {
			t.Fatalf("round trip mismatch for %s: got %#v want %#v", op.Type(), decoded, op)
		}
	}
}

func TestDrawRectangleWireLayout(t *testing.T) {
	payload, err := EncodeOperation(DrawRectangle{TextureID: 1, X: 0x0102, Y: 3, Width: 4, Height: 5, Color: 0xF800})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{2, 1, 0x01, 0x02, 0, 3, 0, 4, 0, 5, 0xF8, 0x00}
	if !bytes.Equal(payload, want) {
		t.Fatalf("unexpected layout: % x", payload)
	}
}

func TestDecodeRejectsTruncatedFixedOperations(t *testing.T) {
	ops := []Operation{
		Initialize{Scale: 1},
		DrawRectangle{Width: 1, Height: 1},
		DrawTriangle{},
		DefineTexture{TextureID: 1, Width: 1, Height: 1},
		DrawTexture{SourceID: 1},
		DrawChars{Chars: Borrow(nil)},
		Reset{},
	}
	for _, op := range ops {
		payload, err := EncodeOperation(op)
		if err != nil {
			t.Fatalf("encode %s: %v", op.Type(), err)
		}
		_, err = DecodeBytes(payload[:len(payload)-1])
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("expected ErrTruncated for short %s, got %v", op.Type(), err)
		}
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	if _, err := DecodeBytes(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestDecodeUnknownOperationNamesTag(t *testing.T) {
	_, err := DecodeBytes([]byte{8, 1, 2})
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if !strings.Contains(err.Error(), "operation id 8") {
		t.Fatalf("error does not name the tag: %v", err)
	}
}

func TestDecodeBatchBounds(t *testing.T) {
	if _, err := DecodeBytes([]byte{7, 0}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for short batch header, got %v", err)
	}

	_, err := DecodeBytes([]byte{7, 0, 5, 0, 1, 4})
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if !strings.Contains(err.Error(), "size 6") || !strings.Contains(err.Error(), "inner size 5") {
		t.Fatalf("error does not carry sizes: %v", err)
	}

	op, err := DecodeBytes([]byte{7, 0, 3, 0, 1, 4, 0xEE})
	if err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	batch := op.(Batch)
	if !bytes.Equal(batch.Records.Bytes(), []byte{0, 1, 4}) {
		t.Fatalf("batch view covers wrong bytes: % x", batch.Records.Bytes())
	}
}

func TestDecodeAppendPixelsBounds(t *testing.T) {
	_, err := DecodeBytes([]byte{10, 5, 0, 3, 0xAA, 0xBB, 0xCC, 0xDD})
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if !strings.Contains(err.Error(), "pixel count of 3") || !strings.Contains(err.Error(), "only 4 bytes") {
		t.Fatalf("error does not carry sizes: %v", err)
	}

	op, err := DecodeBytes([]byte{10, 5, 0, 1, 0xAA, 0xBB, 0xCC})
	if err != nil {
		t.Fatalf("decode append: %v", err)
	}
	if got := op.(AppendTexturePixels).Pixels.Len(); got != 2 {
		t.Fatalf("expected 2 pixel bytes, got %d", got)
	}
}

func TestDecodeDrawCharsBounds(t *testing.T) {
	payload := []byte{12, 5, 0, 0xFF, 0xFF, 0, 1, 0, 2, 4, 'a', 'b'}
	if _, err := DecodeBytes(payload); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestEncodeDrawCharsLimit(t *testing.T) {
	longest := DrawChars{FontID: 5, Chars: Borrow(bytes.Repeat([]byte{'x'}, 255))}
	payload, err := EncodeOperation(longest)
	if err != nil {
		t.Fatalf("encode 255 chars: %v", err)
	}
	if payload[9] != 255 || len(payload) != 10+255 {
		t.Fatalf("unexpected draw chars payload: count=%d len=%d", payload[9], len(payload))
	}

	tooLong := DrawChars{FontID: 5, Chars: Borrow(bytes.Repeat([]byte{'x'}, 256))}
	if _, err := EncodeOperation(tooLong); !errors.Is(err, ErrOperationTooLarge) {
		t.Fatalf("expected ErrOperationTooLarge for 256 chars, got %v", err)
	}
}

func TestDecodeResetMagic(t *testing.T) {
	op, err := DecodeBytes([]byte{189, 0x09, 0x13, 0xAC})
	if err != nil {
		t.Fatalf("decode reset: %v", err)
	}
	if _, ok := op.(Reset); !ok {
		t.Fatalf("expected Reset, got %T", op)
	}

	for _, bad := range [][]byte{
		{189, 0x09, 0x13, 0xAD},
		{189, 0x00, 0x13, 0xAC},
		{189, 0xAC, 0x13, 0x09},
	} {
		if _, err := DecodeBytes(bad); !errors.Is(err, ErrBadMagic) {
			t.Fatalf("expected ErrBadMagic for % x, got %v", bad, err)
		}
	}
}

func TestViewGoesStaleWithNextFrame(t *testing.T) {
	fb := NewFrameBuffer(64)
	op, err := Decode(fb.Load([]byte{12, 5, 0, 0xFF, 0xFF, 0, 1, 0, 2, 2, 'h', 'i'}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chars := op.(DrawChars).Chars
	if string(chars.Bytes()) != "hi" {
		t.Fatalf("unexpected chars %q", chars.Bytes())
	}

	fb.Load([]byte{4})
	if chars.Valid() || chars.Bytes() != nil {
		t.Fatalf("view should be stale after the next frame")
	}
	if _, err := Decode(chars); !errors.Is(err, ErrStaleView) {
		t.Fatalf("expected ErrStaleView, got %v", err)
	}
}

func TestBatchBuilderRespectsBudget(t *testing.T) {
	b := NewBatchBuilder(3 + 2*(2+2))
	for i := 0; i < 2; i++ {
		ok, err := b.Add(Initialize{Scale: uint8(i + 1)})
		if err != nil || !ok {
			t.Fatalf("add %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := b.Add(GetStatus{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("record past the budget was accepted")
	}

	want := []byte{7, 0, 8, 0, 2, 1, 1, 0, 2, 1, 2}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("unexpected batch: % x", b.Bytes())
	}
	if b.Count() != 2 || b.Len() != len(want) {
		t.Fatalf("unexpected count/len %d/%d", b.Count(), b.Len())
	}

	if _, err := b.Add(DrawRectangle{}); !errors.Is(err, ErrOperationTooLarge) {
		t.Fatalf("expected ErrOperationTooLarge, got %v", err)
	}

	b.Reset()
	if b.Count() != 0 || b.Len() != 3 {
		t.Fatalf("reset left %d records", b.Count())
	}
}

func TestBatchBuilderOutputDecodes(t *testing.T) {
	b := NewBatchBuilder(250)
	if _, err := b.Add(DrawRectangle{Width: 2, Height: 2, Color: color.White}); err != nil {
		t.Fatalf("add: %v", err)
	}
	op, err := DecodeBytes(b.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records := op.(Batch).Records.Bytes()
	if len(records) != 2+12 || records[1] != 12 {
		t.Fatalf("unexpected records % x", records)
	}
}

func TestStatusResponseLayout(t *testing.T) {
	s := Status{
		Initialized:       true,
		DisplayWidth:      320,
		DisplayHeight:     240,
		FramebufferWidth:  160,
		FramebufferHeight: 120,
		ColorMode:         color.ModeRGB565,
		MaxOperationSize:  250,
		APIVersion:        APIVersion,
	}
	b, err := EncodeResponse(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{1, 1, 0x01, 0x40, 0x00, 0xF0, 0x00, 0xA0, 0x00, 0x78, 1, 0x00, 0xFA, 0x00, 0x02}
	if !bytes.Equal(b, want) {
		t.Fatalf("unexpected status bytes: % x", b)
	}

	decoded, err := DecodeResponse(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != s {
		t.Fatalf("status mismatch: %#v", decoded)
	}

	base, err := DecodeResponse(b[:StatusBaseSize])
	if err != nil {
		t.Fatalf("decode base status: %v", err)
	}
	if got := base.(Status); got.APIVersion != 0 || got.FramebufferWidth != 160 {
		t.Fatalf("unexpected base status: %#v", got)
	}
}

func TestLastMessageResponse(t *testing.T) {
	msg := LastMessage{Message: "texture 9 undefined"}
	buf := make([]byte, 8)
	if _, err := PutResponse(buf, msg); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}

	buf = make([]byte, 64)
	n, err := PutResponse(buf, msg)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if buf[0] != 2 || string(buf[1:n]) != msg.Message {
		t.Fatalf("unexpected encoding % x", buf[:n])
	}

	empty, err := EncodeResponse(LastMessage{})
	if err != nil || !bytes.Equal(empty, []byte{2}) {
		t.Fatalf("unexpected empty message encoding % x (%v)", empty, err)
	}
}
