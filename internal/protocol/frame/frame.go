package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxMessageSize is the largest payload a single frame may carry.
	MaxMessageSize = 250
	// Overhead is the offset byte, two checksum bytes and the terminator.
	Overhead = 4
	// MinFrameSize is one offset byte, one data byte, two checksum bytes and the terminator.
	MinFrameSize = 5
	// MaxFrameSize is the encoded size of a MaxMessageSize payload.
	MaxFrameSize = MaxMessageSize + Overhead

	Delimiter byte = 0x00
)

var (
	ErrMessageTooLarge = errors.New("frame: message too large")
	ErrNoFrame         = errors.New("frame: no complete frame")
	ErrFrameTooShort   = errors.New("frame: frame too short")
	ErrCorruptFrame    = errors.New("frame: offset chain does not end at terminator")
	ErrChecksum        = errors.New("frame: checksum mismatch")
	ErrBufferOverflow  = errors.New("frame: buffer filled without a terminator")
)

// IsFramingError reports whether err means a frame was found but rejected.
func IsFramingError(err error) bool {
	return errors.Is(err, ErrFrameTooShort) ||
		errors.Is(err, ErrCorruptFrame) ||
		errors.Is(err, ErrChecksum) ||
		errors.Is(err, ErrBufferOverflow)
}

// Checksum is the 16-bit wrap-around sum of msg.
func Checksum(msg []byte) uint16 {
	var sum uint16
	for _, b := range msg {
		sum += uint16(b)
	}
	return sum
}

// Encode stuffs msg into a delimited frame. An empty msg encodes to nothing.
func Encode(msg []byte) ([]byte, error) {
	return AppendEncode(nil, msg)
}

// AppendEncode appends the framed form of msg to dst.
func AppendEncode(dst, msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return dst, nil
	}
	if len(msg) > MaxMessageSize {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(msg), MaxMessageSize)
	}

	start := len(dst)
	dst = append(dst, 0)
	dst = append(dst, msg...)
	dst = binary.BigEndian.AppendUint16(dst, Checksum(msg))
	dst = append(dst, Delimiter)

	out := dst[start:]
	lastZero := 0
	for i := 1; i < len(out); i++ {
		if out[i] != 0 {
			continue
		}
		out[lastZero] = byte(i - lastZero)
		lastZero = i
	}
	return dst, nil
}

// Decode extracts the first frame from input. consumed is the number of
// input bytes the caller must discard, and is non-zero whenever a terminator
// was found, including when the frame is rejected.
func Decode(input []byte) (payload []byte, consumed int, err error) {
	end := bytes.IndexByte(input, Delimiter)
	if end < 0 {
		return nil, 0, ErrNoFrame
	}
	consumed = end + 1
	if end == 0 {
		// stray delimiter between frames
		return nil, consumed, ErrNoFrame
	}
	if consumed < MinFrameSize {
		return nil, consumed, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, consumed)
	}

	body := make([]byte, end-1)
	copy(body, input[1:end])
	payloadLen := len(body) - 2

	var sum uint16
	next := int(input[0])
	for i := range body {
		next--
		if next == 0 {
			next = int(body[i])
			body[i] = 0
			continue
		}
		if i < payloadLen {
			sum += uint16(body[i])
		}
	}
	if next != 1 {
		return nil, consumed, fmt.Errorf("%w: remaining offset %d", ErrCorruptFrame, next)
	}

	expected := binary.BigEndian.Uint16(body[payloadLen:])
	if sum != expected {
		return nil, consumed, fmt.Errorf("%w: got %#04x want %#04x", ErrChecksum, sum, expected)
	}
	return body[:payloadLen], consumed, nil
}
