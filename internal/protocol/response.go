package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/microgpu/internal/color"
)

type ResponseType uint8

const (
	ResponseStatus      ResponseType = 1
	ResponseLastMessage ResponseType = 2
)

const (
	// StatusBaseSize is the status record without the extended trailer.
	StatusBaseSize = 11
	// StatusSize is the full status record sent by this device.
	StatusSize = StatusBaseSize + 4
)

// Response is a message sent back to the host.
type Response interface {
	ResponseType() ResponseType
}

type Status struct {
	Initialized       bool
	DisplayWidth      uint16
	DisplayHeight     uint16
	FramebufferWidth  uint16
	FramebufferHeight uint16
	ColorMode         color.Mode
	MaxOperationSize  uint16
	APIVersion        uint16
}

// LastMessage carries the most recent diagnostic text, empty when there is none.
type LastMessage struct {
	Message string
}

func (Status) ResponseType() ResponseType      { return ResponseStatus }
func (LastMessage) ResponseType() ResponseType { return ResponseLastMessage }

// ResponseSize returns the encoded size of r.
func ResponseSize(r Response) (int, error) {
	switch v := r.(type) {
	case Status:
		return StatusSize, nil
	case LastMessage:
		return 1 + len(v.Message), nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownResponse, r)
	}
}

// PutResponse encodes r into dst and returns the number of bytes written.
func PutResponse(dst []byte, r Response) (int, error) {
	size, err := ResponseSize(r)
	if err != nil {
		return 0, err
	}
	if len(dst) < size {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(dst))
	}

	switch v := r.(type) {
	case Status:
		dst[0] = byte(ResponseStatus)
		dst[1] = 0
		if v.Initialized {
			dst[1] = 1
		}
		binary.BigEndian.PutUint16(dst[2:4], v.DisplayWidth)
		binary.BigEndian.PutUint16(dst[4:6], v.DisplayHeight)
		binary.BigEndian.PutUint16(dst[6:8], v.FramebufferWidth)
		binary.BigEndian.PutUint16(dst[8:10], v.FramebufferHeight)
		dst[10] = byte(v.ColorMode)
		binary.BigEndian.PutUint16(dst[11:13], v.MaxOperationSize)
		binary.BigEndian.PutUint16(dst[13:15], v.APIVersion)
	case LastMessage:
		dst[0] = byte(ResponseLastMessage)
		copy(dst[1:], v.Message)
	}
	return size, nil
}

// EncodeResponse returns the wire form of r.
func EncodeResponse(r Response) ([]byte, error) {
	size, err := ResponseSize(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := PutResponse(buf, r); err != nil {
		return nil, err
	}
	return buf, nil
}

// DecodeResponse parses a response payload. Status records without the
// extended trailer leave MaxOperationSize and APIVersion at zero.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return nil, ErrEmptyPayload
	}
	switch ResponseType(b[0]) {
	case ResponseStatus:
		if len(b) < StatusBaseSize {
			return nil, fmt.Errorf("%w: status needs %d bytes, got %d", ErrTruncated, StatusBaseSize, len(b))
		}
		s := Status{
			Initialized:       b[1] != 0,
			DisplayWidth:      u16(b, 2),
			DisplayHeight:     u16(b, 4),
			FramebufferWidth:  u16(b, 6),
			FramebufferHeight: u16(b, 8),
			ColorMode:         color.Mode(b[10]),
		}
		if len(b) >= StatusSize {
			s.MaxOperationSize = u16(b, 11)
			s.APIVersion = u16(b, 13)
		}
		return s, nil
	case ResponseLastMessage:
		return LastMessage{Message: string(b[1:])}, nil
	default:
		return nil, fmt.Errorf("%w: response id %d", ErrUnknownResponse, b[0])
	}
}
