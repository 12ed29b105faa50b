package databus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/observability"
	"github.com/danmuck/microgpu/internal/protocol/frame"
)

// MaxPacketSize bounds a length-prefixed payload.
const MaxPacketSize = 20000

var (
	ErrPacketTooLarge = errors.New("databus: packet too large")
	ErrNoClient       = errors.New("databus: no client connected")
	ErrClosed         = errors.New("databus: closed")
)

// codec reads and writes whole payloads on one connection. A payload
// returned by readPayload is only valid until the next call.
type codec interface {
	readPayload() ([]byte, error)
	writePayload(p []byte) error
}

type lengthPrefixed struct {
	rw     io.ReadWriter
	header [2]byte
	buf    []byte
	max    int
}

func newLengthPrefixed(rw io.ReadWriter, max int) *lengthPrefixed {
	return &lengthPrefixed{rw: rw, buf: make([]byte, max), max: max}
}

func (c *lengthPrefixed) readPayload() ([]byte, error) {
	for {
		if _, err := io.ReadFull(c.rw, c.header[:]); err != nil {
			return nil, err
		}
		size := int(binary.BigEndian.Uint16(c.header[:]))
		if size > c.max {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLarge, size, c.max)
		}
		if size == 0 {
			continue
		}
		if _, err := io.ReadFull(c.rw, c.buf[:size]); err != nil {
			return nil, err
		}
		return c.buf[:size], nil
	}
}

func (c *lengthPrefixed) writePayload(p []byte) error {
	if len(p) > c.max {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPacketTooLarge, len(p), c.max)
	}
	out := make([]byte, 0, 2+len(p))
	out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
	out = append(out, p...)
	_, err := c.rw.Write(out)
	return err
}

type framed struct {
	reader *frame.Reader
	w      io.Writer
}

func newFramed(name string, rw io.ReadWriter) *framed {
	r := frame.NewReader(rw, frame.DefaultLimits())
	r.OnDiscard = func(err error) {
		observability.RecordFrameRejected(name, rejectReason(err))
		log.Warn().Str("transport", name).Err(err).Msg("frame_discarded")
	}
	return &framed{reader: r, w: rw}
}

func (c *framed) readPayload() ([]byte, error) {
	return c.reader.Next()
}

func (c *framed) writePayload(p []byte) error {
	return frame.Write(c.w, p)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrFrameTooShort):
		return "too_short"
	case errors.Is(err, frame.ErrCorruptFrame):
		return "corrupt"
	case errors.Is(err, frame.ErrChecksum):
		return "checksum"
	case errors.Is(err, frame.ErrBufferOverflow):
		return "overflow"
	default:
		return "other"
	}
}
