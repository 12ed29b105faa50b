package frame

import (
	"errors"
	"io"
)

// Limits constrains the streaming reader's memory use.
type Limits struct {
	BufferSize int
}

func DefaultLimits() Limits {
	return Limits{BufferSize: 1024}
}

// Reader pulls verified frames out of a byte stream that may also carry
// noise. Rejected frames are dropped and reported through OnDiscard.
type Reader struct {
	src       io.Reader
	buf       []byte
	n         int
	OnDiscard func(err error)
}

func NewReader(src io.Reader, limits Limits) *Reader {
	size := limits.BufferSize
	if size < MaxFrameSize {
		size = MaxFrameSize
	}
	return &Reader{src: src, buf: make([]byte, size)}
}

// Buffered returns the number of bytes waiting for a terminator.
func (r *Reader) Buffered() int {
	return r.n
}

// Next blocks until a frame decodes cleanly or the source fails. The
// returned payload is owned by the caller.
func (r *Reader) Next() ([]byte, error) {
	for {
		for r.n > 0 {
			payload, consumed, err := Decode(r.buf[:r.n])
			if consumed > 0 {
				r.discard(consumed)
			}
			if err == nil {
				return payload, nil
			}
			if errors.Is(err, ErrNoFrame) {
				if consumed == 0 {
					break
				}
				continue
			}
			r.report(err)
		}

		if r.n == len(r.buf) {
			r.report(ErrBufferOverflow)
			r.n = 0
		}

		m, err := r.src.Read(r.buf[r.n:])
		r.n += m
		if err != nil {
			if m > 0 && errors.Is(err, io.EOF) {
				continue
			}
			return nil, err
		}
	}
}

func (r *Reader) discard(count int) {
	copy(r.buf, r.buf[count:r.n])
	r.n -= count
}

func (r *Reader) report(err error) {
	if r.OnDiscard != nil {
		r.OnDiscard(err)
	}
}

// Write frames msg and writes it to w in a single call.
func Write(w io.Writer, msg []byte) error {
	buf, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
