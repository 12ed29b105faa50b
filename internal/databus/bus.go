package databus

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/observability"
	"github.com/danmuck/microgpu/internal/protocol"
	"github.com/danmuck/microgpu/internal/protocol/frame"
)

// Bus is a device-side transport. NextFrame and the send methods are called
// from the device goroutine; Close may be called from any goroutine.
type Bus struct {
	name     string
	max      int
	accept   func() (io.ReadWriteCloser, error)
	newCodec func(io.ReadWriter) codec

	frames *protocol.FrameBuffer
	out    []byte

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	codec  codec
	closer io.Closer
	closed bool
}

func newBus(name string, max int, accept func() (io.ReadWriteCloser, error), newCodec func(io.ReadWriter) codec) *Bus {
	return &Bus{
		name:     name,
		max:      max,
		accept:   accept,
		newCodec: newCodec,
		frames:   protocol.NewFrameBuffer(max),
		out:      make([]byte, max),
	}
}

// ListenTCP serves length-prefixed payloads to one TCP client at a time.
func ListenTCP(addr string) (*Bus, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCP(ln), nil
}

// NewTCP wraps an existing listener with length-prefixed payloads.
func NewTCP(ln net.Listener) *Bus {
	b := newBus("tcp", MaxPacketSize, acceptFrom(ln), func(rw io.ReadWriter) codec {
		return newLengthPrefixed(rw, MaxPacketSize)
	})
	b.closer = ln
	return b
}

// ListenFramedTCP serves checksummed frames to one TCP client at a time.
func ListenFramedTCP(addr string) (*Bus, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewFramedTCP(ln), nil
}

func NewFramedTCP(ln net.Listener) *Bus {
	b := newBus("framed-tcp", frame.MaxMessageSize, acceptFrom(ln), func(rw io.ReadWriter) codec {
		return newFramed("framed-tcp", rw)
	})
	b.closer = ln
	return b
}

// NewStream frames payloads over a single byte stream such as a UART. The
// bus ends when the stream does.
func NewStream(name string, rw io.ReadWriteCloser) *Bus {
	b := newBus(name, frame.MaxMessageSize, nil, func(rw io.ReadWriter) codec {
		return newFramed(name, rw)
	})
	b.conn = rw
	b.codec = b.newCodec(rw)
	return b
}

// OpenSerial opens a character device that is already configured for the
// link speed and frames payloads over it.
func OpenSerial(path string) (*Bus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return NewStream("serial", f), nil
}

func acceptFrom(ln net.Listener) func() (io.ReadWriteCloser, error) {
	return func() (io.ReadWriteCloser, error) {
		return ln.Accept()
	}
}

func (b *Bus) Name() string {
	return b.name
}

func (b *Bus) MaxOperationSize() uint16 {
	return uint16(b.max)
}

// NextFrame blocks until a payload arrives. The view stays readable until
// the following NextFrame call.
func (b *Bus) NextFrame() (protocol.View, error) {
	for {
		c, err := b.current()
		if err != nil {
			return protocol.View{}, err
		}

		payload, err := c.readPayload()
		if err == nil {
			observability.RecordFrame(b.name)
			return b.frames.Load(payload), nil
		}
		if b.isClosed() {
			return protocol.View{}, ErrClosed
		}
		if b.accept == nil {
			return protocol.View{}, err
		}
		if !errors.Is(err, io.EOF) {
			log.Warn().Str("transport", b.name).Err(err).Msg("client_dropped")
		} else {
			log.Info().Str("transport", b.name).Msg("client_disconnected")
		}
		b.dropClient()
	}
}

func (b *Bus) current() (codec, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.codec != nil {
		c := b.codec
		b.mu.Unlock()
		return c, nil
	}
	b.mu.Unlock()

	conn, err := b.accept()
	if err != nil {
		if b.isClosed() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("databus: accept: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		conn.Close()
		return nil, ErrClosed
	}
	b.conn = conn
	b.codec = b.newCodec(conn)
	log.Info().Str("transport", b.name).Msg("client_connected")
	return b.codec, nil
}

func (b *Bus) dropClient() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = nil
	b.codec = nil
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// SendFrame writes one payload to the connected client.
func (b *Bus) SendFrame(payload []byte) error {
	b.mu.Lock()
	c := b.codec
	b.mu.Unlock()
	if c == nil {
		return ErrNoClient
	}
	return c.writePayload(payload)
}

// SendResponse encodes resp and sends it as one payload.
func (b *Bus) SendResponse(resp protocol.Response) error {
	n, err := protocol.PutResponse(b.out, resp)
	if err != nil {
		return err
	}
	return b.SendFrame(b.out[:n])
}

// Close stops the bus and unblocks a pending NextFrame.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	closer := b.closer
	b.mu.Unlock()

	var errs []error
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	if closer != nil {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
