package databus

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/danmuck/microgpu/internal/protocol/frame"
)

// Link is the host end of a transport: one connection carrying whole
// payloads in the same delimiting the device expects.
type Link struct {
	name  string
	max   int
	conn  io.ReadWriteCloser
	codec codec
}

// NewLink wraps conn for the named transport: "tcp" for length-prefixed
// payloads, "framed-tcp" or "serial" for checksummed frames.
func NewLink(transport string, conn io.ReadWriteCloser) (*Link, error) {
	switch transport {
	case "tcp":
		return &Link{name: transport, max: MaxPacketSize, conn: conn, codec: newLengthPrefixed(conn, MaxPacketSize)}, nil
	case "framed-tcp", "serial":
		return &Link{name: transport, max: frame.MaxMessageSize, conn: conn, codec: newFramed(transport, conn)}, nil
	default:
		return nil, fmt.Errorf("databus: unknown transport %q", transport)
	}
}

// DialLink opens addr for the named transport. For serial, addr is the
// device path.
func DialLink(transport, addr string, dial func(network, addr string) (net.Conn, error)) (*Link, error) {
	if transport == "serial" {
		f, err := os.OpenFile(addr, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return NewLink(transport, f)
	}
	if dial == nil {
		dial = net.Dial
	}
	conn, err := dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	link, err := NewLink(transport, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return link, nil
}

func (l *Link) Name() string {
	return l.name
}

// MaxPayload is the largest payload the transport carries.
func (l *Link) MaxPayload() int {
	return l.max
}

// Conn exposes the underlying connection, for deadlines.
func (l *Link) Conn() io.ReadWriteCloser {
	return l.conn
}

func (l *Link) Send(payload []byte) error {
	return l.codec.writePayload(payload)
}

// Receive returns the next payload. It is only valid until the next call.
func (l *Link) Receive() ([]byte, error) {
	return l.codec.readPayload()
}

func (l *Link) Close() error {
	return l.conn.Close()
}
