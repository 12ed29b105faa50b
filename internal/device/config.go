package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/microgpu/internal/capture"
	"github.com/danmuck/microgpu/internal/protocol/session"
)

const (
	DisplayHeadless = "headless"
	DisplayTerminal = "terminal"

	TransportTCP       = "tcp"
	TransportFramedTCP = "framed-tcp"
	TransportSerial    = "serial"
)

var (
	ErrInvalidDisplay   = errors.New("device: invalid display")
	ErrInvalidTransport = errors.New("device: invalid transport")
	ErrInvalidSize      = errors.New("device: invalid display size")
	ErrInvalidPool      = errors.New("device: invalid texture pool budget")
)

// Config describes one device process.
type Config struct {
	Name          string
	Display       string
	DisplayWidth  uint16
	DisplayHeight uint16
	Transport     string
	ListenAddr    string
	SerialPath    string
	FastPoolBytes int
	SlowPoolBytes int

	// AdminAddr enables the HTTP admin surface when set.
	AdminAddr string
	// CaptureDB enables the frame journal when set.
	CaptureDB    string
	CaptureEvery int

	Heartbeat time.Duration
	// Restart delays the next session after a reset or fatal error.
	Restart session.BackoffConfig
}

// DefaultConfig matches the reference board: a 320x240 panel with a small
// fast pool and a larger slow pool.
func DefaultConfig() Config {
	return Config{
		Name:          "mgpu.local",
		Display:       DisplayHeadless,
		DisplayWidth:  320,
		DisplayHeight: 240,
		Transport:     TransportTCP,
		ListenAddr:    "127.0.0.1:9123",
		FastPoolBytes: 160 * 1024,
		SlowPoolBytes: 4 * 1024 * 1024,
		CaptureEvery:  capture.DefaultOptions().Every,
		Heartbeat:     30 * time.Second,
		Restart: session.BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	switch c.Display {
	case DisplayHeadless, DisplayTerminal:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDisplay, c.Display)
	}
	if c.DisplayWidth == 0 || c.DisplayHeight == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, c.DisplayWidth, c.DisplayHeight)
	}
	if c.FastPoolBytes <= 0 || c.SlowPoolBytes <= 0 {
		return fmt.Errorf("%w: fast=%d slow=%d bytes, both must be positive",
			ErrInvalidPool, c.FastPoolBytes, c.SlowPoolBytes)
	}
	switch c.Transport {
	case TransportTCP, TransportFramedTCP:
		if strings.TrimSpace(c.ListenAddr) == "" {
			return fmt.Errorf("%w: %s needs listen_addr", ErrInvalidTransport, c.Transport)
		}
	case TransportSerial:
		if strings.TrimSpace(c.SerialPath) == "" {
			return fmt.Errorf("%w: serial needs serial_path", ErrInvalidTransport)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTransport, c.Transport)
	}
	return nil
}
