package device

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/microgpu/internal/databus"
	"github.com/danmuck/microgpu/internal/display"
	"github.com/danmuck/microgpu/internal/protocol"
	"github.com/danmuck/microgpu/internal/protocol/frame"
	"github.com/danmuck/microgpu/internal/protocol/session"
	"github.com/danmuck/microgpu/internal/testutil/testlog"
	"github.com/danmuck/microgpu/internal/texture"
)

type host struct {
	t      *testing.T
	conn   net.Conn
	reader *frame.Reader
}

func (h *host) send(op protocol.Operation) {
	h.t.Helper()
	payload, err := protocol.EncodeOperation(op)
	if err != nil {
		h.t.Fatalf("encode %s: %v", op.Type(), err)
	}
	if err := frame.Write(h.conn, payload); err != nil {
		h.t.Fatalf("write %s: %v", op.Type(), err)
	}
}

func (h *host) status() protocol.Status {
	h.t.Helper()
	h.send(protocol.GetStatus{})
	_ = h.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := h.reader.Next()
	if err != nil {
		h.t.Fatalf("read status: %v", err)
	}
	resp, err := protocol.DecodeResponse(payload)
	if err != nil {
		h.t.Fatalf("decode status: %v", err)
	}
	status, ok := resp.(protocol.Status)
	if !ok {
		h.t.Fatalf("expected status response, got %T", resp)
	}
	return status
}

func startDevice(t *testing.T, fast, slow *texture.BudgetPool) (*Device, *host, func() error) {
	t.Helper()
	deviceEnd, hostEnd := net.Pipe()
	d := New(Options{
		Name:     "mgpu.test",
		Bus:      databus.NewStream("uart", deviceEnd),
		Display:  display.NewHeadless(32, 24),
		FastPool: fast,
		SlowPool: slow,
		Restart:  session.BackoffConfig{InitialDelay: time.Millisecond},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatalf("device did not stop")
			return nil
		}
	}
	t.Cleanup(func() {
		cancel()
		hostEnd.Close()
	})
	return d, &host{t: t, conn: hostEnd, reader: frame.NewReader(hostEnd, frame.DefaultLimits())}, stop
}

func waitFor(t *testing.T, d *Device, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := d.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeviceInitializeStatusAndReset(t *testing.T) {
	testlog.Start(t)
	d, h, stop := startDevice(t, nil, nil)

	if s := h.status(); s.Initialized {
		t.Fatalf("expected uninitialized device, got %+v", s)
	}
	h.send(protocol.Initialize{Scale: 2})
	s := h.status()
	if !s.Initialized || s.FramebufferWidth != 16 || s.FramebufferHeight != 12 {
		t.Fatalf("unexpected status after initialize: %+v", s)
	}
	if s.MaxOperationSize != frame.MaxMessageSize {
		t.Fatalf("expected max operation size %d, got %d", frame.MaxMessageSize, s.MaxOperationSize)
	}

	h.send(protocol.DefineTexture{TextureID: 3, Width: 4, Height: 4})
	h.send(protocol.PresentFramebuffer{})
	snap := waitFor(t, d, "present", func(s Snapshot) bool { return s.Presents == 1 })
	if snap.State != "initialized" || len(snap.Textures) < 2 {
		t.Fatalf("unexpected snapshot after present: %+v", snap)
	}

	h.send(protocol.Reset{})
	snap = waitFor(t, d, "restart", func(s Snapshot) bool { return s.Restarts == 1 && s.Session == 2 })
	if snap.State != "uninitialized" {
		t.Fatalf("expected fresh session, got %+v", snap)
	}
	if s := h.status(); s.Initialized {
		t.Fatalf("expected reset device to be uninitialized, got %+v", s)
	}
	snap = d.Snapshot()
	if len(snap.Textures) != 0 || snap.FastPoolUsed != 0 || snap.SlowPoolUsed != 0 {
		t.Fatalf("expected textures released on reset: %+v", snap)
	}

	if err := stop(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestDeviceRestartsAfterFatalInitialize(t *testing.T) {
	testlog.Start(t)
	fast := texture.NewBudgetPool("fast", 16)
	slow := texture.NewBudgetPool("slow", 16)
	d, h, stop := startDevice(t, fast, slow)

	h.send(protocol.Initialize{Scale: 1})
	waitFor(t, d, "fatal restart", func(s Snapshot) bool { return s.Restarts == 1 && s.Session == 2 })
	if s := h.status(); s.Initialized {
		t.Fatalf("expected uninitialized after fatal restart, got %+v", s)
	}
	if err := stop(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestDeviceStopsWhenStreamEnds(t *testing.T) {
	testlog.Start(t)
	deviceEnd, hostEnd := net.Pipe()
	d := New(Options{
		Name:    "mgpu.test",
		Bus:     databus.NewStream("uart", deviceEnd),
		Display: display.NewHeadless(8, 8),
	})
	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()
	hostEnd.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected transport error when the stream ends")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("device did not stop")
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Display = "crt"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidDisplay) {
		t.Fatalf("expected ErrInvalidDisplay, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Transport = TransportSerial
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidTransport) {
		t.Fatalf("expected ErrInvalidTransport without serial_path, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.DisplayWidth = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}

	for _, bytes := range []int{0, -1} {
		cfg = DefaultConfig()
		cfg.SlowPoolBytes = bytes
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidPool) {
			t.Fatalf("expected ErrInvalidPool for slow pool of %d bytes, got %v", bytes, err)
		}
	}
}

func TestNewDefaultsToBudgetedPools(t *testing.T) {
	testlog.Start(t)
	a, b := net.Pipe()
	defer b.Close()
	d := New(Options{Name: "mgpu.test", Bus: databus.NewStream("serial", a), Display: display.NewHeadless(8, 8)})
	def := DefaultConfig()
	if d.opts.FastPool.Budget() != def.FastPoolBytes || d.opts.SlowPool.Budget() != def.SlowPoolBytes {
		t.Fatalf("expected default budgets, got fast=%d slow=%d", d.opts.FastPool.Budget(), d.opts.SlowPool.Budget())
	}
}

func TestServiceServesHeadlessOverTCP(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close()
	if svc.Admin() != nil {
		t.Fatalf("admin surface should be off without admin_addr")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("service did not stop")
	}
}
