package device

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/admin"
	"github.com/danmuck/microgpu/internal/capture"
	"github.com/danmuck/microgpu/internal/databus"
	"github.com/danmuck/microgpu/internal/display"
	"github.com/danmuck/microgpu/internal/engine"
	"github.com/danmuck/microgpu/internal/observability"
	"github.com/danmuck/microgpu/internal/texture"
)

// Service owns a device and everything hanging off it: transport, display,
// frame capture and the admin surface.
type Service struct {
	cfg     Config
	device  *Device
	latest  *display.Latest
	journal *capture.Journal
	admin   *admin.Server
	cleanup []func() error
}

// NewService opens every resource cfg names. On error, anything already
// opened is released.
func NewService(cfg Config) (svc *Service, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	observability.RegisterMetrics()

	s := &Service{cfg: cfg, latest: &display.Latest{}}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	sinks := []display.Sink{s.latest}
	if cfg.CaptureDB != "" {
		opts := capture.DefaultOptions()
		if cfg.CaptureEvery > 0 {
			opts.Every = cfg.CaptureEvery
		}
		s.journal, err = capture.Open(cfg.CaptureDB, opts)
		if err != nil {
			return nil, err
		}
		s.cleanup = append(s.cleanup, s.journal.Close)
		sinks = append(sinks, s.journal)
	}

	screen, err := openDisplay(cfg, sinks)
	if err != nil {
		return nil, err
	}
	if t, ok := screen.(*display.Terminal); ok {
		s.cleanup = append(s.cleanup, func() error {
			t.Close()
			return nil
		})
	}

	bus, err := openBus(cfg)
	if err != nil {
		return nil, err
	}
	s.cleanup = append(s.cleanup, bus.Close)

	s.device = New(Options{
		Name:     cfg.Name,
		Bus:      bus,
		Display:  screen,
		FastPool: texture.NewBudgetPool("fast", cfg.FastPoolBytes),
		SlowPool: texture.NewBudgetPool("slow", cfg.SlowPoolBytes),
		Restart:  cfg.Restart,
	})

	if cfg.AdminAddr != "" {
		s.admin = admin.New(admin.Options{
			Device:  cfg.Name,
			Status:  func() any { return s.device.Snapshot() },
			Latest:  s.latest,
			Journal: s.journal,
		})
	}
	return s, nil
}

func openDisplay(cfg Config, sinks []display.Sink) (engine.Display, error) {
	switch cfg.Display {
	case DisplayTerminal:
		return display.OpenTerminal(cfg.DisplayWidth, cfg.DisplayHeight, sinks...)
	default:
		return display.NewHeadless(cfg.DisplayWidth, cfg.DisplayHeight, sinks...), nil
	}
}

func openBus(cfg Config) (*databus.Bus, error) {
	switch cfg.Transport {
	case TransportTCP:
		return databus.ListenTCP(cfg.ListenAddr)
	case TransportFramedTCP:
		return databus.ListenFramedTCP(cfg.ListenAddr)
	case TransportSerial:
		return databus.OpenSerial(cfg.SerialPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransport, cfg.Transport)
	}
}

func (s *Service) Device() *Device {
	return s.device
}

func (s *Service) Admin() *admin.Server {
	return s.admin
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer s.Close()
	return s.Serve(ctx)
}

// Serve runs the device loop and admin surface until ctx ends or either
// fails.
func (s *Service) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deviceErr := make(chan error, 1)
	adminErr := make(chan error, 1)
	go func() {
		deviceErr <- s.device.Run(ctx)
	}()
	if s.admin != nil {
		go func() {
			adminErr <- s.admin.ListenAndServe(ctx, s.cfg.AdminAddr)
		}()
	}

	log.Info().
		Str("device", s.cfg.Name).
		Str("transport", s.cfg.Transport).
		Str("display", s.cfg.Display).
		Uint16("width", s.cfg.DisplayWidth).
		Uint16("height", s.cfg.DisplayHeight).
		Msg("device_ready")

	heartbeat := s.cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultConfig().Heartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-deviceErr
		case err := <-deviceErr:
			return err
		case err := <-adminErr:
			if err != nil {
				cancel()
				<-deviceErr
				return fmt.Errorf("device: admin: %w", err)
			}
		case <-ticker.C:
			snap := s.device.Snapshot()
			log.Info().
				Str("device", snap.Device).
				Str("state", snap.State).
				Uint64("session", snap.Session).
				Uint64("payloads", snap.Payloads).
				Uint64("presents", snap.Presents).
				Int("textures", len(snap.Textures)).
				Msg("heartbeat")
		}
	}
}

// Close releases everything NewService opened, newest first.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		errs = append(errs, s.cleanup[i]())
	}
	s.cleanup = nil
	return errors.Join(errs...)
}
