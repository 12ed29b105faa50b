package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/engine"
	"github.com/danmuck/microgpu/internal/observability"
	"github.com/danmuck/microgpu/internal/protocol"
	"github.com/danmuck/microgpu/internal/protocol/session"
	"github.com/danmuck/microgpu/internal/texture"
)

const (
	causeReset = "reset"
	causeFatal = "fatal"
)

// Bus is the device end of a transport.
type Bus interface {
	engine.Databus
	Name() string
	NextFrame() (protocol.View, error)
	Close() error
}

// Snapshot is a point-in-time view of the device for the admin surface.
type Snapshot struct {
	Device            string    `json:"device"`
	Transport         string    `json:"transport"`
	State             string    `json:"state"`
	Session           uint64    `json:"session"`
	Restarts          uint64    `json:"restarts"`
	Payloads          uint64    `json:"payloads"`
	Presents          uint64    `json:"presents"`
	DisplayWidth      uint16    `json:"display_width"`
	DisplayHeight     uint16    `json:"display_height"`
	FramebufferWidth  uint16    `json:"framebuffer_width"`
	FramebufferHeight uint16    `json:"framebuffer_height"`
	MaxOperationSize  uint16    `json:"max_operation_size"`
	LastMessage       string    `json:"last_message,omitempty"`
	Textures          []int     `json:"textures"`
	FastPoolUsed      int       `json:"fast_pool_used"`
	SlowPoolUsed      int       `json:"slow_pool_used"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Options struct {
	Name     string
	Bus      Bus
	Display  engine.Display
	FastPool *texture.BudgetPool
	SlowPool *texture.BudgetPool
	Restart  session.BackoffConfig
}

// Device runs engine sessions against one bus. A session ends when the host
// resets the device or initialization fails fatally; all textures are
// released and a fresh session waits for Initialize.
type Device struct {
	opts Options

	mu       sync.RWMutex
	snap     Snapshot
	payloads uint64
}

func New(opts Options) *Device {
	def := DefaultConfig()
	if opts.FastPool == nil {
		opts.FastPool = texture.NewBudgetPool("fast", def.FastPoolBytes)
	}
	if opts.SlowPool == nil {
		opts.SlowPool = texture.NewBudgetPool("slow", def.SlowPoolBytes)
	}
	d := &Device{opts: opts}
	d.snap = Snapshot{
		Device:    opts.Name,
		Transport: opts.Bus.Name(),
		State:     engine.StateUninitialized.String(),
		Textures:  []int{},
	}
	return d
}

// Run serves sessions until ctx ends or the bus fails. Cancelling ctx closes
// the bus.
func (d *Device) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = d.opts.Bus.Close()
	})
	defer stop()

	attempt := 0
	for {
		cause, err := d.runSession()
		if ctx.Err() != nil {
			log.Info().Str("device", d.opts.Name).Msg("device_stopped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("device: transport %s: %w", d.opts.Bus.Name(), err)
		}

		// a host reset restarts at once; repeated fatal failures back off
		if cause == causeReset {
			attempt = 0
		} else {
			attempt++
		}
		d.mu.Lock()
		d.snap.Restarts++
		d.mu.Unlock()
		observability.RecordRestart(cause)
		log.Warn().Str("device", d.opts.Name).Str("cause", cause).Int("attempt", attempt).Msg("device_restart")

		if err := session.Wait(ctx, d.opts.Restart, attempt, nil); err != nil {
			log.Info().Str("device", d.opts.Name).Msg("device_stopped")
			return nil
		}
	}
}

// runSession returns the restart cause, or the bus error that ended it.
func (d *Device) runSession() (string, error) {
	textures := texture.NewManager(d.opts.FastPool, d.opts.SlowPool)
	defer textures.Close()
	eng := engine.New(textures, d.opts.Display, d.opts.Bus)

	d.mu.Lock()
	d.snap.Session++
	id := d.snap.Session
	d.mu.Unlock()
	d.publish(eng)
	log.Info().Str("transport", d.opts.Bus.Name()).Uint64("session", id).Msg("waiting_for_initialize")

	for {
		view, err := d.opts.Bus.NextFrame()
		if err != nil {
			return "", err
		}
		execErr := eng.ExecutePayload(view)
		d.mu.Lock()
		d.payloads++
		d.mu.Unlock()
		d.publish(eng)

		if execErr != nil {
			if !errors.Is(execErr, engine.ErrFatal) {
				return "", execErr
			}
			log.Error().Err(execErr).Uint64("session", id).Msg("session_fatal")
			return causeFatal, nil
		}
		if eng.ResetRequested() {
			log.Info().Uint64("session", id).Msg("reset_requested")
			return causeReset, nil
		}
	}
}

func (d *Device) publish(eng *engine.Engine) {
	status := eng.Status()
	defined := eng.Textures().Defined()
	ids := make([]int, len(defined))
	for i, id := range defined {
		ids[i] = int(id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.snap.State = eng.State().String()
	d.snap.Payloads = d.payloads
	d.snap.Presents = eng.Presents()
	d.snap.DisplayWidth = status.DisplayWidth
	d.snap.DisplayHeight = status.DisplayHeight
	d.snap.FramebufferWidth = status.FramebufferWidth
	d.snap.FramebufferHeight = status.FramebufferHeight
	d.snap.MaxOperationSize = status.MaxOperationSize
	d.snap.LastMessage = eng.Diagnostics().Message()
	d.snap.Textures = ids
	d.snap.FastPoolUsed = d.opts.FastPool.Used()
	d.snap.SlowPoolUsed = d.opts.SlowPool.Used()
	d.snap.UpdatedAt = time.Now()
}

// Snapshot is safe to call from any goroutine.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.snap
	s.Textures = append([]int(nil), d.snap.Textures...)
	return s
}
