package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/color"
	"github.com/danmuck/microgpu/internal/fonts"
	"github.com/danmuck/microgpu/internal/observability"
	"github.com/danmuck/microgpu/internal/protocol"
	"github.com/danmuck/microgpu/internal/raster"
	"github.com/danmuck/microgpu/internal/texture"
)

// ErrFatal is returned when the device cannot continue without a restart.
var ErrFatal = errors.New("engine: fatal")

// Databus sends responses back to the host.
type Databus interface {
	SendResponse(resp protocol.Response) error
	MaxOperationSize() uint16
}

// Display shows the framebuffer. After Present returns, texture 0 must be a
// buffer the display is no longer reading.
type Display interface {
	Dimensions() (width, height uint16)
	Present(textures *texture.Manager) error
}

type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateResetRequested
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateResetRequested:
		return "reset_requested"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine is single threaded; one goroutine feeds it operations.
type Engine struct {
	textures *texture.Manager
	display  Display
	bus      Databus
	diag     Diagnostics
	state    State
	presents uint64
}

func New(textures *texture.Manager, display Display, bus Databus) *Engine {
	return &Engine{textures: textures, display: display, bus: bus}
}

func (e *Engine) State() State {
	return e.state
}

func (e *Engine) ResetRequested() bool {
	return e.state == StateResetRequested
}

func (e *Engine) Textures() *texture.Manager {
	return e.textures
}

func (e *Engine) Diagnostics() *Diagnostics {
	return &e.diag
}

// Presents counts completed framebuffer presents.
func (e *Engine) Presents() uint64 {
	return e.presents
}

// ExecutePayload decodes and runs one frame payload. Decode failures become
// the diagnostic.
func (e *Engine) ExecutePayload(payload protocol.View) error {
	op, err := protocol.Decode(payload)
	if err != nil {
		e.diag.Set(err.Error())
		log.Debug().Err(err).Msg("operation_rejected")
		return nil
	}
	return e.Execute(op)
}

// Execute runs op. The returned error is nil unless it wraps ErrFatal.
func (e *Engine) Execute(op protocol.Operation) error {
	if op.Type() != protocol.OpGetLastMessage {
		e.diag.Clear()
	}
	if !e.accepts(op) {
		log.Debug().Str("op", op.Type().String()).Str("state", e.state.String()).Msg("operation_ignored")
		return nil
	}
	observability.RecordOperation(op.Type().String())

	before := e.diag.Raised()
	err := e.dispatch(op)
	if _, nested := op.(protocol.Batch); !nested && e.diag.Raised() != before {
		log.Debug().Str("op", op.Type().String()).Str("diagnostic", e.diag.Message()).Msg("operation_failed")
	}
	return err
}

func (e *Engine) accepts(op protocol.Operation) bool {
	switch op.(type) {
	case protocol.GetStatus, protocol.GetLastMessage:
		return true
	case protocol.Initialize:
		return e.state != StateResetRequested
	}
	return e.state == StateInitialized
}

func (e *Engine) dispatch(op protocol.Operation) error {
	switch o := op.(type) {
	case protocol.Initialize:
		return e.initialize(o)
	case protocol.DrawRectangle:
		e.drawRectangle(o)
	case protocol.DrawTriangle:
		e.drawTriangle(o)
	case protocol.GetStatus:
		e.send(e.Status())
	case protocol.GetLastMessage:
		e.sendLastMessage()
	case protocol.PresentFramebuffer:
		e.present()
	case protocol.Batch:
		return e.batch(o)
	case protocol.DefineTexture:
		e.defineTexture(o)
	case protocol.AppendTexturePixels:
		e.appendPixels(o)
	case protocol.DrawTexture:
		e.drawTexture(o)
	case protocol.DrawChars:
		e.drawChars(o)
	case protocol.Reset:
		e.state = StateResetRequested
		log.Info().Msg("reset_requested")
	default:
		e.diag.Setf("Cannot execute operation of type %d", uint8(op.Type()))
	}
	return nil
}

func (e *Engine) initialize(op protocol.Initialize) error {
	if op.Scale == 0 {
		e.diag.Set("Initialize failed: scale must be at least 1")
		return nil
	}
	if e.state == StateInitialized {
		return nil
	}

	width, height := e.display.Dimensions()
	err := e.textures.DefineInternal(texture.Definition{
		ID:     texture.FramebufferID,
		Width:  width,
		Height: height,
		Scale:  op.Scale,
	}, texture.PreferFast)
	if err != nil {
		e.diag.Setf("Initialize failed: %v", err)
		e.state = StateResetRequested
		return fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if _, ok := e.textures.Framebuffer(); !ok {
		e.diag.Setf("Initialize failed: display %dx%d at scale %d leaves no framebuffer", width, height, op.Scale)
		return nil
	}

	e.state = StateInitialized
	fb, _ := e.textures.Framebuffer()
	log.Info().Int("width", fb.Width).Int("height", fb.Height).Uint8("scale", op.Scale).Msg("initialized")
	return nil
}

// Status reports the device view the host sees in a status response.
func (e *Engine) Status() protocol.Status {
	width, height := e.display.Dimensions()
	s := protocol.Status{
		DisplayWidth:     width,
		DisplayHeight:    height,
		ColorMode:        color.ActiveMode(),
		MaxOperationSize: e.bus.MaxOperationSize(),
		APIVersion:       protocol.APIVersion,
	}
	if fb, ok := e.textures.Framebuffer(); ok {
		s.Initialized = true
		s.FramebufferWidth = uint16(fb.Width)
		s.FramebufferHeight = uint16(fb.Height)
	}
	return s
}

func (e *Engine) sendLastMessage() {
	msg := e.diag.Message()
	if limit := int(e.bus.MaxOperationSize()) - 1; limit >= 0 && len(msg) > limit {
		msg = msg[:limit]
	}
	e.send(protocol.LastMessage{Message: msg})
}

func (e *Engine) send(resp protocol.Response) {
	if err := e.bus.SendResponse(resp); err != nil {
		log.Warn().Err(err).Uint8("response", uint8(resp.ResponseType())).Msg("response_send_failed")
	}
}

func (e *Engine) present() {
	if _, ok := e.textures.Framebuffer(); !ok {
		e.diag.Set("Present failed: framebuffer texture is not defined")
		return
	}
	start := time.Now()
	if err := e.display.Present(e.textures); err != nil {
		e.diag.Setf("Present failed: %v", err)
		return
	}
	e.presents++
	observability.RecordPresent(time.Since(start))
}

// batch runs each [u16 length][operation] record in order. A record whose
// length or contents cannot be trusted ends the batch, since the offsets
// after it are meaningless.
func (e *Engine) batch(op protocol.Batch) error {
	records := op.Records
	data := records.Bytes()
	if !records.Valid() {
		e.diag.Set(protocol.ErrStaleView.Error())
		return nil
	}

	offset := 0
	for offset < len(data) {
		remaining := len(data) - offset
		if remaining < protocol.BatchRecordHeader {
			e.diag.Setf("Batch aborted: %d trailing bytes at offset %d cannot hold a record length", remaining, offset)
			return nil
		}
		size := int(binary.BigEndian.Uint16(data[offset:]))
		start := offset + protocol.BatchRecordHeader
		if size > len(data)-start {
			e.diag.Setf("Batch aborted: record at offset %d declares %d bytes but only %d remain",
				offset, size, len(data)-start)
			return nil
		}

		inner, err := protocol.Decode(records.Slice(start, start+size))
		if err != nil {
			e.diag.Setf("Batch aborted at offset %d: %v", offset, err)
			log.Debug().Int("offset", offset).Err(err).Msg("batch_aborted")
			return nil
		}
		if err := e.Execute(inner); err != nil {
			return err
		}
		offset = start + size
	}
	return nil
}

func (e *Engine) target(id uint8, action string) (*texture.Texture, bool) {
	t, ok := e.textures.Get(id)
	if !ok {
		e.diag.Setf("%s failed: texture id %d is not defined", action, id)
	}
	return t, ok
}

func (e *Engine) drawRectangle(op protocol.DrawRectangle) {
	t, ok := e.target(op.TextureID, "Draw rectangle")
	if !ok {
		return
	}
	raster.Rectangle(t, int(op.X), int(op.Y), int(op.Width), int(op.Height), op.Color)
}

func (e *Engine) drawTriangle(op protocol.DrawTriangle) {
	t, ok := e.target(op.TextureID, "Draw triangle")
	if !ok {
		return
	}
	var pts [3]raster.Point
	for i, p := range op.Points {
		pts[i] = raster.Point{X: int(p.X), Y: int(p.Y)}
	}
	raster.Triangle(t, pts[0], pts[1], pts[2], op.Color)
}

func (e *Engine) defineTexture(op protocol.DefineTexture) {
	err := e.textures.Define(texture.Definition{
		ID:          op.TextureID,
		Width:       op.Width,
		Height:      op.Height,
		Transparent: op.TransparentColor,
		Scale:       1,
	}, texture.PreferSlow)
	if err != nil {
		e.diag.Set(err.Error())
	}
}

func (e *Engine) appendPixels(op protocol.AppendTexturePixels) {
	pixels := op.Pixels.Bytes()
	if !op.Pixels.Valid() {
		e.diag.Set(protocol.ErrStaleView.Error())
		return
	}
	if _, err := e.textures.Append(op.TextureID, int(op.PixelCount), pixels); err != nil {
		e.diag.Set(err.Error())
	}
}

func (e *Engine) drawTexture(op protocol.DrawTexture) {
	err := e.textures.Draw(texture.DrawRequest{
		SourceID:           op.SourceID,
		TargetID:           op.TargetID,
		SourceX:            int(op.SourceX),
		SourceY:            int(op.SourceY),
		Width:              int(op.SourceWidth),
		Height:             int(op.SourceHeight),
		TargetX:            int(op.TargetX),
		TargetY:            int(op.TargetY),
		IgnoreTransparency: op.IgnoreTransparency,
	})
	if err != nil {
		e.diag.Set(err.Error())
	}
}

func (e *Engine) drawChars(op protocol.DrawChars) {
	chars := op.Chars.Bytes()
	if !op.Chars.Valid() {
		e.diag.Set(protocol.ErrStaleView.Error())
		return
	}
	t, ok := e.target(op.TextureID, "Font draw")
	if !ok {
		return
	}
	if err := fonts.Draw(t, fonts.ID(op.FontID), chars, op.Color, int(op.X), int(op.Y)); err != nil {
		e.diag.Set(err.Error())
	}
}
