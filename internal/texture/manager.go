package texture

import (
	"errors"
	"fmt"

	"github.com/danmuck/microgpu/internal/color"
)

var (
	ErrReservedID   = errors.New("texture: reserved id")
	ErrUndefined    = errors.New("texture: not defined")
	ErrAllocation   = errors.New("texture: allocation failed")
	ErrSourceBounds = errors.New("texture: source rectangle outside texture")
)

// Definition describes a texture to allocate. Width and Height are divided
// by Scale, so the framebuffer can be defined at display resolution.
type Definition struct {
	ID          uint8
	Width       uint16
	Height      uint16
	Transparent color.Color
	Scale       uint8
}

// DrawRequest copies a source rectangle onto a target at a possibly
// negative origin.
type DrawRequest struct {
	SourceID           uint8
	TargetID           uint8
	SourceX, SourceY   int
	Width, Height      int
	TargetX, TargetY   int
	IgnoreTransparency bool
}

// Manager is the texture table. It is not safe for concurrent use.
type Manager struct {
	fast     Pool
	slow     Pool
	textures [slotCount]*Texture
}

// NewManager returns an empty manager. fast and slow may be the same pool.
func NewManager(fast, slow Pool) *Manager {
	return &Manager{fast: fast, slow: slow}
}

func (m *Manager) policy(pref PoolPreference) Policy {
	if pref == PreferSlow {
		return Policy{Preferred: m.slow, Fallback: m.fast}
	}
	return Policy{Preferred: m.fast, Fallback: m.slow}
}

// Define creates or replaces a host texture.
func (m *Manager) Define(def Definition, pref PoolPreference) error {
	if !IsHostID(def.ID) {
		return fmt.Errorf("%w: cannot define texture id %d, it is reserved for internal usage", ErrReservedID, def.ID)
	}
	return m.define(def, pref)
}

// DefineInternal creates or replaces the framebuffer or an internal slot.
func (m *Manager) DefineInternal(def Definition, pref PoolPreference) error {
	if IsHostID(def.ID) {
		return fmt.Errorf("%w: texture id %d belongs to the host", ErrReservedID, def.ID)
	}
	return m.define(def, pref)
}

func (m *Manager) define(def Definition, pref PoolPreference) error {
	m.free(def.ID)

	scale := int(def.Scale)
	if scale == 0 {
		scale = 1
	}
	width := int(def.Width) / scale
	height := int(def.Height) / scale
	if width == 0 || height == 0 {
		return nil
	}

	pixels, pool, err := m.policy(pref).Allocate(width * height)
	if err != nil {
		return fmt.Errorf("%w: defining texture id %d (%dx%d): %v", ErrAllocation, def.ID, width, height, err)
	}
	t := &Texture{
		ID:          def.ID,
		Width:       width,
		Height:      height,
		Transparent: def.Transparent,
		Scale:       uint8(scale),
		Pixels:      pixels,
		pool:        pool,
	}
	t.Fill(color.Black)
	m.textures[def.ID] = t
	return nil
}

func (m *Manager) free(id uint8) {
	t := m.textures[id]
	if t == nil {
		return
	}
	m.textures[id] = nil
	if t.pool != nil {
		t.pool.Release(t.Pixels)
	}
	t.Pixels = nil
}

// Release undefines id. It is a no-op for ids that are not defined.
func (m *Manager) Release(id uint8) {
	m.free(id)
}

// Get returns the texture stored at id.
func (m *Manager) Get(id uint8) (*Texture, bool) {
	t := m.textures[id]
	return t, t != nil
}

// Framebuffer returns texture 0.
func (m *Manager) Framebuffer() (*Texture, bool) {
	return m.Get(FramebufferID)
}

// Defined lists the ids currently holding a texture in ascending order.
func (m *Manager) Defined() []uint8 {
	var ids []uint8
	for i, t := range m.textures {
		if t != nil {
			ids = append(ids, uint8(i))
		}
	}
	return ids
}

// Append streams wire pixels into id after the last written pixel and
// returns how many were written.
func (m *Manager) Append(id uint8, count int, raw []byte) (int, error) {
	t, ok := m.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: append to texture %d failed", ErrUndefined, id)
	}
	n := min(count, t.Capacity()-t.PixelsWritten, len(raw)/color.BytesPerPixel)
	if n <= 0 {
		return 0, nil
	}
	dst := t.Pixels[t.PixelsWritten : t.PixelsWritten+n]
	for i := range dst {
		dst[i] = color.Decode(raw[i*color.BytesPerPixel:])
	}
	t.PixelsWritten += n
	return n, nil
}

// Draw composites a source rectangle onto the target. Pixels matching the
// source's transparent color are skipped unless IgnoreTransparency is set.
func (m *Manager) Draw(req DrawRequest) error {
	if req.Width <= 0 || req.Height <= 0 {
		return nil
	}
	src, ok := m.Get(req.SourceID)
	if !ok {
		return fmt.Errorf("%w: draw source texture id %d", ErrUndefined, req.SourceID)
	}
	dst, ok := m.Get(req.TargetID)
	if !ok {
		return fmt.Errorf("%w: draw target texture id %d", ErrUndefined, req.TargetID)
	}
	if req.SourceX < 0 || req.SourceY < 0 ||
		req.SourceX+req.Width > src.Width || req.SourceY+req.Height > src.Height {
		return fmt.Errorf("%w: %dx%d at (%d,%d) does not fit texture %d (%dx%d)",
			ErrSourceBounds, req.Width, req.Height, req.SourceX, req.SourceY, src.ID, src.Width, src.Height)
	}

	startX := max(req.TargetX, 0)
	startY := max(req.TargetY, 0)
	endX := min(req.TargetX+req.Width, dst.Width)
	endY := min(req.TargetY+req.Height, dst.Height)
	if startX >= endX || startY >= endY {
		return nil
	}
	width := endX - startX
	height := endY - startY
	srcX := req.SourceX + startX - req.TargetX
	srcY := req.SourceY + startY - req.TargetY

	// Walk rows backwards when copying down within one texture so rows are
	// read before they are overwritten.
	rows := make([]int, height)
	for i := range rows {
		rows[i] = i
	}
	if src == dst && startY > srcY {
		for i := range rows {
			rows[i] = height - 1 - i
		}
	}

	for _, row := range rows {
		from := src.Row(srcY + row)[srcX : srcX+width]
		to := dst.Row(startY + row)[startX : startX+width]
		if req.IgnoreTransparency {
			copy(to, from)
			continue
		}
		blitKeyed(to, from, src.Transparent, src == dst && startX > srcX)
	}
	return nil
}

func blitKeyed(to, from []color.Color, key color.Color, reverse bool) {
	if reverse {
		for i := len(from) - 1; i >= 0; i-- {
			if from[i] != key {
				to[i] = from[i]
			}
		}
		return
	}
	for i, c := range from {
		if c != key {
			to[i] = c
		}
	}
}

// Swap exchanges the textures stored at a and b.
func (m *Manager) Swap(a, b uint8) error {
	ta, ok := m.Get(a)
	if !ok {
		return fmt.Errorf("%w: swap texture id %d", ErrUndefined, a)
	}
	tb, ok := m.Get(b)
	if !ok {
		return fmt.Errorf("%w: swap texture id %d", ErrUndefined, b)
	}
	ta.ID, tb.ID = b, a
	m.textures[a], m.textures[b] = tb, ta
	return nil
}

// Close frees every texture.
func (m *Manager) Close() {
	for i := range m.textures {
		m.free(uint8(i))
	}
}
