package protocol

// FrameBuffer owns the bytes of the most recently received frame. Loading a
// new frame bumps the generation, which invalidates every View cut from the
// previous one.
type FrameBuffer struct {
	data []byte
	gen  uint64
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	return &FrameBuffer{data: make([]byte, 0, capacity)}
}

// Load copies payload into the buffer and returns a view over all of it.
func (b *FrameBuffer) Load(payload []byte) View {
	b.gen++
	b.data = append(b.data[:0], payload...)
	return View{data: b.data, owner: b, gen: b.gen}
}

func (b *FrameBuffer) Generation() uint64 {
	return b.gen
}

// View is a borrowed slice of an inbound frame. It is only readable while
// the frame it came from is still the current one.
type View struct {
	data  []byte
	owner *FrameBuffer
	gen   uint64
}

// Borrow wraps bytes that are not tied to a frame buffer. Such views never
// go stale; host-side encoders and tests use them.
func Borrow(p []byte) View {
	return View{data: p}
}

func (v View) Valid() bool {
	return v.owner == nil || v.owner.gen == v.gen
}

// Bytes returns the viewed bytes, or nil once the owning frame was replaced.
func (v View) Bytes() []byte {
	if !v.Valid() {
		return nil
	}
	return v.data
}

func (v View) Len() int {
	return len(v.data)
}

// Slice narrows the view to [from, to). Bounds must be within Len.
func (v View) Slice(from, to int) View {
	return View{data: v.data[from:to:to], owner: v.owner, gen: v.gen}
}
