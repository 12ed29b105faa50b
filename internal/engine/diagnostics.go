package engine

import (
	"fmt"

	"github.com/danmuck/microgpu/internal/observability"
)

// Diagnostics holds the message left by the most recent operation.
type Diagnostics struct {
	message string
	raised  uint64
}

func (d *Diagnostics) Set(msg string) {
	d.message = msg
	if msg != "" {
		d.raised++
		observability.RecordDiagnostic()
	}
}

func (d *Diagnostics) Setf(format string, args ...any) {
	d.Set(fmt.Sprintf(format, args...))
}

func (d *Diagnostics) Clear() {
	d.message = ""
}

func (d *Diagnostics) Message() string {
	return d.message
}

// Raised counts every non-empty message set over the engine's lifetime.
func (d *Diagnostics) Raised() uint64 {
	return d.raised
}
