package observability

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/logging"
)

// InitLogger applies the runtime logging profile, writing to out (stderr
// when nil), and tags every event with the binary and device name.
func InitLogger(app, device string, out io.Writer) zerolog.Logger {
	logging.ConfigureOutput(logging.ProfileRuntime, out)
	ctx := log.Logger.With().Str("app", app)
	if device != "" {
		ctx = ctx.Str("device", device)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}
