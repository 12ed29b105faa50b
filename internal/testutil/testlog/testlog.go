// Package testlog gives each test the quiet test logging profile and marks
// where its output begins and ends.
package testlog

import (
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/microgpu/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Str("test", t.Name()).Msg("test_start")
	t.Cleanup(func() {
		log.Debug().Str("test", t.Name()).Bool("failed", t.Failed()).Msg("test_done")
	})
}
