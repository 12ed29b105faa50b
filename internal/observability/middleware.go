package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietRoutes are polled by scrapers and dashboards; they log at debug.
var quietRoutes = map[string]bool{
	"/health":    true,
	"/metrics":   true,
	"/frame.png": true,
}

// routeOf returns the registered route template so per-seq frame lookups
// share one metric series. Unmatched requests collapse to "unmatched".
func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// AdminRequests logs and counts every request served by the admin surface
// of the named device.
func AdminRequests(device string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := routeOf(c)
		status := c.Writer.Status()
		RecordHTTPRequest(device, c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400 && status != 404:
			event = logger.Warn()
		case quietRoutes[route] || status == 404:
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		if seq := c.Writer.Header().Get("X-Frame-Seq"); seq != "" {
			event = event.Str("frame_seq", seq)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Int("bytes", c.Writer.Size()).
			Msg("admin_request")
	}
}
