package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"device", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "microgpu",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"device", "method", "route", "status"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Frames received intact from the transport.",
		},
		[]string{"transport"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "transport",
			Name:      "frames_rejected_total",
			Help:      "Frames discarded by the framing layer.",
		},
		[]string{"transport", "reason"},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Operations executed, including batched ones.",
		},
		[]string{"op"},
	)
	diagnostics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "engine",
			Name:      "diagnostics_total",
			Help:      "Operations that ended with a diagnostic message.",
		},
	)
	presents = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "microgpu",
			Subsystem: "display",
			Name:      "present_duration_seconds",
			Help:      "Time spent handing the framebuffer to the display.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)
	restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microgpu",
			Subsystem: "device",
			Name:      "restarts_total",
			Help:      "Device loop restarts by cause.",
		},
		[]string{"cause"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, framesDecoded, framesRejected,
			operations, diagnostics, presents, restarts)
	})
}

func RecordHTTPRequest(device, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(device, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(device, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(transport string) {
	RegisterMetrics()
	framesDecoded.WithLabelValues(transport).Inc()
}

func RecordFrameRejected(transport, reason string) {
	RegisterMetrics()
	framesRejected.WithLabelValues(transport, reason).Inc()
}

func RecordOperation(op string) {
	RegisterMetrics()
	operations.WithLabelValues(op).Inc()
}

func RecordDiagnostic() {
	RegisterMetrics()
	diagnostics.Inc()
}

func RecordPresent(duration time.Duration) {
	RegisterMetrics()
	presents.Observe(duration.Seconds())
}

func RecordRestart(cause string) {
	RegisterMetrics()
	restarts.WithLabelValues(cause).Inc()
}
