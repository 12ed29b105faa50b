package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danmuck/microgpu/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("mgpu-a", "GET", "/status", 200, 12*time.Millisecond)
	RecordPresent(3 * time.Millisecond)
	RecordRestart("reset")
}

func TestOperationCounters(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("draw_rectangle"))
	RecordOperation("draw_rectangle")
	RecordOperation("draw_rectangle")
	if got := testutil.ToFloat64(operations.WithLabelValues("draw_rectangle")) - before; got != 2 {
		t.Fatalf("expected 2 recorded operations, got %v", got)
	}

	beforeRejected := testutil.ToFloat64(framesRejected.WithLabelValues("framed", "checksum"))
	RecordFrameRejected("framed", "checksum")
	if got := testutil.ToFloat64(framesRejected.WithLabelValues("framed", "checksum")) - beforeRejected; got != 1 {
		t.Fatalf("expected 1 rejected frame, got %v", got)
	}

	beforeDiag := testutil.ToFloat64(diagnostics)
	RecordDiagnostic()
	RecordFrame("tcp")
	if got := testutil.ToFloat64(diagnostics) - beforeDiag; got != 1 {
		t.Fatalf("expected 1 diagnostic, got %v", got)
	}
}
