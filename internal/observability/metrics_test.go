package observability

import (
	"testing"
	"time"

	"github.com/danmuck/radioctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordTransaction("success", 24*time.Millisecond)
	RecordRetry("nak")
	RecordFrame("ack")
	RecordFramingError("bad_checksum")
	RecordLoopRestart("receive")
	RecordDesync()
	SetQueueDepth(3)

	log.Info().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestRecordersAccumulate(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(retries.WithLabelValues("collision"))
	RecordRetry("collision")
	RecordRetry("collision")
	if got := testutil.ToFloat64(retries.WithLabelValues("collision")); got != before+2 {
		t.Fatalf("collision retries=%v want %v", got, before+2)
	}

	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Fatalf("queue depth=%v", got)
	}
}
