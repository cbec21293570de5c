package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/feedctl/internal/logs"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("feedctl-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordAttempt("server_error", 3*time.Second)
	SetConnected(true)
	SetConnected(false)
	SetBackoff(5 * time.Second)
	RecordChunk("heartbeat")
	RecordDispatch("log", "processed", time.Millisecond)
	RecordDispatch("log", "dropped", 0)
	SetQueueDepth("log", 3)

	logs.Logf("observability/metrics: registration idempotent and recording paths executed")
}

func TestHandlerExposesStreamMetrics(t *testing.T) {
	RecordAttempt("self_timeout", 90*time.Second)
	SetBackoff(250 * time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	if !strings.Contains(text, `feedctl_stream_attempts_total{outcome="self_timeout"}`) {
		t.Fatalf("missing attempts metric")
	}
	if !strings.Contains(text, "feedctl_stream_backoff_seconds 0.25") {
		t.Fatalf("missing backoff gauge")
	}
}
