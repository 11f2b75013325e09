package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Upload("image", "created")
	m.Upload("image", "dedup")
	m.Upload("image", "dedup")
	m.ObjectStoreOp("put", "ok")
	m.ObjectStoreRetry("put")
	m.Compensation("batch_put_failed")
	m.Sweep("ok", 3, 1, 0.5)

	if got := testutil.ToFloat64(m.Uploads.WithLabelValues("image", "dedup")); got != 2 {
		t.Fatalf("expected 2 dedup uploads, got %v", got)
	}
	if got := testutil.ToFloat64(m.ObjectRetries.WithLabelValues("put")); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.SweepDeleted.WithLabelValues("orphan")); got != 3 {
		t.Fatalf("expected 3 orphan deletes, got %v", got)
	}
	if got := testutil.ToFloat64(m.SweepDeleted.WithLabelValues("stray")); got != 1 {
		t.Fatalf("expected 1 stray delete, got %v", got)
	}
	if got := testutil.CollectAndCount(m.SweepDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Upload("image", "created")
	m.ObjectStoreOp("put", "ok")
	m.ObjectStoreRetry("put")
	m.Compensation("x")
	m.Sweep("ok", 1, 1, 1)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Upload("novel", "created")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `canonstore_uploads_total{family="novel",outcome="created"} 1`) {
		t.Fatalf("metrics output missing upload counter:\n%s", body)
	}
}
