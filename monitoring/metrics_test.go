package monitoring

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.ObservePrediction("Diabetic", time.Millisecond)
	m.ObservePrediction("Diabetic", time.Millisecond)
	m.ObservePrediction("Not Diabetic", time.Millisecond)
	m.PredictionError("schema")
	m.TrainingRun(true, 0.85)
	m.TrainingRun(false, 0)

	if got := testutil.ToFloat64(m.predictions.WithLabelValues("Diabetic")); got != 2 {
		t.Fatalf("diabetic predictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.predictionErrors.WithLabelValues("schema")); got != 1 {
		t.Fatalf("schema errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.modelAccuracy); got != 0.85 {
		t.Fatalf("model accuracy = %v, want 0.85", got)
	}
	if got := testutil.ToFloat64(m.trainingRuns.WithLabelValues("failure")); got != 1 {
		t.Fatalf("failed runs = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.CacheHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), "glucorisk_prediction_cache_hits_total 1") {
		t.Fatalf("cache counter missing from exposition:\n%s", body)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// 两个实例不应在注册时冲突
	NewMetrics()
	NewMetrics()
}
