package http

import (
	"testing"

	"glucorisk/ml"
)

func TestPredictionCache(t *testing.T) {
	cache, err := NewPredictionCache(2)
	if err != nil {
		t.Fatal(err)
	}
	record := patientRecord(1)
	prediction := ml.Prediction{Label: ml.LabelDiabetic, Probability: 0.8}

	cache.Add("a1", record, prediction)
	if got, ok := cache.Get("a1", patientRecord(1)); !ok || got != prediction {
		t.Fatalf("expected hit, got %+v %v", got, ok)
	}
	if _, ok := cache.Get("a2", record); ok {
		t.Fatal("entries must not leak across artifacts")
	}

	cache.Add("a1", patientRecord(2), prediction)
	cache.Add("a1", patientRecord(3), prediction)
	if cache.Len() != 2 {
		t.Fatalf("expected eviction to keep 2 entries, got %d", cache.Len())
	}

	cache.Purge()
	if cache.Len() != 0 {
		t.Fatal("purge left entries behind")
	}
}

func TestDisabledCache(t *testing.T) {
	cache, err := NewPredictionCache(0)
	if err != nil || cache != nil {
		t.Fatalf("expected nil cache, got %v %v", cache, err)
	}
	cache.Add("a1", patientRecord(1), ml.Prediction{})
	if _, ok := cache.Get("a1", patientRecord(1)); ok {
		t.Fatal("disabled cache returned a hit")
	}
}
