package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"glucorisk/ml"
)

const validBody = `{"age":45,"bmi":27.5,"physical_activity":"Moderate","diet":"Balanced",` +
	`"family_history":"No","blood_pressure":120,"glucose":110}`

func TestHandlePredict(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		wantLabel   string
		wantAdvice  string
	}{
		{"below threshold", 0.3, ml.LabelNotDiabetic, recommendationNotDiabetic},
		{"at threshold", 0.5, ml.LabelDiabetic, recommendationDiabetic},
		{"above threshold", 0.92, ml.LabelDiabetic, recommendationDiabetic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			predictor := stubPredictor(t, &stubClassifier{probability: tt.probability})
			api := NewAPI(Dependencies{Models: staticModels{predictor: predictor}})
			w := doRequest(t, newMux(api), http.MethodPost, "/api/predict", validBody)

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			payload := decodeBody(t, w)
			if payload["label"] != tt.wantLabel {
				t.Fatalf("unexpected label: %v", payload["label"])
			}
			if payload["probability"].(float64) != tt.probability {
				t.Fatalf("unexpected probability: %v", payload["probability"])
			}
			if payload["artifact_id"] != predictor.Artifact().ID() {
				t.Fatalf("unexpected artifact id: %v", payload["artifact_id"])
			}
			if payload["recommendation"] != tt.wantAdvice {
				t.Fatalf("unexpected recommendation: %v", payload["recommendation"])
			}
		})
	}
}

func TestHandlePredictRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"invalid json", `{"age":`, ""},
		{"not an object", `[1,2,3]`, ""},
		{"null body", `null`, ""},
		{"missing field", strings.Replace(validBody, `,"glucose":110`, "", 1), "glucose"},
		{"extra field", strings.Replace(validBody, `"age":45`, `"age":45,"weight":80`, 1), "weight"},
		{"not a number", strings.Replace(validBody, `"bmi":27.5`, `"bmi":"heavy"`, 1), ""},
		{"out of range", strings.Replace(validBody, `"age":45`, `"age":500`, 1), ""},
		{"unknown category", strings.Replace(validBody, `"Balanced"`, `"Keto"`, 1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clf := &stubClassifier{probability: 0.4}
			api := NewAPI(Dependencies{Models: staticModels{predictor: stubPredictor(t, clf)}})
			w := doRequest(t, newMux(api), http.MethodPost, "/api/predict", tt.body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			payload := decodeBody(t, w)
			if payload["error"] == "" {
				t.Fatal("expected an error message")
			}
			if tt.wantField != "" && payload["field"] != tt.wantField {
				t.Fatalf("expected field %q, got %v", tt.wantField, payload["field"])
			}
			if clf.calls != 0 {
				t.Fatal("classifier must not run on rejected input")
			}
		})
	}
}

func TestHandlePredictMissingValuesAreImputed(t *testing.T) {
	body := strings.Replace(validBody, `"glucose":110`, `"glucose":null`, 1)
	body = strings.Replace(body, `"Balanced"`, `""`, 1)
	api := NewAPI(Dependencies{Models: staticModels{predictor: stubPredictor(t, &stubClassifier{probability: 0.2})}})
	w := doRequest(t, newMux(api), http.MethodPost, "/api/predict", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlePredictWithoutModel(t *testing.T) {
	models := staticModels{err: fmt.Errorf("%w (looked for models/best_model.json)", ml.ErrModelNotFound)}
	api := NewAPI(Dependencies{Models: models})
	w := doRequest(t, newMux(api), http.MethodPost, "/api/predict", validBody)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if msg, _ := decodeBody(t, w)["error"].(string); !strings.Contains(msg, "train the model first") {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestHandlePredictCorruptModel(t *testing.T) {
	api := NewAPI(Dependencies{Models: staticModels{err: errors.New("decode artifact: unexpected EOF")}})
	w := doRequest(t, newMux(api), http.MethodPost, "/api/predict", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestHandlePredictUsesCache(t *testing.T) {
	cache, err := NewPredictionCache(16)
	if err != nil {
		t.Fatal(err)
	}
	clf := &stubClassifier{probability: 0.6}
	api := NewAPI(Dependencies{Models: staticModels{predictor: stubPredictor(t, clf)}, Cache: cache})
	mux := newMux(api)

	first := decodeBody(t, doRequest(t, mux, http.MethodPost, "/api/predict", validBody))
	second := decodeBody(t, doRequest(t, mux, http.MethodPost, "/api/predict", validBody))

	if clf.calls != 1 {
		t.Fatalf("expected a single scoring call, got %d", clf.calls)
	}
	if second["cached"] != true || second["label"] != first["label"] || second["probability"] != first["probability"] ||
		second["recommendation"] != first["recommendation"] {
		t.Fatalf("cached response differs: %v vs %v", first, second)
	}
}
