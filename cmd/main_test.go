package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"glucorisk/db"
	"glucorisk/ml"
	"glucorisk/monitoring"
	"glucorisk/pipeline"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func writeTrainingCSV(t *testing.T, dir string, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("age,bmi,physical_activity,diet,family_history,blood_pressure,glucose,diabetes\n")
	for i := 0; i < rows; i++ {
		glucose := 70 + (i*13)%180
		label := 0
		if glucose >= 150 {
			label = 1
		}
		fmt.Fprintf(&b, "%d,%.1f,%s,%s,%s,%d,%d,%d\n",
			25+i%50, 20+float64(i%20), []string{"Low", "Moderate", "High"}[i%3],
			[]string{"Balanced", "High Sugar"}[i%2], []string{"No", "Yes"}[i%2], 90+i%60, glucose, label)
	}
	path := filepath.Join(dir, "diabetes.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitializeServicesReloadsRetrainedModel(t *testing.T) {
	dir := t.TempDir()
	config := defaultConfig()
	config.Model.Path = filepath.Join(dir, "models", "best_model.json")
	config.Dataset.Path = writeTrainingCSV(t, dir, 120)
	config.Training.Trees = 5

	store, err := db.InitDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer store.Close()

	svc, err := initializeServices(config, store, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	go svc.hub.Run()
	defer svc.hub.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.watcher.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(svc.hub.HandleWebSocket))
	defer server.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	for deadline := time.Now().Add(2 * time.Second); svc.hub.ClientCount() != 1; time.Sleep(10 * time.Millisecond) {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not registered")
		}
	}

	svc.cache.Add("stale", ml.RawRecord{"age": 40}, ml.Prediction{Label: ml.LabelDiabetic, Probability: 0.9})

	// 模拟 train_model 在服务运行时覆盖模型文件
	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath:  config.Model.Path,
		Seed:       config.Training.Seed,
		Candidates: ml.DefaultCandidates(config.Training.Trees, config.Training.Seed),
	}, nil)
	artifact, _, err := trainer.Run(context.Background(), pipeline.NewCSVSource(config.Dataset.Path, nil))
	if err != nil {
		t.Fatalf("training failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("no reload event: %v", err)
	}
	var event monitoring.Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var metadata ml.ArtifactMetadata
	if err := json.Unmarshal(event.Data, &metadata); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if event.Type != monitoring.EventModelLoaded || metadata.ID != artifact.ID() {
		t.Fatalf("unexpected event %s for %s", event.Type, metadata.ID)
	}

	predictor, err := svc.models.Get()
	if err != nil {
		t.Fatalf("model not served after reload: %v", err)
	}
	if predictor.Artifact().ID() != artifact.ID() {
		t.Fatalf("served %s, want %s", predictor.Artifact().ID(), artifact.ID())
	}
	if svc.cache.Len() != 0 {
		t.Fatalf("cache not purged: %d entries", svc.cache.Len())
	}
}
