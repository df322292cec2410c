package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"glucorisk/db"
	"glucorisk/ml"
)

func writeDataset(t *testing.T, rows int) string {
	t.Helper()
	activities := []string{"Low", "Moderate", "High"}
	diets := []string{"Balanced", "Low Carb", "High Sugar", "High Fat"}

	var b strings.Builder
	b.WriteString("age,bmi,physical_activity,diet,family_history,blood_pressure,glucose,diabetes\n")
	for i := 0; i < rows; i++ {
		glucose := 70 + (i*13)%180
		label := 0
		if glucose >= 150 {
			label = 1
		}
		history := "No"
		if i%2 == 1 {
			history = "Yes"
		}
		fmt.Fprintf(&b, "%d,%.1f,%s,%s,%s,%d,%d,%d\n",
			20+i%60, 18+float64(i%25), activities[i%3], diets[i%4], history, 80+(i*7)%100, glucose, label)
	}
	path := filepath.Join(t.TempDir(), "diabetes.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-data", "x.csv", "-trees", "10", "-seed", "7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.dataPath != "x.csv" || opts.trees != 10 || opts.seed != 7 {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if opts.modelPath != ml.DefaultModelPath || opts.testRatio != ml.DefaultTestRatio {
		t.Fatalf("defaults not applied: %+v", opts)
	}

	for _, args := range [][]string{{"-test_ratio", "0"}, {"-trees", "-1"}, {"-unknown"}} {
		if _, err := parseFlags(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		dataPath:  writeDataset(t, 150),
		modelPath: filepath.Join(dir, "models", "best_model.json"),
		dbPath:    filepath.Join(dir, "glucorisk.db"),
		seed:      42,
		testRatio: 0.2,
		trees:     10,
		logLevel:  "error",
	}

	var out bytes.Buffer
	if err := run(context.Background(), opts, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	pattern := regexp.MustCompile(`^Best model: (Logistic Regression|Random Forest) \| Accuracy: \d\.\d\d \| Saved to: .+best_model\.json\n$`)
	if !pattern.MatchString(out.String()) {
		t.Fatalf("unexpected output: %q", out.String())
	}

	if _, err := ml.LoadArtifact(opts.modelPath); err != nil {
		t.Fatalf("artifact not loadable: %v", err)
	}

	store, err := db.InitDB(opts.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	logs, err := store.LoadTrainingLog(context.Background())
	if err != nil || len(logs) != 1 {
		t.Fatalf("expected one training log entry, got %v (%v)", logs, err)
	}
}

func TestRunMissingDataset(t *testing.T) {
	opts := options{
		dataPath:  filepath.Join(t.TempDir(), "absent.csv"),
		modelPath: filepath.Join(t.TempDir(), "best_model.json"),
		seed:      42,
		testRatio: 0.2,
		trees:     5,
		logLevel:  "error",
	}
	err := run(context.Background(), opts, &bytes.Buffer{})
	if !errors.Is(err, ml.ErrDataLoad) {
		t.Fatalf("expected data load error, got %v", err)
	}
	if _, statErr := os.Stat(opts.modelPath); !os.IsNotExist(statErr) {
		t.Fatal("no artifact may be written when loading fails")
	}
}
