package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatchedArtifact(t *testing.T, accuracy float64) *Artifact {
	t.Helper()
	artifact, err := NewArtifact("Logistic Regression", accuracy, mustFit(t, fitRecords()), &LogisticRegression{Weights: make([]float64, 10)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return artifact
}

func startWatcher(t *testing.T, store *ModelStore) <-chan *Artifact {
	t.Helper()
	reloaded := make(chan *Artifact, 4)
	watcher, err := NewModelWatcher(store, func(artifact *Artifact) { reloaded <- artifact }, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return reloaded
}

func TestModelWatcherReloadsReplacedArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "best_model.json")
	first := newWatchedArtifact(t, 0.7)
	store := NewModelStore(path)
	reloaded := startWatcher(t, store)

	if err := SaveArtifact(path, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case artifact := <-reloaded:
		if artifact.ID() != first.ID() {
			t.Fatalf("reloaded %s, want %s", artifact.ID(), first.ID())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first artifact was not picked up")
	}

	second := newWatchedArtifact(t, 0.9)
	if err := SaveArtifact(path, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case artifact := <-reloaded:
			if artifact.ID() != second.ID() {
				continue
			}
			predictor, err := store.Get()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if predictor.Artifact().ID() != second.ID() {
				t.Fatalf("store serves %s, want %s", predictor.Artifact().ID(), second.ID())
			}
			return
		case <-deadline:
			t.Fatal("replaced artifact was not picked up")
		}
	}
}

func TestModelWatcherKeepsModelOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "best_model.json")
	served := newWatchedArtifact(t, 0.8)
	if err := SaveArtifact(path, served); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store := NewModelStore(path)
	if _, err := store.Get(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reloaded := startWatcher(t, store)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case artifact := <-reloaded:
		t.Fatalf("unexpected reload of %s", artifact.ID())
	case <-time.After(300 * time.Millisecond):
	}
	if got := store.Current().Artifact().ID(); got != served.ID() {
		t.Fatalf("store serves %s, want %s", got, served.ID())
	}
}
