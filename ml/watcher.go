package ml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ModelWatcher reloads the store when the artifact file is replaced on disk,
// e.g. by the train_model command. The directory is watched instead of the
// file because SaveArtifact renames a temp file over the old one.
type ModelWatcher struct {
	store    *ModelStore
	watcher  *fsnotify.Watcher
	onReload func(*Artifact)
	logger   *zap.Logger
}

// NewModelWatcher registers the watch before returning, so writes that happen
// after it returns are not missed. onReload may be nil.
func NewModelWatcher(store *ModelStore, onReload func(*Artifact), logger *zap.Logger) (*ModelWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("watch model: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch model: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch model %s: %w", dir, err)
	}
	return &ModelWatcher{store: store, watcher: watcher, onReload: onReload, logger: logger}, nil
}

// Run handles file events until ctx is done, then releases the watch.
func (w *ModelWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	target := filepath.Clean(w.store.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("model watch error", zap.Error(err))
		}
	}
}

// reload keeps the served model when the new file does not load, and skips
// artifacts that are already being served.
func (w *ModelWatcher) reload() {
	artifact, err := LoadArtifact(w.store.Path())
	if err != nil {
		w.logger.Warn("model file changed but could not be loaded", zap.String("path", w.store.Path()), zap.Error(err))
		return
	}
	if current := w.store.Current(); current != nil && current.Artifact().ID() == artifact.ID() {
		return
	}
	if err := w.store.Replace(artifact); err != nil {
		w.logger.Error("model reload rejected", zap.String("artifact_id", artifact.ID()), zap.Error(err))
		return
	}
	w.logger.Info("model reloaded",
		zap.String("artifact_id", artifact.ID()),
		zap.String("model", artifact.ModelName()),
		zap.Float64("accuracy", artifact.Accuracy()),
	)
	if w.onReload != nil {
		w.onReload(artifact)
	}
}
