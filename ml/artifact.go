package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const ArtifactFormatVersion = 1

// Artifact bundles the frozen preprocessing statistics with the fitted
// classifier. It is immutable: replacing a model means building a new one.
type Artifact struct {
	id           string
	createdAt    time.Time
	modelName    string
	accuracy     float64
	preprocessor *Preprocessor
	classifier   Classifier
}

type ArtifactMetadata struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ModelName string    `json:"model_name"`
	ModelKind string    `json:"model_kind"`
	Accuracy  float64   `json:"accuracy"`
	Columns   []string  `json:"columns"`
}

func NewArtifact(modelName string, accuracy float64, preprocessor *Preprocessor, classifier Classifier) (*Artifact, error) {
	if preprocessor == nil {
		return nil, errors.New("artifact: preprocessor is required")
	}
	if classifier == nil {
		return nil, errors.New("artifact: classifier is required")
	}
	return &Artifact{
		id:           uuid.NewString(),
		createdAt:    time.Now().UTC(),
		modelName:    modelName,
		accuracy:     accuracy,
		preprocessor: preprocessor,
		classifier:   classifier,
	}, nil
}

func (a *Artifact) ID() string                  { return a.id }
func (a *Artifact) CreatedAt() time.Time        { return a.createdAt }
func (a *Artifact) ModelName() string           { return a.modelName }
func (a *Artifact) Accuracy() float64           { return a.accuracy }
func (a *Artifact) Preprocessor() *Preprocessor { return a.preprocessor }
func (a *Artifact) Classifier() Classifier      { return a.classifier }

func (a *Artifact) Metadata() ArtifactMetadata {
	return ArtifactMetadata{
		ID:        a.id,
		CreatedAt: a.createdAt,
		ModelName: a.modelName,
		ModelKind: a.classifier.Kind(),
		Accuracy:  a.accuracy,
		Columns:   a.preprocessor.ColumnNames(),
	}
}

type artifactDocument struct {
	FormatVersion int             `json:"format_version"`
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	ModelName     string          `json:"model_name"`
	Accuracy      float64         `json:"accuracy"`
	Preprocessor  *Preprocessor   `json:"preprocessor"`
	ModelKind     string          `json:"model_kind"`
	Model         json.RawMessage `json:"model"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	model, err := json.Marshal(a.classifier)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.classifier.Kind(), err)
	}
	return json.Marshal(artifactDocument{
		FormatVersion: ArtifactFormatVersion,
		ID:            a.id,
		CreatedAt:     a.createdAt,
		ModelName:     a.modelName,
		Accuracy:      a.accuracy,
		Preprocessor:  a.preprocessor,
		ModelKind:     a.classifier.Kind(),
		Model:         model,
	})
}

// SaveArtifact writes the artifact next to path and renames it into place, so
// readers observe either the previous file or the complete new one.
func SaveArtifact(path string, artifact *Artifact) (err error) {
	payload, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}
