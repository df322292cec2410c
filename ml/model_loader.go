package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const DefaultModelPath = "models/best_model.json"

// LoadArtifact reads a persisted artifact. A missing file is ErrModelNotFound:
// training has to run before anything can be served.
func LoadArtifact(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w (looked for %s)", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("load artifact %s: %w", path, err)
	}
	artifact, err := DecodeArtifact(payload)
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", path, err)
	}
	return artifact, nil
}

func DecodeArtifact(payload []byte) (*Artifact, error) {
	var doc artifactDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	if doc.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d", doc.FormatVersion)
	}
	if doc.Preprocessor == nil {
		return nil, errors.New("artifact has no preprocessor")
	}
	classifier, err := decodeClassifier(doc.ModelKind, doc.Model, doc.Preprocessor.Width())
	if err != nil {
		return nil, err
	}
	return &Artifact{
		id:           doc.ID,
		createdAt:    doc.CreatedAt,
		modelName:    doc.ModelName,
		accuracy:     doc.Accuracy,
		preprocessor: doc.Preprocessor,
		classifier:   classifier,
	}, nil
}

func decodeClassifier(kind string, payload json.RawMessage, width int) (Classifier, error) {
	switch kind {
	case KindLogisticRegression:
		model := &LogisticRegression{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if len(model.Weights) != width {
			return nil, fmt.Errorf("decode %s: %d weights for %d features", kind, len(model.Weights), width)
		}
		return model, nil
	case KindRandomForest:
		model := &RandomForest{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if model.Width != width {
			return nil, fmt.Errorf("decode %s: width %d for %d features", kind, model.Width, width)
		}
		if err := model.validate(); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", kind)
	}
}
