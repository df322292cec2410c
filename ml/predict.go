package ml

import (
	"errors"
	"fmt"
)

const (
	// DecisionThreshold is inclusive: a probability equal to it is Diabetic.
	DecisionThreshold = 0.5

	LabelDiabetic    = "Diabetic"
	LabelNotDiabetic = "Not Diabetic"
)

type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

func LabelFor(probability float64) string {
	if probability >= DecisionThreshold {
		return LabelDiabetic
	}
	return LabelNotDiabetic
}

// PositiveClass reports the binary label the threshold assigns to probability.
func PositiveClass(probability float64) int {
	if probability >= DecisionThreshold {
		return 1
	}
	return 0
}

// Predictor scores raw records against one immutable artifact.
type Predictor struct {
	artifact *Artifact
}

func NewPredictor(artifact *Artifact) (*Predictor, error) {
	if artifact == nil {
		return nil, errors.New("predictor: artifact is required")
	}
	return &Predictor{artifact: artifact}, nil
}

func (p *Predictor) Artifact() *Artifact {
	return p.artifact
}

func (p *Predictor) Predict(record RawRecord) (Prediction, error) {
	vector, err := p.artifact.preprocessor.Transform(record)
	if err != nil {
		return Prediction{}, fmt.Errorf("preprocess: %w", err)
	}
	probability, err := p.artifact.classifier.ProbabilityOfPositive(vector)
	if err != nil {
		return Prediction{}, fmt.Errorf("score: %w", err)
	}
	probability = clampProbability(probability)
	return Prediction{Label: LabelFor(probability), Probability: probability}, nil
}

// PredictRisk loads the artifact at path and scores a single record.
func PredictRisk(path string, record RawRecord) (Prediction, error) {
	artifact, err := LoadArtifact(path)
	if err != nil {
		return Prediction{}, err
	}
	predictor, err := NewPredictor(artifact)
	if err != nil {
		return Prediction{}, err
	}
	return predictor.Predict(record)
}
