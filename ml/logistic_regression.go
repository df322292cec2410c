package ml

import (
	"errors"
	"fmt"
	"math"
)

const KindLogisticRegression = "logistic_regression"

type LogisticRegressionConfig struct {
	C            float64
	LearningRate float64
	MaxIter      int
	Tolerance    float64
}

func DefaultLogisticRegressionConfig() LogisticRegressionConfig {
	return LogisticRegressionConfig{
		C:            1.0,
		LearningRate: 0.1,
		MaxIter:      1000,
		Tolerance:    1e-6,
	}
}

// LogisticRegression is an L2-regularized binary logistic model.
type LogisticRegression struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

func (m *LogisticRegression) Kind() string {
	return KindLogisticRegression
}

func (m *LogisticRegression) ProbabilityOfPositive(vector []float64) (float64, error) {
	if len(vector) != len(m.Weights) {
		return 0, fmt.Errorf("logistic regression: expected %d features, got %d", len(m.Weights), len(vector))
	}
	return sigmoid(m.decision(vector)), nil
}

func (m *LogisticRegression) decision(vector []float64) float64 {
	z := m.Intercept
	for i, w := range m.Weights {
		z += w * vector[i]
	}
	return z
}

type logisticRegressionCandidate struct {
	config LogisticRegressionConfig
}

func NewLogisticRegressionCandidate(config LogisticRegressionConfig) Candidate {
	defaults := DefaultLogisticRegressionConfig()
	if config.C <= 0 {
		config.C = defaults.C
	}
	if config.LearningRate <= 0 {
		config.LearningRate = defaults.LearningRate
	}
	if config.MaxIter <= 0 {
		config.MaxIter = defaults.MaxIter
	}
	if config.Tolerance <= 0 {
		config.Tolerance = defaults.Tolerance
	}
	return &logisticRegressionCandidate{config: config}
}

func (c *logisticRegressionCandidate) Name() string {
	return "Logistic Regression"
}

// Fit minimizes mean log-loss plus ||w||^2 / (2*C*n) with full-batch gradient
// descent. The intercept is not penalized.
func (c *logisticRegressionCandidate) Fit(features [][]float64, labels []int) (Classifier, error) {
	if err := checkTrainingSet(features, labels); err != nil {
		return nil, err
	}
	n := float64(len(features))
	width := len(features[0])
	penalty := 1 / (c.config.C * n)

	model := &LogisticRegression{Weights: make([]float64, width)}
	grad := make([]float64, width)
	for iter := 0; iter < c.config.MaxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradIntercept := 0.0
		for i, row := range features {
			residual := sigmoid(model.decision(row)) - float64(labels[i])
			for j, v := range row {
				grad[j] += residual * v
			}
			gradIntercept += residual
		}

		maxStep := 0.0
		for j := range model.Weights {
			g := grad[j]/n + penalty*model.Weights[j]
			step := c.config.LearningRate * g
			model.Weights[j] -= step
			maxStep = math.Max(maxStep, math.Abs(step))
		}
		step := c.config.LearningRate * gradIntercept / n
		model.Intercept -= step
		maxStep = math.Max(maxStep, math.Abs(step))

		if maxStep < c.config.Tolerance {
			break
		}
	}

	for _, w := range model.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.New("logistic regression: diverged")
		}
	}
	return model, nil
}

func checkTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("feature vector %d has %d columns, expected %d", i, len(row), width)
		}
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d is %d, expected 0 or 1", i, label)
		}
	}
	return nil
}
