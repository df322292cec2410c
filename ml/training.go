package ml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
)

// Dataset is a labeled training set; Labels[i] belongs to Records[i].
type Dataset struct {
	Records []RawRecord
	Labels  []int
}

type DatasetSource interface {
	Load(ctx context.Context) (Dataset, error)
}

// TrainingRecorder persists the outcome of a training run.
type TrainingRecorder interface {
	RecordTraining(ctx context.Context, report TrainingReport) error
}

type CandidateResult struct {
	Name     string  `json:"name"`
	Accuracy float64 `json:"accuracy"`
	Error    string  `json:"error,omitempty"`
}

type TrainingReport struct {
	BestModel  string            `json:"best_model"`
	Accuracy   float64           `json:"accuracy"`
	ModelPath  string            `json:"model_path"`
	ArtifactID string            `json:"artifact_id"`
	TrainSize  int               `json:"train_size"`
	TestSize   int               `json:"test_size"`
	Candidates []CandidateResult `json:"candidates"`
	TrainedAt  time.Time         `json:"trained_at"`
}

type TrainerConfig struct {
	ModelPath  string
	TestRatio  float64
	Seed       int64
	Candidates []Candidate
}

type Trainer struct {
	config   TrainerConfig
	logger   *zap.Logger
	recorder TrainingRecorder
}

func NewTrainer(config TrainerConfig, logger *zap.Logger) *Trainer {
	if config.ModelPath == "" {
		config.ModelPath = DefaultModelPath
	}
	if config.TestRatio <= 0 || config.TestRatio >= 1 {
		config.TestRatio = DefaultTestRatio
	}
	// zero means unset, as with TestRatio
	if config.Seed == 0 {
		config.Seed = DefaultSeed
	}
	if config.Candidates == nil {
		config.Candidates = DefaultCandidates(DefaultRandomForestConfig().Trees, config.Seed)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{config: config, logger: logger}
}

func (t *Trainer) WithRecorder(recorder TrainingRecorder) *Trainer {
	t.recorder = recorder
	return t
}

// Run loads the dataset, selects the best candidate and persists it. Nothing
// is written unless a candidate was trained and evaluated successfully.
func (t *Trainer) Run(ctx context.Context, source DatasetSource) (*Artifact, TrainingReport, error) {
	dataset, err := source.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrDataLoad) {
			return nil, TrainingReport{}, err
		}
		return nil, TrainingReport{}, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}

	artifact, report, err := t.Fit(ctx, dataset)
	if err != nil {
		return nil, report, err
	}

	if err := SaveArtifact(t.config.ModelPath, artifact); err != nil {
		return nil, report, fmt.Errorf("%w: persist: %w", ErrTraining, err)
	}
	report.ModelPath = t.config.ModelPath
	t.logger.Info("artifact saved",
		zap.String("path", report.ModelPath),
		zap.String("artifact_id", report.ArtifactID),
		zap.String("model", report.BestModel),
		zap.Float64("accuracy", report.Accuracy),
	)

	if t.recorder != nil {
		if err := t.recorder.RecordTraining(ctx, report); err != nil {
			t.logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return artifact, report, nil
}

// Fit trains every candidate on the stratified training partition and keeps
// the one with strictly highest holdout accuracy. Ties go to the candidate
// evaluated first.
func (t *Trainer) Fit(ctx context.Context, dataset Dataset) (*Artifact, TrainingReport, error) {
	report := TrainingReport{TrainedAt: time.Now().UTC()}
	if len(dataset.Records) == 0 {
		return nil, report, fmt.Errorf("%w: dataset is empty", ErrDataLoad)
	}
	if len(dataset.Records) != len(dataset.Labels) {
		return nil, report, fmt.Errorf("%w: %d records but %d labels", ErrDataLoad, len(dataset.Records), len(dataset.Labels))
	}

	split, err := StratifiedSplit(dataset.Labels, t.config.TestRatio, t.config.Seed)
	if err != nil {
		return nil, report, fmt.Errorf("%w: split: %w", ErrTraining, err)
	}
	report.TrainSize = len(split.Train)
	report.TestSize = len(split.Test)

	trainRecords, trainY := subset(dataset, split.Train)
	testRecords, testY := subset(dataset, split.Test)

	preprocessor, err := FitPreprocessor(trainRecords)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	trainX, err := preprocessor.TransformBatch(trainRecords)
	if err != nil {
		return nil, report, fmt.Errorf("%w: transform training partition: %w", ErrTraining, err)
	}
	testX, err := preprocessor.TransformBatch(testRecords)
	if err != nil {
		return nil, report, fmt.Errorf("%w: transform test partition: %w", ErrTraining, err)
	}

	var (
		best         Classifier
		bestName     string
		bestAccuracy float64
		failures     []error
	)
	for _, candidate := range t.config.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, report, fmt.Errorf("%w: %w", ErrTraining, err)
		}
		start := time.Now()
		classifier, accuracy, err := fitAndEvaluate(candidate, trainX, trainY, testX, testY)
		result := CandidateResult{Name: candidate.Name(), Accuracy: accuracy}
		if err != nil {
			result.Error = err.Error()
			failures = append(failures, fmt.Errorf("%s: %w", candidate.Name(), err))
			t.logger.Warn("candidate failed", zap.String("model", candidate.Name()), zap.Error(err))
			report.Candidates = append(report.Candidates, result)
			continue
		}
		report.Candidates = append(report.Candidates, result)
		t.logger.Info("candidate evaluated",
			zap.String("model", candidate.Name()),
			zap.Float64("accuracy", accuracy),
			zap.Duration("elapsed", time.Since(start)),
		)
		if best == nil || accuracy > bestAccuracy {
			best = classifier
			bestName = candidate.Name()
			bestAccuracy = accuracy
		}
	}
	if best == nil {
		if len(failures) == 0 {
			return nil, report, fmt.Errorf("%w: no candidate models configured", ErrTraining)
		}
		return nil, report, fmt.Errorf("%w: no candidate trained successfully: %w", ErrTraining, errors.Join(failures...))
	}

	artifact, err := NewArtifact(bestName, bestAccuracy, preprocessor, best)
	if err != nil {
		return nil, report, fmt.Errorf("%w: %w", ErrTraining, err)
	}
	report.BestModel = bestName
	report.Accuracy = bestAccuracy
	report.ArtifactID = artifact.ID()
	return artifact, report, nil
}

func fitAndEvaluate(candidate Candidate, trainX [][]float64, trainY []int, testX [][]float64, testY []int) (Classifier, float64, error) {
	classifier, err := candidate.Fit(trainX, trainY)
	if err != nil {
		return nil, 0, err
	}
	accuracy, err := Accuracy(classifier, testX, testY)
	if err != nil {
		return nil, 0, err
	}
	return classifier, accuracy, nil
}

// Accuracy is the share of thresholded predictions equal to the true label.
func Accuracy(classifier Classifier, features [][]float64, labels []int) (float64, error) {
	if len(features) == 0 {
		return 0, errors.New("evaluation set is empty")
	}
	if len(features) != len(labels) {
		return 0, errors.New("features and labels size mismatch")
	}
	correct := 0
	for i, vector := range features {
		p, err := classifier.ProbabilityOfPositive(vector)
		if err != nil {
			return 0, err
		}
		if PositiveClass(clampProbability(p)) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(features)), nil
}

func subset(dataset Dataset, indices []int) ([]RawRecord, []int) {
	records := make([]RawRecord, len(indices))
	labels := make([]int, len(indices))
	for i, idx := range indices {
		records[i] = dataset.Records[idx]
		labels[i] = dataset.Labels[idx]
	}
	return records, labels
}
