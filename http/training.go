package http

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"glucorisk/ml"
)

// ErrTrainingInProgress 已有训练在运行
var ErrTrainingInProgress = errors.New("training already in progress")

// ModelReplacer 接收新训练出的模型
type ModelReplacer interface {
	Replace(artifact *ml.Artifact) error
}

// Retrainer 串行执行在线重训练：同一时刻只允许一次训练
type Retrainer struct {
	trainer *ml.Trainer
	source  ml.DatasetSource
	models  ModelReplacer
	mu      sync.Mutex
}

func NewRetrainer(trainer *ml.Trainer, source ml.DatasetSource, models ModelReplacer) *Retrainer {
	return &Retrainer{trainer: trainer, source: source, models: models}
}

// Retrain 训练、落盘并替换当前服务的模型。正在训练时立即返回 ErrTrainingInProgress
func (r *Retrainer) Retrain(ctx context.Context) (*ml.Artifact, ml.TrainingReport, error) {
	if !r.mu.TryLock() {
		return nil, ml.TrainingReport{}, ErrTrainingInProgress
	}
	defer r.mu.Unlock()

	artifact, report, err := r.trainer.Run(ctx, r.source)
	if err != nil {
		return nil, report, err
	}
	if err := r.models.Replace(artifact); err != nil {
		return nil, report, fmt.Errorf("%w: activate model: %w", ml.ErrTraining, err)
	}
	return artifact, report, nil
}
