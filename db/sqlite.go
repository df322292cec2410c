package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"glucorisk/ml"

	_ "github.com/mattn/go-sqlite3"
)

const DefaultHistoryLimit = 50

var _ ml.TrainingRecorder = (*Store)(nil)

// Store 训练记录与预测历史的 SQLite 存储
type Store struct {
	database *sql.DB
}

// InitDB 打开数据库并建表
func InitDB(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite 单写者
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        artifact_id TEXT NOT NULL,
        model_name VARCHAR(50) NOT NULL,
        accuracy REAL NOT NULL,
        train_size INTEGER NOT NULL,
        test_size INTEGER NOT NULL,
        model_path TEXT,
        candidates TEXT,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        artifact_id TEXT NOT NULL,
        inputs TEXT NOT NULL,
        label VARCHAR(20) NOT NULL,
        probability REAL NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{database: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.database == nil {
		return nil
	}
	return s.database.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	return s.database.PingContext(ctx)
}

type TrainingLog struct {
	ID         int64                `json:"id"`
	ArtifactID string               `json:"artifact_id"`
	ModelName  string               `json:"model_name"`
	Accuracy   float64              `json:"accuracy"`
	TrainSize  int                  `json:"train_size"`
	TestSize   int                  `json:"test_size"`
	ModelPath  string               `json:"model_path"`
	Candidates []ml.CandidateResult `json:"candidates"`
	TrainedAt  time.Time            `json:"trained_at"`
}

// SaveTrainingReport 记录一次训练结果
func (s *Store) SaveTrainingReport(ctx context.Context, report ml.TrainingReport) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	candidates, err := json.Marshal(report.Candidates)
	if err != nil {
		return err
	}
	trainedAt := report.TrainedAt
	if trainedAt.IsZero() {
		trainedAt = time.Now().UTC()
	}
	_, err = s.database.ExecContext(ctx, `
        INSERT INTO training_log (
            artifact_id, model_name, accuracy, train_size, test_size, model_path, candidates, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		report.ArtifactID,
		report.BestModel,
		report.Accuracy,
		report.TrainSize,
		report.TestSize,
		report.ModelPath,
		string(candidates),
		trainedAt.UTC(),
	)
	return err
}

// RecordTraining 实现 ml.TrainingRecorder
func (s *Store) RecordTraining(ctx context.Context, report ml.TrainingReport) error {
	return s.SaveTrainingReport(ctx, report)
}

func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT id, artifact_id, model_name, accuracy, train_size, test_size, model_path, candidates, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var (
			log        TrainingLog
			modelPath  sql.NullString
			candidates sql.NullString
		)
		if err := rows.Scan(&log.ID, &log.ArtifactID, &log.ModelName, &log.Accuracy, &log.TrainSize,
			&log.TestSize, &modelPath, &candidates, &log.TrainedAt); err != nil {
			return nil, err
		}
		log.ModelPath = modelPath.String
		if candidates.Valid && candidates.String != "" {
			if err := json.Unmarshal([]byte(candidates.String), &log.Candidates); err != nil {
				return nil, fmt.Errorf("training_log %d: decode candidates: %w", log.ID, err)
			}
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type PredictionRecord struct {
	ID          int64        `json:"id"`
	ArtifactID  string       `json:"artifact_id"`
	Inputs      ml.RawRecord `json:"inputs"`
	Label       string       `json:"label"`
	Probability float64      `json:"probability"`
	CreatedAt   time.Time    `json:"created_at"`
}

func (s *Store) SavePrediction(ctx context.Context, artifactID string, inputs ml.RawRecord, prediction ml.Prediction) error {
	if s == nil || s.database == nil {
		return errors.New("database not initialized")
	}
	if artifactID == "" {
		return errors.New("artifact id required")
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	_, err = s.database.ExecContext(ctx, `
        INSERT INTO predictions (artifact_id, inputs, label, probability, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, artifactID, string(payload), prediction.Label, prediction.Probability, time.Now().UTC())
	return err
}

// RecentPredictions 按时间倒序返回最近的预测
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if s == nil || s.database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.database.QueryContext(ctx, `
        SELECT id, artifact_id, inputs, label, probability, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var (
			record PredictionRecord
			inputs string
		)
		if err := rows.Scan(&record.ID, &record.ArtifactID, &inputs, &record.Label, &record.Probability, &record.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inputs), &record.Inputs); err != nil {
			return nil, fmt.Errorf("prediction %d: decode inputs: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
