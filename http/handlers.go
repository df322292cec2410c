package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"glucorisk/db"
	"glucorisk/ml"
	"glucorisk/monitoring"
	"glucorisk/pipeline"

	"go.uber.org/zap"
)

const (
	maxHistoryLimit = 500

	// DefaultTrainTimeout 在线训练的上限，与请求的生命周期无关
	DefaultTrainTimeout = 10 * time.Minute
)

// 按预测标签给出的建议
const (
	recommendationDiabetic = "Consider scheduling a check-up with a healthcare professional, " +
		"maintain a balanced diet, and increase physical activity."
	recommendationNotDiabetic = "Great job! Keep maintaining a healthy lifestyle with regular exercise " +
		"and balanced nutrition."
)

func recommendationFor(label string) string {
	if label == ml.LabelDiabetic {
		return recommendationDiabetic
	}
	return recommendationNotDiabetic
}

// ModelProvider 返回当前服务的模型
type ModelProvider interface {
	Get() (*ml.Predictor, error)
}

// HistoryStore 预测与训练历史
type HistoryStore interface {
	SavePrediction(ctx context.Context, artifactID string, inputs ml.RawRecord, prediction ml.Prediction) error
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
	Ping(ctx context.Context) error
}

// Dependencies API 依赖；Store、Events、Cache、Retrainer 可为空
type Dependencies struct {
	Models    ModelProvider
	Store     HistoryStore
	Events    *monitoring.Hub
	Metrics   *monitoring.Metrics
	Validator *pipeline.RecordValidator
	Cache     *PredictionCache
	Retrainer *Retrainer
	Logger    *zap.Logger
	// TrainTimeout 为零时使用 DefaultTrainTimeout
	TrainTimeout time.Duration
}

// API 风险预测接口
type API struct {
	models    ModelProvider
	store     HistoryStore
	events    *monitoring.Hub
	metrics   *monitoring.Metrics
	validator *pipeline.RecordValidator
	cache     *PredictionCache
	retrainer *Retrainer
	logger    *zap.Logger

	trainTimeout time.Duration
}

func NewAPI(deps Dependencies) *API {
	api := &API{
		models:    deps.Models,
		store:     deps.Store,
		events:    deps.Events,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		cache:     deps.Cache,
		retrainer: deps.Retrainer,
		logger:    deps.Logger,

		trainTimeout: deps.TrainTimeout,
	}
	if api.trainTimeout <= 0 {
		api.trainTimeout = DefaultTrainTimeout
	}
	if api.metrics == nil {
		api.metrics = monitoring.NewMetrics()
	}
	if api.validator == nil {
		api.validator = pipeline.NewRecordValidator()
	}
	if api.logger == nil {
		api.logger = zap.NewNop()
	}
	return api
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/predict", a.handlePredict)
	mux.HandleFunc("GET /api/model", a.handleModel)
	mux.HandleFunc("POST /api/train", a.handleTrain)
	mux.HandleFunc("GET /api/predictions", a.handlePredictions)
	mux.HandleFunc("GET /api/training/log", a.handleTrainingLog)
	mux.Handle("GET /metrics", a.metrics.Handler())
	if a.events != nil {
		mux.HandleFunc("GET /api/ws/events", a.events.HandleWebSocket)
	}
}

type errorResponse struct {
	Error  string                  `json:"error"`
	Field  string                  `json:"field,omitempty"`
	Issues []pipeline.QualityIssue `json:"issues,omitempty"`
}

type predictResponse struct {
	Label          string  `json:"label"`
	Probability    float64 `json:"probability"`
	Recommendation string  `json:"recommendation"`
	ModelName      string  `json:"model_name"`
	ArtifactID     string  `json:"artifact_id"`
	Cached         bool    `json:"cached,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// handleHealth 数据库不可用时状态降级为 degraded，仍返回200
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":     "ok",
		"validation": a.validator.GetStats(),
	}
	if a.models != nil {
		_, err := a.models.Get()
		response["model_ready"] = err == nil
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.store.Ping(ctx); err != nil {
			a.logger.Warn("database ping failed", zap.Error(err))
			response["status"] = "degraded"
			response["database"] = "unavailable"
		} else {
			response["database"] = "ok"
		}
	}
	if a.events != nil {
		response["subscribers"] = a.events.ClientCount()
	}
	writeJSON(w, http.StatusOK, response)
}

// handleModelError 把加载错误映射成状态码
func (a *API) handleModelError(w http.ResponseWriter, err error) {
	if errors.Is(err, ml.ErrModelNotFound) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	a.logger.Error("model unavailable", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "model could not be loaded")
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var record ml.RawRecord
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&record); err != nil {
		a.metrics.PredictionError("bad_request")
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	if record == nil {
		a.metrics.PredictionError("bad_request")
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := ml.CheckSchema(record); err != nil {
		a.writeSchemaError(w, err)
		return
	}
	if err := a.validator.Validate(record); err != nil {
		var validationErr *pipeline.ValidationError
		if errors.As(err, &validationErr) {
			for _, issue := range validationErr.Issues {
				a.metrics.ValidationReject(issue.Rule)
			}
			a.metrics.PredictionError("validation")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Issues: validationErr.Issues})
			return
		}
		a.writeSchemaError(w, err)
		return
	}

	if a.models == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrModelNotFound.Error())
		return
	}
	predictor, err := a.models.Get()
	if err != nil {
		a.metrics.PredictionError("model_unavailable")
		a.handleModelError(w, err)
		return
	}
	artifact := predictor.Artifact()

	if cached, ok := a.cache.Get(artifact.ID(), record); ok {
		a.metrics.CacheHit()
		writeJSON(w, http.StatusOK, predictResponse{
			Label:          cached.Label,
			Probability:    cached.Probability,
			Recommendation: recommendationFor(cached.Label),
			ModelName:      artifact.ModelName(),
			ArtifactID:     artifact.ID(),
			Cached:         true,
		})
		return
	}

	start := time.Now()
	prediction, err := predictor.Predict(record)
	if err != nil {
		if errors.Is(err, ml.ErrSchema) {
			a.writeSchemaError(w, err)
			return
		}
		a.metrics.PredictionError("internal")
		a.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	a.metrics.ObservePrediction(prediction.Label, time.Since(start))
	a.cache.Add(artifact.ID(), record, prediction)

	if a.store != nil {
		if err := a.store.SavePrediction(r.Context(), artifact.ID(), record, prediction); err != nil {
			a.logger.Warn("failed to store prediction", zap.Error(err))
		}
	}
	if a.events != nil {
		a.events.Publish(monitoring.EventPrediction, map[string]interface{}{
			"artifact_id": artifact.ID(),
			"label":       prediction.Label,
			"probability": prediction.Probability,
		})
	}

	writeJSON(w, http.StatusOK, predictResponse{
		Label:          prediction.Label,
		Probability:    prediction.Probability,
		Recommendation: recommendationFor(prediction.Label),
		ModelName:      artifact.ModelName(),
		ArtifactID:     artifact.ID(),
	})
}

func (a *API) writeSchemaError(w http.ResponseWriter, err error) {
	a.metrics.PredictionError("schema")
	response := errorResponse{Error: err.Error()}
	var schemaErr *ml.SchemaError
	if errors.As(err, &schemaErr) {
		response.Field = schemaErr.Field
	}
	writeJSON(w, http.StatusBadRequest, response)
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	if a.models == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrModelNotFound.Error())
		return
	}
	predictor, err := a.models.Get()
	if err != nil {
		a.handleModelError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictor.Artifact().Metadata())
}

func (a *API) handleTrain(w http.ResponseWriter, r *http.Request) {
	if a.retrainer == nil {
		writeError(w, http.StatusNotImplemented, "online training is not configured")
		return
	}
	// 训练不受客户端断开和服务器写超时影响
	if err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(a.trainTimeout + 10*time.Second)); err != nil {
		a.logger.Debug("write deadline not extended", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.trainTimeout)
	defer cancel()

	artifact, report, err := a.retrainer.Retrain(ctx)
	switch {
	case errors.Is(err, ErrTrainingInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		a.metrics.TrainingRun(false, 0)
		a.logger.Error("training failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.cache.Purge()
	a.metrics.TrainingRun(true, report.Accuracy)
	if a.events != nil {
		a.events.Publish(monitoring.EventTraining, report)
	}
	a.logger.Info("model replaced",
		zap.String("artifact_id", artifact.ID()),
		zap.String("model", report.BestModel),
		zap.Float64("accuracy", report.Accuracy),
	)
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction history is not configured")
		return
	}
	limit := db.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := a.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		a.logger.Error("load predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load predictions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

func (a *API) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "training history is not configured")
		return
	}
	logs, err := a.store.LoadTrainingLog(r.Context())
	if err != nil {
		a.logger.Error("load training log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load training log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": logs})
}
