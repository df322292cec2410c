package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glucorisk"

// Metrics 服务指标，使用独立的 registry，便于测试中多实例并存
type Metrics struct {
	registry *prometheus.Registry

	predictions       *prometheus.CounterVec
	predictionErrors  *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	cacheHits         prometheus.Counter
	trainingRuns      *prometheus.CounterVec
	modelAccuracy     prometheus.Gauge
	validationRejects *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// NewMetrics 创建并注册全部指标
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by label.",
		}, []string{"label"}),
		predictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Rejected or failed prediction requests, by reason.",
		}, []string{"reason"}),
		predictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time spent scoring a single record.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_cache_hits_total",
			Help:      "Predictions answered from the cache.",
		}),
		trainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs, by outcome.",
		}, []string{"outcome"}),
		modelAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_accuracy",
			Help:      "Holdout accuracy of the served model.",
		}),
		validationRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_rejects_total",
			Help:      "Records rejected by range validation, by rule.",
		}, []string{"rule"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions,
		m.predictionErrors,
		m.predictionLatency,
		m.cacheHits,
		m.trainingRuns,
		m.modelAccuracy,
		m.validationRejects,
		m.httpRequests,
	)
	return m
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObservePrediction(label string, elapsed time.Duration) {
	m.predictions.WithLabelValues(label).Inc()
	m.predictionLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) PredictionError(reason string) {
	m.predictionErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheHit() {
	m.cacheHits.Inc()
}

func (m *Metrics) ValidationReject(rule string) {
	m.validationRejects.WithLabelValues(rule).Inc()
}

// TrainingRun 记录训练结果；成功时同步更新模型准确率
func (m *Metrics) TrainingRun(success bool, accuracy float64) {
	if !success {
		m.trainingRuns.WithLabelValues("failure").Inc()
		return
	}
	m.trainingRuns.WithLabelValues("success").Inc()
	m.modelAccuracy.Set(accuracy)
}

func (m *Metrics) SetModelAccuracy(accuracy float64) {
	m.modelAccuracy.Set(accuracy)
}

func (m *Metrics) HTTPRequest(method string, code string) {
	m.httpRequests.WithLabelValues(method, code).Inc()
}
