package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"glucorisk/db"
	qhttp "glucorisk/http"
	"glucorisk/logging"
	"glucorisk/ml"
	"glucorisk/monitoring"
	"glucorisk/pipeline"

	"go.uber.org/zap"
)

func main() {
	// 从 cmd/ 下运行时也能找到根目录的配置
	configPath := "config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = filepath.Join("..", "config.yaml")
	}

	// 1. 加载配置
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.resolvePaths(configPath)

	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// 2. 初始化数据库
	if err := os.MkdirAll(filepath.Dir(config.Database.Path), 0o755); err != nil {
		logger.Fatal("failed to create database directory", zap.Error(err))
	}
	store, err := db.InitDB(config.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", config.Database.Path), zap.Error(err))
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 3. 组装服务
	svc, err := initializeServices(config, store, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", zap.Error(err))
	}
	go svc.hub.Run()
	defer svc.hub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.watcher.Run(ctx)

	// 4. 启动HTTP服务
	server := qhttp.NewServer(config.HTTP, svc.api)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 5. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

// services 由 main 启动的组件
type services struct {
	api     *qhttp.API
	hub     *monitoring.Hub
	watcher *ml.ModelWatcher
	models  *ml.ModelStore
	cache   *qhttp.PredictionCache
}

func initializeServices(config *Config, store *db.Store, logger *zap.Logger) (*services, error) {
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger.Named("events"), config.HTTP.AllowedOrigins)

	cache, err := qhttp.NewPredictionCache(config.Cache.Size)
	if err != nil {
		return nil, err
	}

	models := ml.NewModelStore(config.Model.Path)
	if predictor, err := models.Get(); err == nil {
		artifact := predictor.Artifact()
		metrics.SetModelAccuracy(artifact.Accuracy())
		hub.Publish(monitoring.EventModelLoaded, artifact.Metadata())
		logger.Info("model loaded",
			zap.String("path", models.Path()),
			zap.String("artifact_id", artifact.ID()),
			zap.String("model", artifact.ModelName()),
			zap.Float64("accuracy", artifact.Accuracy()),
		)
	} else if errors.Is(err, ml.ErrModelNotFound) {
		logger.Warn("no trained model yet, predictions return 503 until training runs", zap.String("path", models.Path()))
	} else {
		logger.Error("model could not be loaded", zap.String("path", models.Path()), zap.Error(err))
	}

	// 外部重新训练（train_model）覆盖模型文件后热加载
	watcher, err := ml.NewModelWatcher(models, func(artifact *ml.Artifact) {
		cache.Purge()
		metrics.SetModelAccuracy(artifact.Accuracy())
		hub.Publish(monitoring.EventModelLoaded, artifact.Metadata())
	}, logger.Named("watcher"))
	if err != nil {
		return nil, err
	}

	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath:  config.Model.Path,
		TestRatio:  config.Training.TestRatio,
		Seed:       config.Training.Seed,
		Candidates: ml.DefaultCandidates(config.Training.Trees, config.Training.Seed),
	}, logger.Named("trainer")).WithRecorder(store)
	source := pipeline.NewCSVSource(config.Dataset.Path, logger.Named("ingestion"))

	api := qhttp.NewAPI(qhttp.Dependencies{
		Models:       models,
		Store:        store,
		Events:       hub,
		Metrics:      metrics,
		Validator:    pipeline.NewRecordValidator(),
		Cache:        cache,
		Retrainer:    qhttp.NewRetrainer(trainer, source, models),
		Logger:       logger.Named("http"),
		TrainTimeout: config.Training.Timeout,
	})
	return &services{api: api, hub: hub, watcher: watcher, models: models, cache: cache}, nil
}
