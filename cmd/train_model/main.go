package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"glucorisk/db"
	"glucorisk/logging"
	"glucorisk/ml"
	"glucorisk/pipeline"

	"go.uber.org/zap"
)

type options struct {
	dataPath  string
	modelPath string
	dbPath    string
	seed      int64
	testRatio float64
	trees     int
	logLevel  string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("train_model", flag.ContinueOnError)
	fs.StringVar(&opts.dataPath, "data", "data/diabetes.csv", "training dataset (CSV)")
	fs.StringVar(&opts.modelPath, "model_path", ml.DefaultModelPath, "artifact output path")
	fs.StringVar(&opts.dbPath, "db", "", "sqlite database for the training log (optional)")
	fs.Int64Var(&opts.seed, "seed", ml.DefaultSeed, "random seed for the split and the forest")
	fs.Float64Var(&opts.testRatio, "test_ratio", ml.DefaultTestRatio, "holdout fraction")
	fs.IntVar(&opts.trees, "trees", ml.DefaultRandomForestConfig().Trees, "random forest size")
	fs.StringVar(&opts.logLevel, "log_level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.testRatio <= 0 || opts.testRatio >= 1 {
		return opts, fmt.Errorf("test_ratio must be in (0, 1), got %v", opts.testRatio)
	}
	if opts.trees <= 0 {
		return opts, fmt.Errorf("trees must be positive, got %d", opts.trees)
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "training failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	logger, err := logging.New(logging.Config{Level: opts.logLevel, Development: true})
	if err != nil {
		return err
	}
	defer logger.Sync()

	trainer := ml.NewTrainer(ml.TrainerConfig{
		ModelPath:  opts.modelPath,
		TestRatio:  opts.testRatio,
		Seed:       opts.seed,
		Candidates: ml.DefaultCandidates(opts.trees, opts.seed),
	}, logger)

	if opts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
			return err
		}
		store, err := db.InitDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("open training log: %w", err)
		}
		defer store.Close()
		trainer.WithRecorder(store)
	}

	_, report, err := trainer.Run(ctx, pipeline.NewCSVSource(opts.dataPath, logger))
	if err != nil {
		return err
	}
	for _, candidate := range report.Candidates {
		logger.Debug("candidate result", zap.String("model", candidate.Name), zap.Float64("accuracy", candidate.Accuracy))
	}

	fmt.Fprintf(out, "Best model: %s | Accuracy: %.2f | Saved to: %s\n", report.BestModel, report.Accuracy, report.ModelPath)
	return nil
}
