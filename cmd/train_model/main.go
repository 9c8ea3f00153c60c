package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"houseprice/artifacts"
	"houseprice/config"
	"houseprice/db"
	"houseprice/logging"
	"houseprice/training"
)

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml, or $CONFIG_PATH)")
	dataPath := flag.String("data", "", "training CSV (overrides dataset.path)")
	outDir := flag.String("out", "", "artifact output directory (overrides artifacts.dir)")
	encoding := flag.String("encoding", "", "CSV character encoding, e.g. windows-1252 (overrides dataset.encoding)")
	plotPath := flag.String("plot", "", "write a predicted-vs-actual PNG for the held-out split")
	testRatio := flag.Float64("test_ratio", training.DefaultTestFraction, "held-out fraction")
	seed := flag.Uint64("seed", 42, "split seed")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dataPath != "" {
		cfg.Dataset.Path = *dataPath
	}
	if *outDir != "" {
		cfg.Artifacts.Dir = *outDir
	}
	if *encoding != "" {
		cfg.Dataset.Encoding = *encoding
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bundle, report, err := training.Train(ctx, training.Options{
		DatasetPath:  cfg.Dataset.Path,
		Encoding:     cfg.Dataset.Encoding,
		TestFraction: *testRatio,
		Seed:         *seed,
	})
	if err != nil {
		logger.Fatal("failed to train model", zap.String("dataset", cfg.Dataset.Path), zap.Error(err))
	}

	if err := artifacts.Save(cfg.Artifacts.Dir, bundle); err != nil {
		logger.Fatal("failed to save artifacts", zap.String("dir", cfg.Artifacts.Dir), zap.Error(err))
	}

	if err := record(ctx, cfg.Database.Path, report); err != nil {
		logger.Warn("failed to record training run", zap.String("db", cfg.Database.Path), zap.Error(err))
	}

	if *plotPath != "" {
		if err := training.SavePredictionPlot(*plotPath, report.TestActual, report.TestPredicted); err != nil {
			logger.Warn("failed to render prediction plot", zap.Error(err))
		}
	}

	for _, issue := range report.Issues {
		logger.Info("data quality issue",
			zap.String("type", issue.Type),
			zap.String("severity", issue.Severity),
			zap.String("column", issue.Column),
			zap.String("message", issue.Message),
		)
	}
	logger.Info("training completed",
		zap.String("version", report.Version),
		zap.Int("rows", report.Rows),
		zap.Int("dropped_rows", report.DroppedRows),
		zap.Int("train_rows", report.TrainRows),
		zap.Int("features", report.Features),
		zap.Float64("r2", report.Metrics.R2),
		zap.Float64("rmse", report.Metrics.RMSE),
		zap.Float64("mae", report.Metrics.MAE),
		zap.Duration("duration", report.Duration),
	)

	fmt.Printf("Retrained: %d features, artifacts saved to %s\n", report.Features, cfg.Artifacts.Dir)
	if cfg.Artifacts.Watch {
		fmt.Println("A running server watching this directory will pick up the new bundle.")
	}
}

func record(ctx context.Context, path string, report *training.Report) error {
	if path == "" {
		return nil
	}
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.LogTraining(ctx, report.TrainingLog(), report.Issues)
}
