package training

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"houseprice/artifacts"
	"houseprice/cache"
	"houseprice/db"
	"houseprice/monitoring"
	"houseprice/pipeline"
)

var ErrRetrainInProgress = errors.New("retrain already in progress")

// RunRecorder persists training history.
type RunRecorder interface {
	LogTraining(ctx context.Context, entry db.TrainingLog, issues []pipeline.QualityIssue) error
}

// AlertSink receives operational alerts about training runs.
type AlertSink interface {
	SendAlert(ctx context.Context, alert *monitoring.Alert) error
	ResolveSource(source string) int
}

const (
	alertSourceTraining = "training"
	alertSourceQuality  = "model_quality"
)

// Retrainer trains, persists and publishes a new bundle. At most one retrain
// runs at a time.
type Retrainer struct {
	mu sync.Mutex

	Options     Options
	ArtifactDir string
	PlotPath    string
	Holder      *artifacts.Holder
	Recorder    RunRecorder
	Cache       cache.PriceCache
	Events      monitoring.Publisher
	Alerts      AlertSink
	// MinR2 raises a warning when the held-out R² falls below it; 0 disables the check.
	MinR2  float64
	Logger *zap.Logger
}

func (r *Retrainer) Retrain(ctx context.Context) (*Report, error) {
	if !r.mu.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer r.mu.Unlock()

	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := r.Events
	if events == nil {
		events = monitoring.NopPublisher{}
	}

	events.Publish(monitoring.TrainingStarted, map[string]string{"dataset": r.Options.DatasetPath})
	logger.Info("training started", zap.String("dataset", r.Options.DatasetPath))

	bundle, report, err := Train(ctx, r.Options)
	if err == nil {
		err = artifacts.Save(r.ArtifactDir, bundle)
	}
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		events.Publish(monitoring.TrainingFailed, map[string]string{"error": err.Error()})
		r.alert(ctx, &monitoring.Alert{
			Level:    monitoring.Error,
			Title:    "Model retrain failed",
			Message:  err.Error(),
			Source:   alertSourceTraining,
			Metadata: map[string]any{"dataset": r.Options.DatasetPath},
		})
		return nil, err
	}

	if r.Holder != nil {
		r.Holder.Swap(bundle)
	}
	if r.Cache != nil {
		if err := r.Cache.Purge(ctx); err != nil {
			logger.Warn("failed to purge prediction cache", zap.Error(err))
		}
	}
	if r.Recorder != nil {
		if err := r.Recorder.LogTraining(ctx, report.TrainingLog(), report.Issues); err != nil {
			logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	if r.PlotPath != "" && len(report.TestActual) > 0 {
		if err := SavePredictionPlot(r.PlotPath, report.TestActual, report.TestPredicted); err != nil {
			logger.Warn("failed to render prediction plot", zap.Error(err))
		}
	}

	logger.Info("training completed",
		zap.String("version", report.Version),
		zap.Int("rows", report.Rows),
		zap.Int("dropped_rows", report.DroppedRows),
		zap.Int("features", report.Features),
		zap.Float64("r2", report.Metrics.R2),
		zap.Float64("rmse", report.Metrics.RMSE),
		zap.Float64("mae", report.Metrics.MAE),
		zap.Duration("duration", report.Duration),
	)
	events.Publish(monitoring.TrainingCompleted, report)

	if r.Alerts != nil {
		r.Alerts.ResolveSource(alertSourceTraining)
		r.Alerts.ResolveSource(alertSourceQuality)
	}
	if r.MinR2 > 0 && report.Metrics.Rows > 0 && report.Metrics.R2 < r.MinR2 {
		r.alert(ctx, &monitoring.Alert{
			Level:     monitoring.Warning,
			Title:     "Model quality below threshold",
			Message:   fmt.Sprintf("bundle %s scored R² %.4f on %d held-out rows", report.Version, report.Metrics.R2, report.Metrics.Rows),
			Source:    alertSourceQuality,
			Value:     report.Metrics.R2,
			Threshold: r.MinR2,
			Metadata:  map[string]any{"version": report.Version},
		})
	}
	return report, nil
}

func (r *Retrainer) alert(ctx context.Context, a *monitoring.Alert) {
	if r.Alerts == nil {
		return
	}
	// 告警渠道失败只记录日志
	_ = r.Alerts.SendAlert(ctx, a)
}
