package training

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetrainTimeout bounds scheduled runs.
const RetrainTimeout = 10 * time.Minute

// StartScheduler runs r on a standard 5-field cron schedule until ctx is done.
// An empty schedule disables scheduled retraining.
func StartScheduler(ctx context.Context, schedule string, r *Retrainer, logger *zap.Logger) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		logger.Info("scheduled retraining disabled")
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, RetrainTimeout)
		defer cancel()
		if _, err := r.Retrain(runCtx); err != nil {
			if errors.Is(err, ErrRetrainInProgress) {
				logger.Info("scheduled retrain skipped, another run is in progress")
				return
			}
			logger.Error("scheduled retrain failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	logger.Info("scheduled retraining enabled", zap.String("cron", schedule))
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
