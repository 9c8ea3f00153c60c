package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"houseprice/artifacts"
	"houseprice/cache"
	"houseprice/config"
	"houseprice/db"
	qhttp "houseprice/http"
	"houseprice/logging"
	"houseprice/monitoring"
	"houseprice/prediction"
	"houseprice/training"
)

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml, or $CONFIG_PATH)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("exiting")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Load artifacts; serving starts without them and predictions fail until retrained
	holder := artifacts.NewHolder(nil)
	if bundle, err := artifacts.Load(cfg.Artifacts.Dir); err != nil {
		logger.Error("artifact load failed, run /retrain to fix", zap.String("dir", cfg.Artifacts.Dir), zap.Error(err))
	} else {
		holder.Swap(bundle)
		logger.Info("artifacts loaded",
			zap.String("version", bundle.Version),
			zap.Int("features", bundle.Schema.Len()),
			zap.Int("locations", len(bundle.Locations)),
		)
	}

	priceCache, closeCache, err := newPriceCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	hub := monitoring.NewHub(logger.Named("events"), cfg.HTTP.AllowedOrigins)
	go hub.Run(ctx)
	metrics := monitoring.NewMetricsCollector()
	alerts := newAlertSystem(cfg, logger.Named("alerts"))

	retrainer := &training.Retrainer{
		Options: training.Options{
			DatasetPath: cfg.Dataset.Path,
			Encoding:    cfg.Dataset.Encoding,
		},
		ArtifactDir: cfg.Artifacts.Dir,
		PlotPath:    cfg.Retrain.PlotPath,
		Holder:      holder,
		Recorder:    store,
		Cache:       priceCache,
		Events:      hub,
		Alerts:      alerts,
		MinR2:       cfg.Alerts.MinR2,
		Logger:      logger.Named("training"),
	}

	if cfg.Artifacts.Watch {
		if err := os.MkdirAll(cfg.Artifacts.Dir, 0o755); err != nil {
			return err
		}
		watcher := artifacts.NewWatcher(cfg.Artifacts.Dir, holder, logger.Named("artifacts"))
		watcher.OnReload(func(b *artifacts.Bundle) {
			if err := priceCache.Purge(ctx); err != nil {
				logger.Warn("failed to purge prediction cache", zap.Error(err))
			}
			hub.Publish(monitoring.BundleReloaded, map[string]string{"version": b.Version})
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	if err := training.StartScheduler(ctx, cfg.Retrain.Schedule, retrainer, logger.Named("scheduler")); err != nil {
		return err
	}

	predictor := prediction.NewService(holder,
		prediction.WithCache(priceCache),
		prediction.WithHistory(store),
		prediction.WithEvents(hub),
		prediction.WithMetrics(metrics),
		prediction.WithLogger(logger.Named("prediction")),
	)

	// 4. Start HTTP server
	server, err := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
		AdminSecret:    cfg.Admin.JWTSecret,
	}, qhttp.Deps{
		Predictor: predictor,
		Retrainer: retrainer,
		History:   store,
		Hub:       hub,
		Metrics:   metrics,
		Alerts:    alerts,
		Logger:    logger.Named("http"),
	})
	if err != nil {
		return err
	}
	if cfg.Admin.JWTSecret == "" {
		logger.Warn("admin.jwt_secret is empty, /retrain is unauthenticated")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// newPriceCache picks redis when configured, the in-process LRU otherwise.
func newPriceCache(cfg *config.Config, logger *zap.Logger) (cache.PriceCache, func(), error) {
	if cfg.Cache.RedisURL != "" {
		client, err := cache.Connect(cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("prediction cache: redis")
		rc := cache.NewRedis(client, cfg.Cache.TTL)
		return rc, func() { rc.Close() }, nil
	}
	if cfg.Cache.Size <= 0 {
		logger.Info("prediction cache disabled")
		return cache.Nop{}, func() {}, nil
	}
	lru, err := cache.NewLRU(cfg.Cache.Size)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("prediction cache: lru", zap.Int("size", cfg.Cache.Size))
	return lru, func() {}, nil
}

func newAlertSystem(cfg *config.Config, logger *zap.Logger) *monitoring.AlertSystem {
	alerts := monitoring.NewAlertSystem(logger)
	channel := monitoring.ChannelConfig{
		MinLevel:   monitoring.AlertLevel(cfg.Alerts.MinLevel),
		MaxPerHour: cfg.Alerts.MaxPerHour,
		Cooldown:   cfg.Alerts.Cooldown,
	}
	if cfg.Alerts.WebhookURL != "" {
		alerts.AddChannel(&monitoring.WebhookNotifier{URL: cfg.Alerts.WebhookURL}, channel)
	}
	if cfg.Alerts.SlackToken != "" {
		alerts.AddChannel(monitoring.NewSlackNotifier(cfg.Alerts.SlackToken, cfg.Alerts.SlackChannel), channel)
	}
	return alerts
}
