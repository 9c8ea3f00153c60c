package prediction

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"houseprice/artifacts"
	"houseprice/cache"
	"houseprice/db"
	"houseprice/ml"
	"houseprice/monitoring"
)

// History persists served predictions.
type History interface {
	SavePrediction(ctx context.Context, p db.Prediction) error
}

// Estimate is the outcome of one prediction request.
type Estimate struct {
	Input         ml.Input `json:"input"`
	Price         float64  `json:"price"`
	Formatted     string   `json:"formatted"`
	BundleVersion string   `json:"bundle_version"`
	Cached        bool     `json:"cached"`
}

// Service answers prediction requests against the serving bundle.
type Service struct {
	holder  *artifacts.Holder
	cache   cache.PriceCache
	history History
	events  monitoring.Publisher
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
}

type Option func(*Service)

func WithCache(c cache.PriceCache) Option { return func(s *Service) { s.cache = c } }
func WithHistory(h History) Option { return func(s *Service) { s.history = h } }
func WithEvents(p monitoring.Publisher) Option { return func(s *Service) { s.events = p } }
func WithMetrics(m *monitoring.MetricsCollector) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(holder *artifacts.Holder, opts ...Option) *Service {
	s := &Service{
		holder:  holder,
		cache:   cache.Nop{},
		events:  monitoring.NopPublisher{},
		metrics: monitoring.NewMetricsCollector(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locations returns the serving bundle's locations, or the static fallback
// list when no bundle is loaded.
func (s *Service) Locations() ml.LocationSet {
	if b := s.holder.Current(); b != nil && len(b.Locations) > 0 {
		return b.Locations
	}
	return ml.DefaultLocations()
}

func (s *Service) Categories() ml.CategoryMap {
	if b := s.holder.Current(); b != nil {
		return b.Categories
	}
	return ml.DefaultCategoryMap()
}

// Bundle returns the serving bundle or nil.
func (s *Service) Bundle() *artifacts.Bundle {
	return s.holder.Current()
}

func (s *Service) Estimate(ctx context.Context, raw ml.RawInput) (*Estimate, error) {
	start := time.Now()
	est, err := s.estimate(ctx, raw)
	s.metrics.ObserveDuration("prediction_seconds", "Prediction latency", time.Since(start))
	s.metrics.IncrCounter("predictions_total", "Prediction requests by outcome", map[string]string{"status": status(err)})
	if err != nil {
		return nil, err
	}
	if est.Cached {
		s.metrics.IncrCounter("prediction_cache_hits_total", "Predictions served from cache", nil)
	}
	return est, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ml.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

func (s *Service) estimate(ctx context.Context, raw ml.RawInput) (*Estimate, error) {
	b := s.holder.Current()
	if b == nil {
		return nil, ml.ErrArtifactsUnavailable
	}

	vec, in, err := ml.EncodeRaw(raw, b.Schema, b.Categories, b.Locations)
	if err != nil {
		return nil, err
	}

	key := cache.Key(b.Version, in)
	if price, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("prediction cache read failed", zap.Error(err))
	} else if ok {
		return &Estimate{Input: in, Price: price, Formatted: ml.FormatPrice(price), BundleVersion: b.Version, Cached: true}, nil
	}

	price, err := ml.Predict(vec, b.Scaler, b.Model)
	if err != nil {
		s.logger.Error("prediction failed", zap.String("version", b.Version), zap.Error(err))
		return nil, err
	}
	est := &Estimate{Input: in, Price: price, Formatted: ml.FormatPrice(price), BundleVersion: b.Version}

	if err := s.cache.Set(ctx, key, price); err != nil {
		s.logger.Warn("prediction cache write failed", zap.Error(err))
	}
	if s.history != nil {
		record := db.Prediction{
			BundleVersion: b.Version,
			Inputs: map[string]any{
				ml.KeyHouseType: in.HouseType,
				ml.KeyLocation:  in.Location,
				ml.KeySize:      in.Size,
				ml.KeyBath:      in.Bath,
				ml.KeyBalcony:   in.Balcony,
				ml.KeyTotalSqft: in.TotalSqft,
			},
			Price:     price,
			Formatted: est.Formatted,
		}
		if err := s.history.SavePrediction(ctx, record); err != nil {
			s.logger.Warn("failed to record prediction", zap.Error(err))
		}
	}
	s.events.Publish(monitoring.PredictionServed, est)
	return est, nil
}
