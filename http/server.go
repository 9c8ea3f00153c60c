// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"houseprice/monitoring"
	"houseprice/prediction"
)

const maxBodyBytes = 1 << 20

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	AdminSecret    string
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		Timeout:        15 * time.Second,
		AllowedOrigins: []string{"*"},
		RateLimit:      20,
		RateBurst:      40,
	}
}

// Deps 路由依赖
type Deps struct {
	Predictor *prediction.Service
	Retrainer Retrainer
	History   HistoryReader
	Hub       *monitoring.Hub
	Metrics   *monitoring.MetricsCollector
	Alerts    *monitoring.AlertSystem
	Logger    *zap.Logger
}

// NewRouter 注册所有路由
func NewRouter(config ServerConfig, deps Deps) (http.Handler, error) {
	h, err := newHandler(deps)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(h.logger),
		RequestIDMiddleware,
		LoggerMiddleware(h.logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(maxBodyBytes),
	)

	r.Get("/", h.handleIndex)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(NewRateLimiter(config.RateLimit, config.RateBurst)))
		r.Post("/predict_api", h.handlePredict)
		r.Post("/api/v1/predict", h.handlePredict)
	})

	r.Group(func(r chi.Router) {
		r.Use(AdminAuthMiddleware(config.AdminSecret))
		r.Get("/retrain", h.handleRetrain)
		r.Post("/retrain", h.handleRetrain)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/locations", h.handleLocations)
		r.Get("/model", h.handleModel)
		r.Get("/training-log", h.handleTrainingLog)
		r.Get("/training-log/{version}/issues", h.handleQualityIssues)
		r.Get("/predictions", h.handlePredictions)
		r.Get("/metrics", h.handleMetrics)
		r.Get("/alerts", h.handleAlerts)
		if deps.Hub != nil {
			r.Get("/ws/events", deps.Hub.HandleWebSocket)
		}
	})
	return r, nil
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	handler, err := NewRouter(config, deps)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
