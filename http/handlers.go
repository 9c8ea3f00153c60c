package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"houseprice/db"
	"houseprice/ml"
	"houseprice/monitoring"
	"houseprice/pipeline"
	"houseprice/prediction"
	"houseprice/training"
)

//go:embed templates/index.html
var templateFS embed.FS

const (
	defaultPredictionLimit = 50
	maxPredictionLimit     = 500
)

// Retrainer runs one admin retrain.
type Retrainer interface {
	Retrain(ctx context.Context) (*training.Report, error)
}

// HistoryReader exposes recorded runs and predictions.
type HistoryReader interface {
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
	QualityIssues(ctx context.Context, version string) ([]pipeline.QualityIssue, error)
	RecentPredictions(ctx context.Context, limit int) ([]db.Prediction, error)
}

// Handler HTTP处理器集合
type Handler struct {
	predictor *prediction.Service
	retrainer Retrainer
	history   HistoryReader
	hub       *monitoring.Hub
	metrics   *monitoring.MetricsCollector
	alerts    *monitoring.AlertSystem
	logger    *zap.Logger
	page      *template.Template
}

type pageData struct {
	HouseTypes     []ml.Option
	Sizes          []ml.Option
	Locations      ml.LocationSet
	Input          ml.Input
	PredictionText string
	Error          string
}

func newHandler(deps Deps) (*Handler, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	return &Handler{
		predictor: deps.Predictor,
		retrainer: deps.Retrainer,
		history:   deps.History,
		hub:       deps.Hub,
		metrics:   metrics,
		alerts:    deps.Alerts,
		logger:    logger,
		page:      page,
	}, nil
}

// handleIndex 渲染估价表单
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	locations := h.predictor.Locations()
	h.render(w, http.StatusOK, pageData{Input: ml.DefaultInput(locations)})
}

func (h *Handler) render(w http.ResponseWriter, status int, data pageData) {
	cats := h.predictor.Categories()
	data.HouseTypes = cats.HouseTypeOptions()
	data.Sizes = cats.SizeOptions()
	data.Locations = h.predictor.Locations()

	var buf strings.Builder
	if err := h.page.Execute(&buf, data); err != nil {
		h.logger.Error("render page failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(buf.String()))
}

// handlePredict 表单或JSON估价
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	raw, err := readPredictInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	est, err := h.predictor.Estimate(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ml.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Invalid input: "+err.Error())
			return
		}
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Prediction error: "+opaque(err))
		return
	}

	if wantsHTML(r) {
		h.render(w, http.StatusOK, pageData{
			Input:          est.Input,
			PredictionText: "Estimated House Price: " + est.Formatted,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prediction": est.Formatted})
}

// opaque hides schema and model details from callers.
func opaque(err error) string {
	if errors.Is(err, ml.ErrArtifactsUnavailable) {
		return ml.ErrArtifactsUnavailable.Error()
	}
	return ml.ErrPrediction.Error()
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// readPredictInput collects the known prediction fields from a JSON or form
// body. Absent fields are left out so the encoder applies its defaults.
func readPredictInput(r *http.Request) (ml.RawInput, error) {
	raw := ml.RawInput{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			return nil, errors.New("malformed JSON body")
		}
		for _, key := range predictKeys {
			v, ok := body[key]
			if !ok || v == nil {
				continue
			}
			switch val := v.(type) {
			case string:
				raw[key] = val
			case json.Number:
				raw[key] = val.String()
			case bool:
				raw[key] = strconv.FormatBool(val)
			default:
				return nil, &ml.InputError{Field: key, Value: "", Err: errors.New("unsupported value type")}
			}
		}
		return raw, nil
	}

	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, errors.New("malformed form body")
	}
	// 只读取请求体字段，URL查询参数不参与估价
	for _, key := range predictKeys {
		if values, ok := r.PostForm[key]; ok && len(values) > 0 {
			raw[key] = values[0]
		}
	}
	return raw, nil
}

var predictKeys = []string{ml.KeyHouseType, ml.KeyLocation, ml.KeySize, ml.KeyBath, ml.KeyBalcony, ml.KeyTotalSqft}

// handleRetrain 管理员重新训练
func (h *Handler) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if h.retrainer == nil {
		writeError(w, http.StatusServiceUnavailable, "retraining is not configured")
		return
	}
	// 客户端断开不应中断训练
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), training.RetrainTimeout)
	defer cancel()

	report, err := h.retrainer.Retrain(ctx)
	switch {
	case errors.Is(err, training.ErrRetrainInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.metrics.IncrCounter("retrains_total", "Admin retrains by outcome", map[string]string{"status": "error"})
		writeError(w, http.StatusInternalServerError, "Retrain error: "+err.Error())
		return
	}
	h.metrics.IncrCounter("retrains_total", "Admin retrains by outcome", map[string]string{"status": "ok"})
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":       "ok",
		"model_loaded": false,
		"uptime":       h.metrics.GetUptime().Round(time.Second).String(),
	}
	if b := h.predictor.Bundle(); b != nil {
		resp["model_loaded"] = true
		resp["version"] = b.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	cats := h.predictor.Categories()
	writeJSON(w, http.StatusOK, map[string]any{
		"locations":   h.predictor.Locations(),
		"house_types": cats.HouseTypeOptions(),
		"sizes":       cats.SizeOptions(),
	})
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	b := h.predictor.Bundle()
	if b == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrArtifactsUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    b.Version,
		"trained_at": b.TrainedAt,
		"model_type": ml.ModelType(b.Model),
		"features":   b.Schema.Len(),
		"locations":  len(b.Locations),
		"metrics":    b.Metrics,
	})
}

func (h *Handler) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusOK, []db.TrainingLog{})
		return
	}
	logs, err := h.history.LoadTrainingLog(r.Context())
	if err != nil {
		h.logger.Error("load training log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load training log")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleQualityIssues(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if h.history == nil {
		writeJSON(w, http.StatusOK, []pipeline.QualityIssue{})
		return
	}
	issues, err := h.history.QualityIssues(r.Context(), version)
	if err != nil {
		h.logger.Error("load quality issues failed", zap.String("version", version), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load quality issues")
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := defaultPredictionLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, maxPredictionLimit)
	}
	if h.history == nil {
		writeJSON(w, http.StatusOK, []db.Prediction{})
		return
	}
	preds, err := h.history.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("load predictions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load predictions")
		return
	}
	writeJSON(w, http.StatusOK, preds)
}

// handleMetrics Prometheus文本格式
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.hub != nil {
		h.metrics.SetGauge("event_clients", "Connected event stream clients", float64(h.hub.ClientCount()))
	}
	loaded := 0.0
	if h.predictor.Bundle() != nil {
		loaded = 1
	}
	h.metrics.SetGauge("model_loaded", "Whether a model bundle is serving", loaded)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.Write([]byte(h.metrics.ExportPrometheus()))
}

// handleAlerts 当前未解决的告警
func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if h.alerts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": []monitoring.Alert{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": h.alerts.GetActiveAlerts(),
		"stats":  h.alerts.GetStats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
