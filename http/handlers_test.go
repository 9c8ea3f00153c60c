package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"houseprice/artifacts"
	"houseprice/db"
	"houseprice/ml"
	"houseprice/monitoring"
	"houseprice/pipeline"
	"houseprice/prediction"
	"houseprice/training"
)

func testBundle(t *testing.T) *artifacts.Bundle {
	t.Helper()
	schema, err := ml.NewSchema([]string{
		"total_sqft", "bathroom", "balcony", "location_Akota", "h_type_villa", "size_3 BHK",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &artifacts.Bundle{
		Version: "v1",
		Model: &ml.LinearRegression{
			Coefficients: []float64{4000, 100000, 50000, 500000, 2000000, 300000},
			Intercept:    1010000,
		},
		Scaler:     &ml.StandardScaler{Mean: make([]float64, 6), Scale: []float64{1, 1, 1, 1, 1, 1}},
		Schema:     schema,
		Locations:  ml.LocationsFromSchema(schema),
		Categories: ml.DefaultCategoryMap(),
	}
}

type fakeRetrainer struct {
	report *training.Report
	err    error
	calls  int
}

func (f *fakeRetrainer) Retrain(context.Context) (*training.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeHistory struct {
	predictions []db.Prediction
	limit       int
}

func (f *fakeHistory) LoadTrainingLog(context.Context) ([]db.TrainingLog, error) {
	return []db.TrainingLog{{Version: "v1", Rows: 58}}, nil
}

func (f *fakeHistory) QualityIssues(_ context.Context, version string) ([]pipeline.QualityIssue, error) {
	return []pipeline.QualityIssue{{Type: "missing_values", Column: "yr_built"}}, nil
}

func (f *fakeHistory) RecentPredictions(_ context.Context, limit int) ([]db.Prediction, error) {
	f.limit = limit
	return f.predictions, nil
}

func newTestRouter(t *testing.T, bundle *artifacts.Bundle, config ServerConfig, deps Deps) http.Handler {
	t.Helper()
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetricsCollector()
	}
	if deps.Predictor == nil {
		deps.Predictor = prediction.NewService(artifacts.NewHolder(bundle), prediction.WithMetrics(deps.Metrics))
	}
	if config.AllowedOrigins == nil {
		config.AllowedOrigins = []string{"*"}
	}
	router, err := NewRouter(config, deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return router
}

func postForm(router http.Handler, path string, form url.Values, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthHandler(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	payload := decodeBody(t, rr)
	if payload["status"] != "ok" || payload["model_loaded"] != true || payload["version"] != "v1" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestPredictAPI(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{})
	form := url.Values{"location": {"Akota"}, "total_sqft": {"1000"}, "bath": {"2"}, "balcony": {"1"}}

	for _, path := range []string{"/predict_api", "/api/v1/predict"} {
		t.Run(path, func(t *testing.T) {
			rr := postForm(router, path, form, "application/json")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			payload := decodeBody(t, rr)
			if payload["prediction"] != "₹58.0 lakhs" {
				t.Fatalf("unexpected prediction: %v", payload)
			}
		})
	}

	t.Run("multipart", func(t *testing.T) {
		contentType, body := multipartBody(t, form)
		req := httptest.NewRequest(http.MethodPost, "/predict_api", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := decodeBody(t, rr)["prediction"]; got != "₹58.0 lakhs" {
			t.Fatalf("unexpected prediction: %v", got)
		}
	})

	t.Run("query ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predict_api?total_sqft=abc&location=Waghodia+Road", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := decodeBody(t, rr)["prediction"]; got != "₹58.0 lakhs" {
			t.Fatalf("unexpected prediction: %v", got)
		}
	})
}

func multipartBody(t *testing.T, fields url.Values) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return mw.FormDataContentType(), buf.String()
}

func TestPredictJSONBody(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{})
	body := `{"h_type": 5, "location": "Akota", "size": "3", "bath": 2, "balcony": 1, "total_sqft": 1000}`

	req := httptest.NewRequest(http.MethodPost, "/predict_api", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	// 5,760,000 + villa 2,000,000 + 3 BHK 300,000
	if got := decodeBody(t, rr)["prediction"]; got != "₹81.0 lakhs" {
		t.Fatalf("unexpected prediction: %v", got)
	}
}

func TestPredictBrowser(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{})
	form := url.Values{"location": {"Akota"}, "total_sqft": {"1000"}, "bath": {"2"}, "balcony": {"1"}}

	rr := postForm(router, "/predict_api", form, "text/html,application/xhtml+xml")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected html response, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "Estimated House Price: ₹58.0 lakhs") {
		t.Fatalf("prediction text missing from page")
	}
}

func TestPredictInvalidInput(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{})
	multipartType, multipartArea := multipartBody(t, url.Values{"total_sqft": {"abc"}, "location": {"Akota"}})

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"non-numeric area", "application/x-www-form-urlencoded", "total_sqft=abc"},
		{"multipart non-numeric area", multipartType, multipartArea},
		{"truncated multipart", "multipart/form-data; boundary=xyz", "--xyz\r\nContent-Disposition: form-data; name=\"bath\"\r\n\r\n2"},
		{"empty bath", "application/x-www-form-urlencoded", "bath="},
		{"non-integer house type", "application/x-www-form-urlencoded", "h_type=villa"},
		{"malformed json", "application/json", `{"total_sqft":`},
		{"json object value", "application/json", `{"size": {"n": 2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/predict_api", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			msg, _ := decodeBody(t, rr)["error"].(string)
			if !strings.HasPrefix(msg, "Invalid input: ") {
				t.Fatalf("unexpected error message: %q", msg)
			}
		})
	}
}

func TestPredictWithoutArtifacts(t *testing.T) {
	router := newTestRouter(t, nil, ServerConfig{}, Deps{})

	rr := postForm(router, "/predict_api", url.Values{}, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if msg := decodeBody(t, rr)["error"]; msg != "Prediction error: model artifacts unavailable" {
		t.Fatalf("unexpected error message: %v", msg)
	}
}

func TestIndexWithoutArtifactsUsesFallback(t *testing.T) {
	router := newTestRouter(t, nil, ServerConfig{}, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Waghodia Road", "pent house", "5 BHK", `value="1200"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("page is missing %q", want)
		}
	}
}

func TestRetrain(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		want   int
	}{
		{"get", http.MethodGet, nil, http.StatusOK},
		{"post", http.MethodPost, nil, http.StatusOK},
		{"in progress", http.MethodPost, training.ErrRetrainInProgress, http.StatusConflict},
		{"missing dataset", http.MethodGet, ml.ErrMissingFile, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retrainer := &fakeRetrainer{report: &training.Report{Version: "v2", Rows: 58}, err: tt.err}
			router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{Retrainer: retrainer})

			req := httptest.NewRequest(tt.method, "/retrain", nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			if retrainer.calls != 1 {
				t.Fatalf("expected one retrain call, got %d", retrainer.calls)
			}
		})
	}
}

func TestRetrainRequiresAdminToken(t *testing.T) {
	const secret = "test-secret"
	retrainer := &fakeRetrainer{report: &training.Report{Version: "v2"}}
	router := newTestRouter(t, testBundle(t), ServerConfig{AdminSecret: secret}, Deps{Retrainer: retrainer})

	req := httptest.NewRequest(http.MethodPost, "/retrain", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	bad, err := IssueAdminToken("other-secret", "ops", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/retrain", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with foreign token, got %d", rr.Code)
	}

	token, err := IssueAdminToken(secret, "ops", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/retrain", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rr.Code, rr.Body.String())
	}
	if retrainer.calls != 1 {
		t.Fatalf("expected exactly one authorized retrain, got %d", retrainer.calls)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	history := &fakeHistory{predictions: []db.Prediction{{BundleVersion: "v1", Price: 5_760_000, Formatted: "₹58.0 lakhs"}}}
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{History: history})

	tests := []struct {
		path string
		want int
	}{
		{"/api/training-log", http.StatusOK},
		{"/api/training-log/v1/issues", http.StatusOK},
		{"/api/predictions", http.StatusOK},
		{"/api/predictions?limit=5000", http.StatusOK},
		{"/api/predictions?limit=abc", http.StatusBadRequest},
		{"/api/predictions?limit=0", http.StatusBadRequest},
		{"/api/model", http.StatusOK},
		{"/api/locations", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
	if history.limit != maxPredictionLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxPredictionLimit, history.limit)
	}
}

func TestModelWithoutArtifacts(t *testing.T) {
	router := newTestRouter(t, nil, ServerConfig{}, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/model", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := monitoring.NewMetricsCollector()
	router := newTestRouter(t, testBundle(t), ServerConfig{}, Deps{Metrics: metrics})

	postForm(router, "/predict_api", url.Values{"total_sqft": {"abc"}}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`predictions_total{status="invalid"} 1`, "model_loaded 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{RateLimit: 0.001, RateBurst: 1}, Deps{})
	form := url.Values{"location": {"Akota"}}

	if rr := postForm(router, "/predict_api", form, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := postForm(router, "/predict_api", form, ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := newRateLimiter(0.001, 1, 2)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/predict_api", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	for _, addr := range []string{"10.0.0.1:1000", "10.0.0.2:1000", "10.0.0.3:1000"} {
		if code := hit(addr); code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", addr, code)
		}
	}
	if n := rl.Clients(); n != 2 {
		t.Fatalf("expected 2 tracked clients, got %d", n)
	}
	if code := hit("10.0.0.3:2000"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for a tracked client, got %d", code)
	}
	// 10.0.0.1 was evicted and starts with a fresh bucket
	if code := hit("10.0.0.1:2000"); code != http.StatusOK {
		t.Fatalf("expected 200 for an evicted client, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, testBundle(t), ServerConfig{AllowedOrigins: []string{"https://example.com"}}, Deps{})

	req := httptest.NewRequest(http.MethodOptions, "/predict_api", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
