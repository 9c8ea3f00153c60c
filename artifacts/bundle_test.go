package artifacts

import (
	"math"
	"strings"
	"testing"
	"time"

	"houseprice/ml"
)

func testBundle(t *testing.T, version string) *Bundle {
	t.Helper()
	schema, err := ml.NewSchema([]string{
		"total_sqft", "bathroom", "location_Akota", "location_Gotri", "h_type_villa", "size_3 BHK",
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &Bundle{
		Version:    version,
		TrainedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Model:      &ml.LinearRegression{Coefficients: []float64{1, 2, 3, 4, 5, 6}, Intercept: 7},
		Scaler:     &ml.StandardScaler{Mean: make([]float64, 6), Scale: []float64{1, 1, 1, 1, 1, 1}},
		Schema:     schema,
		Locations:  ml.LocationsFromSchema(schema),
		Categories: ml.DefaultCategoryMap(),
		Metrics:    ml.RegressionMetrics{R2: 0.8, RMSE: 10, MAE: 5, Rows: 4},
	}
}

func TestBundleValidate(t *testing.T) {
	if err := testBundle(t, "v1").Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(b *Bundle)
		want   string
	}{
		{"no version", func(b *Bundle) { b.Version = "" }, "no version"},
		{"model width", func(b *Bundle) { b.Model = &ml.LinearRegression{Coefficients: []float64{1}} }, "model expects 1"},
		{"scaler width", func(b *Bundle) { b.Scaler = &ml.StandardScaler{Mean: []float64{0}, Scale: []float64{1}} }, "scaler expects 1"},
		{"nan coefficient", func(b *Bundle) {
			b.Model = &ml.LinearRegression{Coefficients: []float64{1, 2, 3, 4, 5, math.NaN()}}
		}, "non-finite"},
		{"duplicate location", func(b *Bundle) { b.Locations = ml.LocationSet{"Akota", "Akota"} }, "duplicate location"},
		{"no model", func(b *Bundle) { b.Model = nil }, "no model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBundle(t, "v1")
			tt.mutate(b)
			err := b.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder(nil)
	if h.Current() != nil {
		t.Fatalf("expected empty holder")
	}
	first := testBundle(t, "v1")
	if old := h.Swap(first); old != nil {
		t.Fatalf("expected no previous bundle")
	}
	second := testBundle(t, "v2")
	if old := h.Swap(second); old != first {
		t.Fatalf("expected first bundle returned")
	}
	if h.Current().Version != "v2" {
		t.Fatalf("expected v2, got %s", h.Current().Version)
	}
}
