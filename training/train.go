package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"houseprice/artifacts"
	"houseprice/db"
	"houseprice/ml"
	"houseprice/pipeline"
)

const DefaultTestFraction = 0.2

type Options struct {
	DatasetPath  string
	Encoding     string
	TestFraction float64
	Seed         uint64
}

// Report summarizes one training run.
type Report struct {
	Version     string                  `json:"version"`
	Dataset     string                  `json:"dataset"`
	Rows        int                     `json:"rows"`
	DroppedRows int                     `json:"dropped_rows"`
	TrainRows   int                     `json:"train_rows"`
	Features    int                     `json:"features"`
	Metrics     ml.RegressionMetrics    `json:"metrics"`
	Issues      []pipeline.QualityIssue `json:"issues"`
	TrainedAt   time.Time               `json:"trained_at"`
	Duration    time.Duration           `json:"duration"`

	// held-out targets and predictions, kept for diagnostics plots
	TestActual    []float64 `json:"-"`
	TestPredicted []float64 `json:"-"`
}

// TrainingLog is the history row recorded for this run.
func (r *Report) TrainingLog() db.TrainingLog {
	return db.TrainingLog{
		Version:     r.Version,
		Rows:        r.Rows,
		DroppedRows: r.DroppedRows,
		Features:    r.Features,
		R2:          r.Metrics.R2,
		RMSE:        r.Metrics.RMSE,
		MAE:         r.Metrics.MAE,
		Dataset:     r.Dataset,
		TrainedAt:   r.TrainedAt,
	}
}

// Train fits a new bundle from the dataset at opts.DatasetPath. Nothing is
// written to disk.
func Train(ctx context.Context, opts Options) (*artifacts.Bundle, *Report, error) {
	if opts.DatasetPath == "" {
		return nil, nil, errors.New("dataset path is required")
	}
	if opts.TestFraction <= 0 || opts.TestFraction >= 1 {
		opts.TestFraction = DefaultTestFraction
	}
	if opts.Seed == 0 {
		opts.Seed = pipeline.DefaultSeed
	}
	start := time.Now()

	frame, err := pipeline.ReadCSVFile(opts.DatasetPath, pipeline.ReadOptions{Encoding: opts.Encoding})
	if err != nil {
		return nil, nil, err
	}
	issues := pipeline.NewDataCleaner().Clean(frame)

	encoded, err := pipeline.GetDummies(frame)
	if err != nil {
		return nil, nil, err
	}
	schema, err := ml.NewSchema(encoded.Columns, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, nil, fmt.Errorf("dataset does not produce a usable schema: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	scaler := &ml.StandardScaler{}
	if err := scaler.Fit(encoded.Matrix); err != nil {
		return nil, nil, err
	}
	scaled, err := scaler.Transform(encoded.Matrix)
	if err != nil {
		return nil, nil, err
	}

	split := pipeline.TrainTestSplit(len(scaled), opts.TestFraction, opts.Seed)
	model := &ml.LinearRegression{}
	if err := model.Fit(pipeline.Rows(scaled, split.Train), pipeline.Values(frame.Target, split.Train)); err != nil {
		return nil, nil, fmt.Errorf("fit model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	report := &Report{
		Version:     uuid.NewString(),
		Dataset:     opts.DatasetPath,
		Rows:        frame.Rows(),
		DroppedRows: frame.DroppedRows,
		TrainRows:   len(split.Train),
		Features:    schema.Len(),
		Issues:      issues,
		TrainedAt:   time.Now().UTC(),
	}
	if len(split.Test) > 0 {
		testX := pipeline.Rows(scaled, split.Test)
		testY := pipeline.Values(frame.Target, split.Test)
		report.Metrics, report.TestPredicted, err = ml.Evaluate(model, testX, testY)
		if err != nil {
			return nil, nil, fmt.Errorf("evaluate model: %w", err)
		}
		report.TestActual = testY
	}

	bundle := &artifacts.Bundle{
		Version:    report.Version,
		TrainedAt:  report.TrainedAt,
		Model:      model,
		Scaler:     scaler,
		Schema:     schema,
		Locations:  ml.LocationsFromSchema(schema),
		Categories: ml.DeriveCategoryMap(frame.Categories(ml.FieldHouseType), frame.Categories(ml.FieldSize)),
		Metrics:    report.Metrics,
	}
	if err := bundle.Validate(); err != nil {
		return nil, nil, fmt.Errorf("trained bundle is invalid: %w", err)
	}
	report.Duration = time.Since(start)
	return bundle, report, nil
}
