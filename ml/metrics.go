package ml

import (
	"errors"
	"fmt"
	"math"
)

// RegressionMetrics summarizes fit quality on held-out rows.
type RegressionMetrics struct {
	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
	Rows int     `json:"rows"`
}

func MSE(yTrue, yPred []float64) float64 {
	s := 0.0
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

func MAE(yTrue, yPred []float64) float64 {
	s := 0.0
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / float64(len(yTrue))
}

func RMSE(yTrue, yPred []float64) float64 { return math.Sqrt(MSE(yTrue, yPred)) }

// R2 is the coefficient of determination. A constant target yields 0.
func R2(yTrue, yPred []float64) float64 {
	m := 0.0
	for _, v := range yTrue {
		m += v
	}
	m /= float64(len(yTrue))
	ssTot, ssRes := 0.0, 0.0
	for i := range yTrue {
		d := yTrue[i] - m
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// Evaluate scores an already scaled feature matrix against its targets.
func Evaluate(model Regressor, features [][]float64, targets []float64) (RegressionMetrics, []float64, error) {
	if len(features) == 0 {
		return RegressionMetrics{}, nil, errors.New("no rows to evaluate")
	}
	if len(features) != len(targets) {
		return RegressionMetrics{}, nil, errors.New("features and targets size mismatch")
	}
	preds := make([]float64, len(features))
	for i, row := range features {
		p, err := model.Predict(row)
		if err != nil {
			return RegressionMetrics{}, nil, fmt.Errorf("row %d: %w", i, err)
		}
		preds[i] = p
	}
	return RegressionMetrics{
		R2:   R2(targets, preds),
		RMSE: RMSE(targets, preds),
		MAE:  MAE(targets, preds),
		Rows: len(targets),
	}, preds, nil
}
