package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearRegression is an ordinary least squares model with an intercept.
type LinearRegression struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Fit solves the centered least squares problem with a thin SVD. Rank-deficient
// designs get the minimum-norm solution.
func (lr *LinearRegression) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	rows, cols := len(features), len(features[0])
	if cols == 0 {
		return errors.New("features have no columns")
	}

	xMean := make([]float64, cols)
	for i, row := range features {
		if len(row) != cols {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), cols)
		}
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(rows)
	}
	yMean := 0.0
	for _, y := range targets {
		yMean += y
	}
	yMean /= float64(rows)

	a := mat.NewDense(rows, cols, nil)
	b := mat.NewVecDense(rows, nil)
	for i, row := range features {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		b.SetVec(i, targets[i]-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("svd factorization failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(rows, cols))

	coef := make([]float64, cols)
	if rank := svd.Rank(rcond); rank > 0 {
		var x mat.VecDense
		svd.SolveVecTo(&x, b, rank)
		for j := range coef {
			coef[j] = x.AtVec(j)
		}
	}

	intercept := yMean
	for j, c := range coef {
		intercept -= c * xMean[j]
	}
	lr.Coefficients = coef
	lr.Intercept = intercept
	return nil
}

func (lr *LinearRegression) Predict(features []float64) (float64, error) {
	if len(lr.Coefficients) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != len(lr.Coefficients) {
		return 0, fmt.Errorf("got %d features, model expects %d", len(features), len(lr.Coefficients))
	}
	sum := lr.Intercept
	for j, v := range features {
		sum += lr.Coefficients[j] * v
	}
	return sum, nil
}

func (lr *LinearRegression) Width() int {
	return len(lr.Coefficients)
}
