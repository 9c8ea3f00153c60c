package ml

const ModelTypeLinearRegression = "linear_regression"

// Regressor is a fitted model mapping one scaled feature row to a price.
type Regressor interface {
	Fit(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Width() int
}
