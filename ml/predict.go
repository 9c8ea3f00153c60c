package ml

import (
	"fmt"
	"math"
)

// Predict scales an encoded row and runs it through the model.
func Predict(vec FeatureVector, scaler *StandardScaler, model Regressor) (float64, error) {
	if scaler == nil || model == nil {
		return 0, ErrArtifactsUnavailable
	}
	scaled, err := scaler.TransformRow(vec)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	price, err := model.Predict(scaled)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrediction, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: model produced a non-finite price", ErrPrediction)
	}
	return price, nil
}
