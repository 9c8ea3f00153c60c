package ml

import (
	"encoding/json"
	"fmt"
)

func DecodeModel(modelType string, payload []byte) (Regressor, error) {
	switch modelType {
	case ModelTypeLinearRegression:
		model := &LinearRegression{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func ModelType(model Regressor) string {
	switch model.(type) {
	case *LinearRegression:
		return ModelTypeLinearRegression
	default:
		return ""
	}
}
