package ml

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFile          = errors.New("dataset file not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrArtifactLoad         = errors.New("artifact load failure")
	ErrArtifactsUnavailable = errors.New("model artifacts unavailable")
	ErrPrediction           = errors.New("prediction failure")
)

// InputError reports a request field whose value could not be converted.
type InputError struct {
	Field string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: cannot parse %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: cannot parse %q", e.Field, e.Value)
}

func (e *InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}
