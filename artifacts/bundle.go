package artifacts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"houseprice/ml"
)

// Bundle is one trained model with everything needed to serve it. A bundle is
// never mutated after it is built or loaded.
type Bundle struct {
	Version    string
	TrainedAt  time.Time
	Model      ml.Regressor
	Scaler     *ml.StandardScaler
	Schema     *ml.Schema
	Locations  ml.LocationSet
	Categories ml.CategoryMap
	Metrics    ml.RegressionMetrics
}

// Validate checks that the parts of the bundle agree with each other.
func (b *Bundle) Validate() error {
	var err error
	if b.Version == "" {
		err = multierr.Append(err, errors.New("bundle has no version"))
	}
	if b.Schema == nil {
		return multierr.Append(err, errors.New("bundle has no schema"))
	}
	err = multierr.Append(err, b.Schema.Validate())

	width := b.Schema.Len()
	if b.Model == nil {
		err = multierr.Append(err, errors.New("bundle has no model"))
	} else {
		if b.Model.Width() != width {
			err = multierr.Append(err, fmt.Errorf("model expects %d features, schema has %d", b.Model.Width(), width))
		}
		if lr, ok := b.Model.(*ml.LinearRegression); ok {
			if !finite(lr.Intercept) || !allFinite(lr.Coefficients) {
				err = multierr.Append(err, errors.New("model has non-finite parameters"))
			}
		}
	}
	if b.Scaler == nil {
		err = multierr.Append(err, errors.New("bundle has no scaler"))
	} else {
		if b.Scaler.Width() != width || len(b.Scaler.Scale) != width {
			err = multierr.Append(err, fmt.Errorf("scaler expects %d features, schema has %d", b.Scaler.Width(), width))
		}
		if !allFinite(b.Scaler.Mean) || !allFinite(b.Scaler.Scale) {
			err = multierr.Append(err, errors.New("scaler has non-finite parameters"))
		}
		for _, s := range b.Scaler.Scale {
			if s == 0 {
				err = multierr.Append(err, errors.New("scaler has a zero scale"))
				break
			}
		}
	}

	seen := make(map[string]struct{}, len(b.Locations))
	for _, loc := range b.Locations {
		if _, dup := seen[loc]; dup {
			err = multierr.Append(err, fmt.Errorf("duplicate location %q", loc))
		}
		seen[loc] = struct{}{}
	}
	return err
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}
