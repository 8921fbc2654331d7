package ml

import (
	"context"
	"errors"
)

var (
	ErrNotTrained      = errors.New("model not trained")
	ErrEmptyDataset    = errors.New("features or targets empty")
	ErrFeatureCount    = errors.New("unexpected feature count")
	ErrInvalidArtifact = errors.New("invalid model artifact")
)

// Regressor maps a feature row to a continuous prediction. Implementations
// must be safe for concurrent Predict calls once trained.
type Regressor interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
	ModelType() string
}

// TrainableRegressor is a Regressor that can be fitted in place.
type TrainableRegressor interface {
	Regressor
	Train(features [][]float64, targets []float64) error
}

// ContextRegressor is implemented by models whose inference is long enough
// to be worth cancelling.
type ContextRegressor interface {
	PredictContext(ctx context.Context, features []float64) (float64, error)
}
