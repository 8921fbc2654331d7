package ml

import (
	"context"
	"errors"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PredictionDecimals is the precision of every value Predictor returns.
const PredictionDecimals = 2

type PredictorOptions struct {
	// CacheSize is the number of distinct feature vectors whose rounded
	// prediction is kept. Zero disables the cache.
	CacheSize int
}

// Predictor wraps a loaded model for serving. It is built once at startup
// and never mutated, so it can be shared by all request goroutines.
type Predictor struct {
	model Regressor
	cache *lru.Cache[FeatureVector, float64]
}

func NewPredictor(model Regressor, opts PredictorOptions) (*Predictor, error) {
	if model == nil {
		return nil, errors.New("predictor requires a model")
	}
	if model.NumFeatures() != len(FeatureNames) {
		return nil, ErrFeatureCount
	}
	p := &Predictor{model: model}
	if opts.CacheSize > 0 {
		cache, err := lru.New[FeatureVector, float64](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Predictor) Model() Regressor { return p.model }

func (p *Predictor) Predict(ctx context.Context, features FeatureVector) (float64, error) {
	if err := features.Validate(); err != nil {
		return 0, err
	}
	if p.cache != nil {
		if value, ok := p.cache.Get(features); ok {
			return value, nil
		}
	}

	var (
		raw float64
		err error
	)
	if m, ok := p.model.(ContextRegressor); ok {
		raw, err = m.PredictContext(ctx, features.Slice())
	} else {
		raw, err = p.model.Predict(features.Slice())
	}
	if err != nil {
		return 0, err
	}

	value := RoundTo(raw, PredictionDecimals)
	if p.cache != nil {
		p.cache.Add(features, value)
	}
	return value, nil
}

func RoundTo(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}
