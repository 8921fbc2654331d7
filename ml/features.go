package ml

import (
	"fmt"
	"math"
)

// FeatureNames lists the model inputs in the order every row is laid out.
var FeatureNames = []string{"progress", "daysRemaining", "daysWorked", "avgRating"}

type FeatureVector struct {
	Progress      float64 `json:"progress"`
	DaysRemaining float64 `json:"daysRemaining"`
	DaysWorked    float64 `json:"daysWorked"`
	AvgRating     float64 `json:"avgRating"`
}

func (f FeatureVector) Slice() []float64 {
	return []float64{f.Progress, f.DaysRemaining, f.DaysWorked, f.AvgRating}
}

func FeatureVectorFromSlice(values []float64) (FeatureVector, error) {
	if len(values) != len(FeatureNames) {
		return FeatureVector{}, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(values), len(FeatureNames))
	}
	return FeatureVector{
		Progress:      values[0],
		DaysRemaining: values[1],
		DaysWorked:    values[2],
		AvgRating:     values[3],
	}, nil
}

func (f FeatureVector) Validate() error {
	for i, v := range f.Slice() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %s is not a finite number", FeatureNames[i])
		}
	}
	return nil
}
