package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
)

type ForestConfig struct {
	NEstimators     int   `json:"n_estimators"`
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"`
	Bootstrap       bool  `json:"bootstrap"`
	Seed            int64 `json:"seed"`
	// Workers bounds concurrent tree fitting; it does not affect the result.
	Workers int `json:"-"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NEstimators:     100,
		MinSamplesSplit: 2,
		Bootstrap:       true,
		Seed:            42,
		Workers:         runtime.NumCPU(),
	}
}

// RandomForest averages regression trees fitted on bootstrap samples.
// A given Seed always yields the same forest regardless of Workers.
type RandomForest struct {
	config    ForestConfig
	trees     []*RegressionTree
	nFeatures int
}

func NewRandomForest(config ForestConfig) *RandomForest {
	if config.NEstimators <= 0 {
		config.NEstimators = 100
	}
	if config.MinSamplesSplit < 2 {
		config.MinSamplesSplit = 2
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	return &RandomForest{config: config}
}

func (f *RandomForest) ModelType() string { return ModelTypeRandomForest }

func (f *RandomForest) NumFeatures() int { return f.nFeatures }

func (f *RandomForest) NumTrees() int { return len(f.trees) }

func (f *RandomForest) Config() ForestConfig { return f.config }

func (f *RandomForest) Train(features [][]float64, targets []float64) error {
	nFeatures, err := validateTrainingSet(features, targets)
	if err != nil {
		return err
	}

	// Per-tree seeds are drawn up front so scheduling order cannot leak
	// into the fitted trees.
	seeds := make([]int64, f.config.NEstimators)
	master := rand.New(rand.NewSource(f.config.Seed))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*RegressionTree, f.config.NEstimators)
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := f.config.Workers
	if workers > f.config.NEstimators {
		workers = f.config.NEstimators
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				trees[i] = f.fitTree(features, targets, nFeatures, seeds[i])
			}
		}()
	}
	for i := range trees {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	f.trees = trees
	f.nFeatures = nFeatures
	return nil
}

func (f *RandomForest) fitTree(features [][]float64, targets []float64, nFeatures int, seed int64) *RegressionTree {
	rng := rand.New(rand.NewSource(seed))
	n := len(features)
	indices := make([]int, n)
	for i := range indices {
		if f.config.Bootstrap {
			indices[i] = rng.Intn(n)
		} else {
			indices[i] = i
		}
	}
	tree := NewRegressionTree(TreeConfig{
		MaxDepth:        f.config.MaxDepth,
		MinSamplesSplit: f.config.MinSamplesSplit,
		MaxFeatures:     f.config.MaxFeatures,
	})
	tree.fit(features, targets, indices, nFeatures, rng)
	return tree
}

func (f *RandomForest) Predict(features []float64) (float64, error) {
	return f.PredictContext(context.Background(), features)
}

func (f *RandomForest) PredictContext(ctx context.Context, features []float64) (float64, error) {
	if len(f.trees) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != f.nFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), f.nFeatures)
	}
	var sum float64
	for i, tree := range f.trees {
		if i%16 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		value, err := tree.Predict(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += value
	}
	return sum / float64(len(f.trees)), nil
}

type forestState struct {
	Config    ForestConfig      `json:"config"`
	NFeatures int               `json:"n_features"`
	Trees     []*RegressionTree `json:"trees"`
}

func (f *RandomForest) MarshalJSON() ([]byte, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(forestState{Config: f.config, NFeatures: f.nFeatures, Trees: f.trees})
}

func (f *RandomForest) UnmarshalJSON(data []byte) error {
	var state forestState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Trees) == 0 {
		return fmt.Errorf("%w: forest has no trees", ErrInvalidArtifact)
	}
	for i, tree := range state.Trees {
		if tree == nil || tree.nFeatures != state.NFeatures {
			return fmt.Errorf("%w: tree %d does not match forest feature count", ErrInvalidArtifact, i)
		}
	}
	state.Config.Workers = runtime.NumCPU()
	f.config = state.Config
	f.nFeatures = state.NFeatures
	f.trees = state.Trees
	return nil
}
