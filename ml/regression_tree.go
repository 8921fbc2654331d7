package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TreeConfig bounds the growth of a single regression tree. Zero MaxDepth
// grows until leaves are pure; zero MaxFeatures considers every feature at
// every split.
type TreeConfig struct {
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	MaxFeatures     int `json:"max_features"`
}

// RegressionTree is a CART tree fitted on squared error. Nodes live in a
// flat slice; a parent always precedes its children.
type RegressionTree struct {
	config    TreeConfig
	nodes     []TreeNode
	nFeatures int
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewRegressionTree(config TreeConfig) *RegressionTree {
	if config.MinSamplesSplit < 2 {
		config.MinSamplesSplit = 2
	}
	return &RegressionTree{config: config}
}

func (t *RegressionTree) ModelType() string { return ModelTypeRegressionTree }

func (t *RegressionTree) NumFeatures() int { return t.nFeatures }

func (t *RegressionTree) NodeCount() int { return len(t.nodes) }

func (t *RegressionTree) Train(features [][]float64, targets []float64) error {
	nFeatures, err := validateTrainingSet(features, targets)
	if err != nil {
		return err
	}
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	t.fit(features, targets, indices, nFeatures, nil)
	return nil
}

// fit grows the tree on the rows named by indices. Repeated indices act as
// sample weights, which is how bootstrap samples are passed in. A nil rng
// disables feature subsampling.
func (t *RegressionTree) fit(features [][]float64, targets []float64, indices []int, nFeatures int, rng *rand.Rand) {
	if t.config.MinSamplesSplit < 2 {
		t.config.MinSamplesSplit = 2
	}
	t.nFeatures = nFeatures
	t.nodes = nil
	t.grow(features, targets, indices, 0, rng)
}

func (t *RegressionTree) Predict(features []float64) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, ErrNotTrained
	}
	if len(features) != t.nFeatures {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureCount, len(features), t.nFeatures)
	}
	idx := 0
	for steps := 0; steps < len(t.nodes); steps++ {
		node := t.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(t.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("invalid tree state")
}

func (t *RegressionTree) grow(features [][]float64, targets []float64, indices []int, depth int, rng *rand.Rand) int {
	pos := len(t.nodes)
	t.nodes = append(t.nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean(targets, indices),
		Samples:    len(indices),
		IsLeaf:     true,
	})

	if t.config.MaxDepth > 0 && depth >= t.config.MaxDepth {
		return pos
	}
	if len(indices) < t.config.MinSamplesSplit || isConstant(targets, indices) {
		return pos
	}

	feature, threshold, ok := t.bestSplit(features, targets, indices, rng)
	if !ok {
		return pos
	}
	left, right := partition(features, indices, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return pos
	}

	leftIdx := t.grow(features, targets, left, depth+1, rng)
	rightIdx := t.grow(features, targets, right, depth+1, rng)

	node := &t.nodes[pos]
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return pos
}

// bestSplit sweeps every candidate feature in sorted order and returns the
// threshold minimising the summed squared error of both children.
func (t *RegressionTree) bestSplit(features [][]float64, targets []float64, indices []int, rng *rand.Rand) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestErr := math.Inf(1)

	order := make([]int, len(indices))
	n := len(indices)
	for _, featureIdx := range t.candidateFeatures(rng) {
		copy(order, indices)
		sort.SliceStable(order, func(a, b int) bool {
			return features[order[a]][featureIdx] < features[order[b]][featureIdx]
		})

		var totalSum, totalSq float64
		for _, i := range order {
			totalSum += targets[i]
			totalSq += targets[i] * targets[i]
		}

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			y := targets[order[k]]
			leftSum += y
			leftSq += y * y

			current := features[order[k]][featureIdx]
			next := features[order[k+1]][featureIdx]
			if current == next {
				continue
			}

			nl := float64(k + 1)
			nr := float64(n - k - 1)
			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < bestErr {
				bestErr = sse
				bestFeature = featureIdx
				bestThreshold = midpoint(current, next)
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (t *RegressionTree) candidateFeatures(rng *rand.Rand) []int {
	if rng == nil || t.config.MaxFeatures <= 0 || t.config.MaxFeatures >= t.nFeatures {
		all := make([]int, t.nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(t.nFeatures)[:t.config.MaxFeatures]
}

func partition(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// midpoint falls back to the lower value when the two are adjacent floats,
// so the lower value still routes left.
func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m >= b {
		return a
	}
	return m
}

func mean(targets []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}
	var sum float64
	for _, i := range indices {
		sum += targets[i]
	}
	return sum / float64(len(indices))
}

func isConstant(targets []float64, indices []int) bool {
	if len(indices) == 0 {
		return true
	}
	first := targets[indices[0]]
	for _, i := range indices[1:] {
		if targets[i] != first {
			return false
		}
	}
	return true
}

func validateTrainingSet(features [][]float64, targets []float64) (int, error) {
	if len(features) == 0 || len(targets) == 0 {
		return 0, ErrEmptyDataset
	}
	if len(features) != len(targets) {
		return 0, fmt.Errorf("features and targets size mismatch: %d != %d", len(features), len(targets))
	}
	nFeatures := len(features[0])
	if nFeatures == 0 {
		return 0, errors.New("feature rows are empty")
	}
	for i, row := range features {
		if len(row) != nFeatures {
			return 0, fmt.Errorf("%w: row %d has %d, want %d", ErrFeatureCount, i, len(row), nFeatures)
		}
		for j, v := range row {
			if !isFinite(v) {
				return 0, fmt.Errorf("row %d feature %d is not finite", i, j)
			}
		}
		if !isFinite(targets[i]) {
			return 0, fmt.Errorf("row %d target is not finite", i)
		}
	}
	return nFeatures, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type treeState struct {
	Config    TreeConfig `json:"config"`
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

func (t *RegressionTree) MarshalJSON() ([]byte, error) {
	if len(t.nodes) == 0 {
		return nil, ErrNotTrained
	}
	return json.Marshal(treeState{Config: t.config, NFeatures: t.nFeatures, Nodes: t.nodes})
}

func (t *RegressionTree) UnmarshalJSON(data []byte) error {
	var state treeState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if err := validateNodes(state.Nodes, state.NFeatures); err != nil {
		return err
	}
	t.config = state.Config
	t.nFeatures = state.NFeatures
	t.nodes = state.Nodes
	return nil
}

// validateNodes rejects trees Predict could not walk safely: children must
// sit after their parent, which also rules out cycles.
func validateNodes(nodes []TreeNode, nFeatures int) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: tree has no nodes", ErrInvalidArtifact)
	}
	if nFeatures <= 0 {
		return fmt.Errorf("%w: tree has no features", ErrInvalidArtifact)
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if !isFinite(node.Value) {
				return fmt.Errorf("%w: node %d has non-finite value", ErrInvalidArtifact, i)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("%w: node %d feature index %d out of range", ErrInvalidArtifact, i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("%w: node %d has invalid child %d", ErrInvalidArtifact, i, child)
			}
		}
	}
	return nil
}
