package ml

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRegressionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	targets := []float64{1.0, 1.2, 3.0, 3.4}

	tree := NewRegressionTree(TreeConfig{})
	if err := tree.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		got, err := tree.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != targets[i] {
			t.Fatalf("row %d: expected %v, got %v", i, targets[i], got)
		}
	}
}

func TestRegressionTreeMaxDepthAveragesLeaves(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	targets := []float64{1, 1, 5, 7}

	tree := NewRegressionTree(TreeConfig{MaxDepth: 1})
	if err := tree.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.NodeCount() != 3 {
		t.Fatalf("expected a single split, got %d nodes", tree.NodeCount())
	}
	got, err := tree.Predict([]float64{3.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 6 {
		t.Fatalf("expected right leaf mean 6, got %v", got)
	}
}

func TestRegressionTreeConstantTargetsIsLeaf(t *testing.T) {
	tree := NewRegressionTree(TreeConfig{})
	if err := tree.Train([][]float64{{1}, {2}, {3}}, []float64{2.5, 2.5, 2.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.NodeCount() != 1 {
		t.Fatalf("expected single leaf, got %d nodes", tree.NodeCount())
	}
}

func TestRegressionTreeErrors(t *testing.T) {
	tree := NewRegressionTree(TreeConfig{})
	if _, err := tree.Predict([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
	if err := tree.Train(nil, nil); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	if err := tree.Train([][]float64{{1, 2}, {3}}, []float64{1, 2}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
	if err := tree.Train([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Fatal("expected size mismatch error")
	}

	if err := tree.Train([][]float64{{1, 2}, {3, 4}}, []float64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tree.Predict([]float64{1}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
}

func TestRegressionTreeJSONRejectsCycles(t *testing.T) {
	payload := []byte(`{"config":{},"n_features":1,"nodes":[
		{"feature_idx":0,"threshold":1,"left_child":0,"right_child":1,"is_leaf":false},
		{"feature_idx":-1,"left_child":-1,"right_child":-1,"value":2,"is_leaf":true}
	]}`)
	var tree RegressionTree
	err := json.Unmarshal(payload, &tree)
	if !errors.Is(err, ErrInvalidArtifact) {
		t.Fatalf("expected ErrInvalidArtifact, got %v", err)
	}
}
