package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadModel reads the artifact at path and returns the decoded model along
// with its envelope.
func LoadModel(path string) (Regressor, *Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return DecodeArtifact(payload)
}

func DecodeArtifact(payload []byte) (Regressor, *Artifact, error) {
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if !sameFeatures(artifact.FeatureNames, FeatureNames) {
		return nil, nil, fmt.Errorf("%w: feature names %v, want %v", ErrInvalidArtifact, artifact.FeatureNames, FeatureNames)
	}
	if len(artifact.Model) == 0 {
		return nil, nil, fmt.Errorf("%w: missing model", ErrInvalidArtifact)
	}

	var model Regressor
	switch artifact.ModelType {
	case ModelTypeRandomForest:
		forest := &RandomForest{}
		if err := json.Unmarshal(artifact.Model, forest); err != nil {
			return nil, nil, wrapInvalid(err)
		}
		model = forest
	case ModelTypeRegressionTree:
		tree := &RegressionTree{}
		if err := json.Unmarshal(artifact.Model, tree); err != nil {
			return nil, nil, wrapInvalid(err)
		}
		model = tree
	default:
		return nil, nil, fmt.Errorf("%w: unsupported model type %q", ErrInvalidArtifact, artifact.ModelType)
	}

	if model.NumFeatures() != len(FeatureNames) {
		return nil, nil, fmt.Errorf("%w: model expects %d features, want %d", ErrInvalidArtifact, model.NumFeatures(), len(FeatureNames))
	}
	return model, &artifact, nil
}

func wrapInvalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
}

func sameFeatures(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
