package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	ModelTypeRandomForest   = "random_forest"
	ModelTypeRegressionTree = "regression_tree"
)

// Artifact is the on-disk envelope around a fitted model.
type Artifact struct {
	ModelType    string          `json:"model_type"`
	FeatureNames []string        `json:"feature_names"`
	TrainedAt    time.Time       `json:"trained_at"`
	Samples      int             `json:"samples"`
	Model        json.RawMessage `json:"model"`
}

// SaveArtifact writes model to path, replacing any existing file. The write
// goes through a temporary file in the same directory so readers never see
// a partial artifact.
func SaveArtifact(path string, model Regressor, samples int, trainedAt time.Time) error {
	payload, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	artifact := Artifact{
		ModelType:    model.ModelType(),
		FeatureNames: FeatureNames,
		TrainedAt:    trainedAt.UTC(),
		Samples:      samples,
		Model:        payload,
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
