package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"perfpredict/config"
	"perfpredict/db"
	"perfpredict/logging"
	"perfpredict/ml"
)

type options struct {
	ModelType string
	ModelPath string
	Dataset   string
	RecordDB  string
	Forest    ml.ForestConfig
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dataset := flag.String("dataset", "", "training data: .csv or sqlite file (default: built-in dataset)")
	modelPath := flag.String("model_path", "", "model output path")
	nEstimators := flag.Int("n_estimators", 0, "number of trees")
	maxDepth := flag.Int("max_depth", -1, "max tree depth, 0 for unlimited")
	seed := flag.Int64("seed", 0, "random seed")
	recordDB := flag.String("record_db", "", "sqlite file to record the dataset and training run in")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	opts := optionsFromConfig(cfg)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			opts.Dataset = *dataset
		case "model_path":
			opts.ModelPath = *modelPath
		case "n_estimators":
			opts.Forest.NEstimators = *nEstimators
		case "max_depth":
			opts.Forest.MaxDepth = *maxDepth
		case "seed":
			opts.Forest.Seed = *seed
		case "record_db":
			opts.RecordDB = *recordDB
		}
	})

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}
	fmt.Printf("model saved to %s\n", opts.ModelPath)
}

func optionsFromConfig(cfg *config.Config) options {
	forest := ml.DefaultForestConfig()
	forest.NEstimators = cfg.ML.NEstimators
	forest.MaxDepth = cfg.ML.MaxDepth
	forest.MinSamplesSplit = cfg.ML.MinSamplesSplit
	forest.MaxFeatures = cfg.ML.MaxFeatures
	forest.Bootstrap = cfg.ML.Bootstrap
	forest.Seed = cfg.ML.Seed
	return options{
		ModelType: cfg.ML.ModelType,
		ModelPath: cfg.ML.ModelPath,
		Dataset:   cfg.ML.DatasetPath,
		Forest:    forest,
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	examples, err := loadDataset(ctx, opts.Dataset)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	features, targets := ml.Matrix(examples)
	logger.Info("training",
		zap.String("model_type", opts.ModelType),
		zap.Int("examples", len(examples)),
		zap.String("dataset", datasetName(opts.Dataset)))

	model, err := newModel(opts)
	if err != nil {
		return err
	}
	if err := model.Train(features, targets); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	rmse := evaluateModel(model, features, targets)
	logger.Info("model trained", zap.Float64("train_rmse", rmse))

	trainedAt := time.Now()
	if err := ml.SaveArtifact(opts.ModelPath, model, len(examples), trainedAt); err != nil {
		return fmt.Errorf("save model: %w", err)
	}

	if opts.RecordDB != "" {
		if err := recordRun(ctx, opts, examples, rmse, trainedAt); err != nil {
			return fmt.Errorf("record training run: %w", err)
		}
		logger.Info("training run recorded", zap.String("db", opts.RecordDB))
	}
	return nil
}

func newModel(opts options) (ml.TrainableRegressor, error) {
	switch opts.ModelType {
	case ml.ModelTypeRandomForest, "":
		return ml.NewRandomForest(opts.Forest), nil
	case ml.ModelTypeRegressionTree:
		return ml.NewRegressionTree(ml.TreeConfig{
			MaxDepth:        opts.Forest.MaxDepth,
			MinSamplesSplit: opts.Forest.MinSamplesSplit,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", opts.ModelType)
	}
}

func loadDataset(ctx context.Context, path string) ([]ml.Example, error) {
	if path == "" {
		return ml.DefaultDataset(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ml.LoadCSVFile(path)
	case ".db", ".sqlite", ".sqlite3":
		store, err := db.Open(path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		examples, err := store.LoadExamples(ctx)
		if err != nil {
			return nil, err
		}
		if len(examples) == 0 {
			return nil, ml.ErrEmptyDataset
		}
		return examples, nil
	default:
		return nil, errors.New("unsupported dataset format: " + path)
	}
}

func recordRun(ctx context.Context, opts options, examples []ml.Example, rmse float64, trainedAt time.Time) error {
	store, err := db.Open(opts.RecordDB)
	if err != nil {
		return err
	}
	defer store.Close()

	// Reading from and recording to the same store must not duplicate rows.
	if filepath.Clean(opts.RecordDB) != filepath.Clean(opts.Dataset) {
		if err := store.InsertExamples(ctx, examples); err != nil {
			return err
		}
	}
	return store.LogTraining(ctx, db.TrainingRun{
		ModelType:  opts.ModelType,
		ModelPath:  opts.ModelPath,
		RMSE:       rmse,
		DataPoints: len(examples),
		TrainedAt:  trainedAt,
	})
}

// evaluateModel returns the in-sample root mean squared error.
func evaluateModel(model ml.Regressor, features [][]float64, targets []float64) float64 {
	if len(features) == 0 {
		return 0
	}
	var sum float64
	var n int
	for i, row := range features {
		predicted, err := model.Predict(row)
		if err != nil {
			continue
		}
		diff := predicted - targets[i]
		sum += diff * diff
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}

func datasetName(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
