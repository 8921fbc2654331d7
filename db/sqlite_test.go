package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"perfpredict/ml"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "training.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreExamplesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	examples, err := store.LoadExamples(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 0 {
		t.Fatalf("expected empty store, got %d", len(examples))
	}

	want := ml.DefaultDataset()
	if err := store.InsertExamples(ctx, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := store.LoadExamples(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d examples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestStoreTrainingLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.LatestTraining(ctx); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	trainedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, rmse := range []float64{0.2, 0.1} {
		run := TrainingRun{
			ModelType:  ml.ModelTypeRandomForest,
			ModelPath:  "model/performance_model.json",
			RMSE:       rmse,
			DataPoints: 2,
			TrainedAt:  trainedAt.Add(time.Duration(i) * time.Hour),
		}
		if err := store.LogTraining(ctx, run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	latest, err := store.LatestTraining(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.RMSE != 0.1 || !latest.TrainedAt.Equal(trainedAt.Add(time.Hour)) {
		t.Fatalf("unexpected latest run: %+v", latest)
	}
}
