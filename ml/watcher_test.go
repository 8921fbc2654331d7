package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestArtifactWatcherMarksStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "performance_model.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := NewArtifactWatcher(path, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if w.Stale() {
		t.Fatal("unrelated file marked artifact stale")
	}

	if err := os.WriteFile(path, []byte(`{"changed":true}`), 0o600); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !w.Stale() {
		if time.Now().After(deadline) {
			t.Fatal("expected artifact to be marked stale")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
