package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reports when the artifact a process loaded at startup has
// since been rewritten or removed on disk. It never reloads the model; the
// process keeps serving what it loaded until it is restarted.
type ArtifactWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stale   atomic.Bool
}

func NewArtifactWatcher(path string, logger *zap.Logger) (*ArtifactWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: the trainer replaces the file by rename, which
	// would drop a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactWatcher{
		path:    abs,
		watcher: watcher,
		logger:  logger,
	}, nil
}

// Run consumes filesystem events until ctx is cancelled or Close is called.
func (w *ArtifactWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !w.stale.Swap(true) {
				w.logger.Warn("model artifact changed on disk; restart to serve it",
					zap.String("path", w.path),
					zap.String("op", event.Op.String()))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// Stale reports whether the artifact changed after the watcher started.
func (w *ArtifactWatcher) Stale() bool {
	return w.stale.Load()
}

func (w *ArtifactWatcher) Close() error {
	return w.watcher.Close()
}
