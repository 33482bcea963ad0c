package monitoring

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactChange is one filesystem event on the model artifact.
type ArtifactChange struct {
	Path string
	Op   string
}

// ArtifactWatcher reports when the artifact file changes on disk. The loaded
// model is never swapped; a restart picks up the new file.
type ArtifactWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	onChange func(ArtifactChange)
	done     chan struct{}
}

// WatchArtifact watches the directory that holds path, so replace-by-rename
// is seen too. onChange runs on the watcher goroutine.
func WatchArtifact(ctx context.Context, path string, logger *zap.Logger, onChange func(ArtifactChange)) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	aw := &ArtifactWatcher{
		path:     abs,
		watcher:  w,
		logger:   logger,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go aw.loop(ctx)
	return aw, nil
}

func (aw *ArtifactWatcher) loop(ctx context.Context) {
	defer close(aw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != aw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			aw.logger.Warn("model artifact changed on disk; restart to load it",
				zap.String("path", aw.path),
				zap.String("op", event.Op.String()),
			)
			if aw.onChange != nil {
				aw.onChange(ArtifactChange{Path: aw.path, Op: event.Op.String()})
			}
		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.logger.Error("artifact watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for its goroutine.
func (aw *ArtifactWatcher) Close() error {
	err := aw.watcher.Close()
	<-aw.done
	return err
}
