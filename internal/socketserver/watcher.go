package socketserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/langsock/internal/logger"
)

// SocketWatcher reports when the socket file disappears from disk, for
// example because another process deleted or replaced it.
type SocketWatcher struct {
	path      string
	onRemoved func()
	watcher   *fsnotify.Watcher
}

// NewSocketWatcher watches the parent directory of socketPath.
func NewSocketWatcher(socketPath string, onRemoved func()) (*SocketWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	path := filepath.Clean(socketPath)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	return &SocketWatcher{
		path:      path,
		onRemoved: onRemoved,
		watcher:   watcher,
	}, nil
}

// Run blocks until the socket file is removed or renamed, or ctx is done.
// onRemoved is called in the first case.
func (w *SocketWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				logger.Warn("Socket file %s was removed (%s)", w.path, event.Op)
				if w.onRemoved != nil {
					w.onRemoved()
				}
				return nil
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("socket watcher error: %v", err)
		}
	}
}
