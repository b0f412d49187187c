package connector

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile invokes onChange whenever path is written, created, or renamed.
// The parent directory is watched rather than the file itself so editors
// that replace-by-rename still trigger. Returns a stop function.
func WatchFile(path string, logger *slog.Logger, onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					logger.Info("watched file changed, reloading", "path", path)
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", "path", path, "error", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
