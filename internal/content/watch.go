package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sheerbytes/getfile/internal/logging"
)

// Watch reloads the map whenever its file is written or replaced, until ctx
// is done. The directory is watched rather than the file so that editors
// that save by rename are handled. onReload, if set, runs after every
// reload attempt.
func (s *Store) Watch(ctx context.Context, logger *slog.Logger, onReload func(error)) error {
	logger = logging.OrDiscard(logger)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	target, err := filepath.Abs(s.mapPath)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, err := filepath.Abs(event.Name)
				if err != nil || name != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				err = s.Reload()
				if err != nil {
					logger.Warn("content map reload failed", "path", s.mapPath, "error", err)
				} else {
					logger.Info("content map reloaded", "path", s.mapPath, "entries", s.Len())
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("content watcher error", "error", err)
			}
		}
	}()
	return nil
}
