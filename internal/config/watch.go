package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Settings each time the file is written. It runs until ctx is cancelled.
//
// A reload that fails validation is logged and skipped; the previous settings
// stay active.
func Watch(ctx context.Context, path string, onChange func(*Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log := slog.With(LogKeyComponent, CompSettings, LogKeyPath, path)
	log.Info(MsgSettingsWatch)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			s, err := Load(path)
			if err == nil {
				err = s.Validate()
			}
			if err != nil {
				log.Error(ErrSettingsReload, LogKeyError, err)
				continue
			}

			log.Info(MsgSettingsReloaded)
			onChange(s)

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error(ErrWatcher, LogKeyError, err)
		}
	}
}
