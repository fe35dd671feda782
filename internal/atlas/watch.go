package atlas

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads extension documents written or created in dir until
// ctx is cancelled. Loading is additive: removing a file does not
// unregister its concepts. The onLoad callback, if set, runs after
// each successful reload.
func (a *Atlas) Watch(ctx context.Context, dir string, onLoad func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("atlas: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("atlas: watch %s: %w", dir, err)
	}
	log.Info().Str("component", "atlas").Str("dir", dir).Msg("watching extensions")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isExtensionFile(event.Name) {
				continue
			}
			if err := a.LoadFile(event.Name); err != nil {
				log.Warn().Err(err).Str("component", "atlas").Str("path", event.Name).Msg("extension reload failed")
				continue
			}
			if onLoad != nil {
				onLoad(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("component", "atlas").Msg("watcher error")
		}
	}
}
