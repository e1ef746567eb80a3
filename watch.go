package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// archiveSettle is how long a file must stay quiet before it is reported
const archiveSettle = time.Second

func isArchive(name string) bool {
	base := filepath.Base(name)
	return strings.EqualFold(filepath.Ext(base), ".zip") && !strings.HasPrefix(base, ".")
}

// watchDownloads reports archives that land in dir. onReady, if set, is
// called for each archive once it has settled.
func watchDownloads(ctx context.Context, dir string, log zerolog.Logger, onReady func(path string, size int64)) {
	log = log.With().Str("component", "watcher").Str("dir", dir).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("failed to create watcher")
		return
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		log.Error().Err(err).Msg("failed to watch directory")
		return
	}

	// Debounce map for file events
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && isArchive(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")

		case <-ticker.C:
			now := time.Now()
			for path, lastEvent := range pending {
				if now.Sub(lastEvent) <= archiveSettle {
					continue
				}
				delete(pending, path)
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				log.Info().
					Str("file", filepath.Base(path)).
					Str("size", humanize.Bytes(uint64(info.Size()))).
					Msg("archive downloaded")
				if onReady != nil {
					onReady(path, info.Size())
				}
			}
		}
	}
}
