package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchInventory re-initializes the registry when the inventory file
// changes on disk. Events are debounced because editors produce bursts of
// writes. A reload that fails to parse or spawn keeps the previous fleet
// running.
func WatchInventory(ctx context.Context, path string, registry *Registry, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: many editors replace the file on save, which
	// drops a watch set on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)
	log := logger.With("component", "inventory-watch", "path", target)
	log.Info("watching inventory for changes")

	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(500 * time.Millisecond)
			} else {
				debounce.Reset(500 * time.Millisecond)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			inv, err := LoadInventory(target)
			if err != nil {
				log.Error("inventory reload skipped", "error", err)
				continue
			}
			if err := registry.Initialize(ctx, inv); err != nil {
				log.Error("registry re-initialization failed", "error", err)
				continue
			}
			log.Info("registry reloaded from inventory")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		}
	}
}
