package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"soundscape/logger"
)

// Watch keeps the availability snapshot in sync with a local asset directory.
// Files appearing or disappearing under root flip the matching object's
// availability without a full re-probe. Blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// fsnotify does not recurse, so register every existing subdirectory.
	addDirs := func(base string) {
		_ = filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
			if err == nil && info.IsDir() {
				if werr := watcher.Add(path); werr != nil {
					logger.Warn("failed to watch asset dir",
						logger.String("dir", path), logger.ErrorField(werr))
				}
			}
			return nil
		})
	}
	addDirs(root)

	logger.Info("watching asset directory", logger.String("dir", root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					addDirs(event.Name)
					continue
				}
			}
			objectPath, valid := objectPathFor(root, event.Name)
			if !valid {
				continue
			}
			switch {
			case event.Op&fsnotify.Create != 0, event.Op&fsnotify.Write != 0:
				c.MarkAvailable(objectPath, true)
				logger.Debug("asset appeared", logger.String("object", objectPath))
			case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
				c.MarkAvailable(objectPath, false)
				logger.Debug("asset removed", logger.String("object", objectPath))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("asset watcher error", logger.ErrorField(err))
		}
	}
}

// objectPathFor maps an absolute file path back to its catalog object path.
func objectPathFor(root, name string) (string, bool) {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "loops/") && !strings.HasPrefix(rel, "events/") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(rel))
	if ext != ".mp3" && ext != ".wav" && ext != ".flac" {
		return "", false
	}
	return rel, true
}
