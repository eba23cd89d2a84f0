package patcher

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch re-applies the patch whenever the script at path is created, written or renamed,
// which is what happens when pip upgrades the toolkit. It returns once the watcher is set up
// and stops when ctx is done.
func (p *Patcher) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Watch: failed creating watcher: %w", err)
	}
	path = filepath.Clean(path)
	// pip replaces files instead of rewriting them, so the directory is watched.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("Watch: failed watching %s: %w", filepath.Dir(path), err)
	}
	log.WithField("path", path).Debug("watching developer script")

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
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
					continue
				}
				log.WithFields(log.Fields{"path": path, "op": event.Op.String()}).Debug("developer script changed")
				p.EnsurePath(path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("developer script watcher error")
			}
		}
	}()
	return nil
}
