package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the configuration when the file changes. Editors replace
// files by rename, so the parent directory is watched rather than the file
// itself, and the content hash filters spurious events.
type Watcher struct {
	path     string
	onReload func(*Config)
	watcher  *fsnotify.Watcher
	lastHash string
}

// NewWatcher prepares a watcher for the config file at path. onReload runs
// on every successful reload.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, onReload: onReload, watcher: fsw}
	w.lastHash = fileHash(path)
	return w, nil
}

// Start watches until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.Debugf("config: watching %s", w.path)

	go func() {
		defer func() { _ = w.watcher.Close() }()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, w.reload)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("config: watch error")
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	hash := fileHash(w.path)
	if hash == "" || hash == w.lastHash {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		log.WithError(err).Error("config: reload failed, keeping previous configuration")
		return
	}
	w.lastHash = hash
	log.Infof("config: reloaded %s", w.path)
	w.onReload(cfg)
}

func fileHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
