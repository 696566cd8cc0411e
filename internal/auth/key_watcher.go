package auth

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReadSecretFile loads a signing secret, trimming surrounding whitespace.
func ReadSecretFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return bytes.TrimSpace(raw), nil
}

// KeyWatcher reloads the signing secret from a file whenever it changes and
// installs it into a KeyRing.
type KeyWatcher struct {
	path     string
	ring     *KeyRing
	logger   *zap.Logger
	onRotate func(*SigningKey)
	watcher  *fsnotify.Watcher
}

// NewKeyWatcher watches the directory containing path so that atomic
// replacements (rename over the file) are observed as well as writes.
func NewKeyWatcher(path string, ring *KeyRing, logger *zap.Logger, onRotate func(*SigningKey)) (*KeyWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyWatcher{path: absPath, ring: ring, logger: logger, onRotate: onRotate, watcher: watcher}, nil
}

// Run processes file events until ctx is cancelled.
func (w *KeyWatcher) Run(ctx context.Context) {
	defer w.watcher.Close() //nolint:errcheck
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.Reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("key watcher error", zap.Error(err))
		}
	}
}

// Reload reads the file and rotates the ring if the secret changed. A missing
// or weak secret leaves the current key in place.
func (w *KeyWatcher) Reload() bool {
	secret, err := ReadSecretFile(w.path)
	if err != nil {
		w.logger.Warn("signing key reload failed", zap.Error(err))
		return false
	}
	candidate, err := NewSigningKey(secret)
	if err != nil {
		w.logger.Warn("signing key reload rejected", zap.Error(err))
		return false
	}
	if current := w.ring.Current(); current != nil && current.ID == candidate.ID {
		return false
	}
	key, err := w.ring.Rotate(secret)
	if err != nil {
		return false
	}
	w.logger.Info("signing key rotated", zap.String("kid", key.ID))
	if w.onRotate != nil {
		w.onRotate(key)
	}
	return true
}
