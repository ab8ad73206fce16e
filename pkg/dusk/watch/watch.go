// Package watch reports filesystem changes below a root, batched over a
// debounce window, so callers can rescan incrementally.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/dusk/pkg/dusk/logging"
)

var logger = logging.Get("watch")

// IgnoreFunc reports whether events on path should be dropped. Ignored
// directories are not watched.
type IgnoreFunc func(path string, isDir bool) bool

// Watcher watches a directory tree recursively. Symlinks are not followed.
type Watcher struct {
	watcher *fsnotify.Watcher
	ignore  IgnoreFunc
	paths   map[string]bool
	mu      sync.RWMutex
	closed  bool
}

// New creates a Watcher. ignore may be nil.
func New(ignore IgnoreFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if ignore == nil {
		ignore = func(string, bool) bool { return false }
	}
	return &Watcher{
		watcher: fsw,
		ignore:  ignore,
		paths:   make(map[string]bool),
	}, nil
}

// Watch adds root and every directory below it.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := w.addWatch(absRoot); err != nil {
		return err
	}
	w.addTree(absRoot)
	return nil
}

// addTree watches the directories below dir. Failures are logged.
func (w *Watcher) addTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || path == dir {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() {
			return nil
		}
		if w.ignore(path, true) {
			return filepath.SkipDir
		}
		_ = w.addWatch(path)
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// Watched returns the number of directories being watched.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run delivers changed paths to onChange once no event has arrived for
// debounce. It blocks until ctx is cancelled or the watcher is closed.
// onChange runs on the Run goroutine; events arriving meanwhile are
// collected into the next batch.
func (w *Watcher) Run(ctx context.Context, debounce time.Duration, onChange func(paths []string)) {
	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			pending[event.Name] = true
			timer.Reset(debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			slices.Sort(batch)
			clear(pending)
			logger.Debug("changes settled", "paths", len(batch))
			onChange(batch)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent keeps the watch set in step with the tree and reports
// whether the event counts as a change.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Lstat(event.Name)
		if err != nil {
			return !w.ignore(event.Name, false)
		}
		isDir := info.IsDir()
		if w.ignore(event.Name, isDir) {
			return false
		}
		if isDir {
			_ = w.addWatch(event.Name)
			w.addTree(event.Name)
		}
		return true

	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.forget(event.Name)
	}
	return !w.ignore(event.Name, false)
}

// forget drops path and everything below it from the watch set.
func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
