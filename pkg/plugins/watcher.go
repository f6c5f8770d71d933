package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultQuietPeriod is how long a new library file must go without further
// events before the watcher loads it.
const DefaultQuietPeriod = 500 * time.Millisecond

// Watcher loads plugin libraries dropped into the search path while the host
// is running. Files are loaded for the type their name implies once they have
// been quiet for the quiet period, so a library still being copied in is not
// opened half written.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	dirs    []string
	quiet   time.Duration
	log     *logrus.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithQuietPeriod sets how long a file must stay unchanged before it is loaded.
func WithQuietPeriod(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.quiet = d
		}
	}
}

// NewWatcher watches every existing search path directory of m.
func NewWatcher(m *Manager, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{manager: m, watcher: fw, quiet: DefaultQuietPeriod, log: m.log}
	for _, opt := range opts {
		opt(w)
	}
	for _, dir := range m.SearchPaths() {
		if err := fw.Add(dir); err != nil {
			w.log.Debugf("Not watching plugin directory %s: %v", dir, err)
			continue
		}
		w.dirs = append(w.dirs, dir)
	}
	if len(w.dirs) == 0 {
		fw.Close()
		return nil, fmt.Errorf("no plugin directory could be watched")
	}
	return w, nil
}

// Dirs returns the watched directories.
func (w *Watcher) Dirs() []string {
	return append([]string(nil), w.dirs...)
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	pending := make(map[string]time.Time)
	timer := time.NewTimer(w.quiet)
	timer.Stop()
	defer timer.Stop()

	w.log.Infof("Watching %d plugin directories", len(w.dirs))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.note(event, pending, time.Now()) {
				timer.Reset(w.quiet)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Plugin watcher error: %v", err)
		case now := <-timer.C:
			if next := w.flush(ctx, pending, now); next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// note records event against pending and reports whether a library file was
// touched.
func (w *Watcher) note(event fsnotify.Event, pending map[string]time.Time, now time.Time) bool {
	if index := w.manager.discoverer.Index(); index != nil {
		index.Invalidate(filepath.Dir(event.Name))
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		delete(pending, event.Name)
		return false
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
		return false
	}
	if filepath.Ext(event.Name) != w.manager.discoverer.extension {
		return false
	}
	if _, ok := TypeFromFilename(event.Name); !ok {
		w.log.Debugf("Ignoring library without plugin prefix: %s", event.Name)
		return false
	}
	if w.manager.libraries.Tracked(event.Name) {
		return false
	}
	pending[event.Name] = now
	return true
}

// flush loads every pending file quiet since before now-quiet and returns how
// long until the next one settles, or 0 when none remain.
func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time, now time.Time) time.Duration {
	var next time.Duration
	for path, last := range pending {
		if wait := w.quiet - now.Sub(last); wait > 0 {
			if next == 0 || wait < next {
				next = wait
			}
			continue
		}
		delete(pending, path)
		t, _ := TypeFromFilename(path)
		w.manager.LoadByPath(ctx, path, t)
	}
	return next
}
