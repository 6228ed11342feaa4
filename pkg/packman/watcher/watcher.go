// Package watcher re-checks package definitions as they are edited. It
// watches the definitions directory recursively and, once a burst of
// filesystem events for a file settles, reloads that file and reports
// whether it still parses and validates.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/packman/pkg/packman/definition"
	"github.com/jamesainslie/packman/pkg/packman/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is checked.
const DefaultDebounce = 200 * time.Millisecond

var logger = logging.Get("watcher")

// Event is the outcome of checking one definition file.
type Event struct {
	Path string
	// Name is the package name the file defines.
	Name string
	// Removed is set when the file no longer exists.
	Removed bool
	// Definition is the loaded definition when Err is nil.
	Definition *definition.Definition
	Err        error
}

// Watcher watches a definitions directory.
type Watcher struct {
	loader   *definition.Loader
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	paths  map[string]bool
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is checked.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a Watcher over the loader's directory.
func New(loader *definition.Loader, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		loader:   loader,
		watcher:  fsw,
		debounce: DefaultDebounce,
		paths:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.watchTree(loader.Dir()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// watchTree adds root and every directory below it. Symlinks are not
// followed.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() && d.Type()&fs.ModeSymlink == 0 {
			return w.addWatch(path)
		}
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

func (w *Watcher) removeWatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.paths))
	for p := range w.paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run delivers an Event for every definition file that changes until ctx
// is cancelled or the watcher is closed. onEvent runs on the caller's
// goroutine.
func (w *Watcher) Run(ctx context.Context, onEvent func(Event)) error {
	pending := make(map[string]time.Time)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handle(event); ok {
				pending[path] = time.Now()
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)

		case <-timer.C:
			next := w.flush(pending, onEvent)
			if next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// handle updates the watch list for directory events and reports whether
// event concerns a definition file.
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			_ = w.watchTree(event.Name)
			return "", false
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.removeWatch(event.Name)
	}
	if !definition.IsDefinitionFile(event.Name) {
		return "", false
	}
	return event.Name, true
}

// flush checks every pending file that has been quiet for the debounce
// period and returns the wait until the next one is due, or zero.
func (w *Watcher) flush(pending map[string]time.Time, onEvent func(Event)) time.Duration {
	now := time.Now()
	var next time.Duration
	var due []string
	for path, at := range pending {
		wait := w.debounce - now.Sub(at)
		if wait <= 0 {
			due = append(due, path)
			continue
		}
		if next == 0 || wait < next {
			next = wait
		}
	}
	sort.Strings(due)
	for _, path := range due {
		delete(pending, path)
		ev := w.Check(path)
		if onEvent != nil {
			onEvent(ev)
		}
	}
	return next
}

// Check reloads a single definition file, bypassing the loader cache.
func (w *Watcher) Check(path string) Event {
	w.loader.Invalidate(path)
	ev := Event{Path: path, Name: w.loader.NameOf(path)}
	def, err := w.loader.LoadFile(path)
	switch {
	case errors.Is(err, definition.ErrNotFound):
		ev.Removed = true
	case err != nil:
		ev.Err = err
		logger.Debug("definition invalid", "path", path, "error", err)
	default:
		ev.Definition = def
	}
	return ev
}

// Close stops watching and releases resources.
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
