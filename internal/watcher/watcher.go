// Package watcher reloads files on change using fsnotify with debouncing.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches a set of files and invokes a callback once per burst of changes.
// It watches each file's parent directory, so files replaced by rename (as editors do)
// keep being tracked.
type Watcher struct {
	files    map[string]struct{}
	onChange func(path string)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timers   map[string]*time.Timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger // optional; when set, logs debug events
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher calling onChange with the cleaned absolute path of each
// changed file. Files are resolved to absolute paths.
func NewWatcher(files []string, onChange func(path string), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		files:    make(map[string]struct{}, len(files)),
		onChange: onChange,
		debounce: defaultDebounce,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[filepath.Clean(abs)] = struct{}{}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	dirs := make(map[string]struct{})
	for f := range w.files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.watcher = watcher
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.Strings("files", w.Files()), zap.Duration("debounce", w.debounce))
	}
	w.mu.Unlock()
	go w.run(ctx, watcher)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.files[path]; !ok {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	}
	if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename) {
		w.debounceChange(path)
	}
}

// debounceChange fires onChange once the file has been quiet for the debounce period.
// A rename is followed by the replacement's create; the callback sees the final file.
func (w *Watcher) debounceChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		logger := w.logger
		w.mu.Unlock()
		if _, err := os.Stat(path); err != nil {
			if logger != nil {
				logger.Debug("watcher skipping missing file", zap.String("path", path))
			}
			return
		}
		if logger != nil {
			logger.Debug("watcher file changed (debounced)", zap.String("path", path))
		}
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

// Files returns the watched files in lexical order.
func (w *Watcher) Files() []string {
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
