// Package watch reloads the tool registry when unit files in the tools
// directory change.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/olgasafonova/tooldock-mcp-server/internal/infra"
)

// ReloadFunc runs one reload.
type ReloadFunc func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the directory must be quiet before a reload.
	Debounce time.Duration

	// Filter reports whether a changed file name matters. Nil accepts all.
	Filter func(name string) bool

	// Breaker pauses reloading after repeated failures. Nil disables it.
	Breaker *infra.Breaker

	Logger *slog.Logger
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Reloads       int
	Failures      int
	Skipped       int // batches held back by the breaker
	Rewatches     int // times the directory was watched again after removal
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Watcher watches one directory and calls a ReloadFunc once changes settle.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	dir      string
	reload   ReloadFunc
	opts     Options
	logger   *slog.Logger
	pending  map[string]time.Time
	held     bool // pending batch is waiting for the breaker
	lost     bool // directory removed; watch must be re-added
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stopOnce sync.Once

	stats Stats
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, reload ReloadFunc, opts Options) (*Watcher, error) {
	if reload == nil {
		return nil, errors.New("watch: reload function is nil")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Watcher{
		watcher: fw,
		dir:     dir,
		reload:  reload,
		opts:    opts,
		logger:  opts.Logger,
		pending: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Unlock()
		return err
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Watching tools directory", "dir", w.dir, "debounce", w.opts.Debounce)
	go w.run(ctx)
	return nil
}

// Stop stops watching and waits for the event loop to exit. A reload that
// is running finishes first.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		running := w.running
		w.running = false
		w.mu.Unlock()

		if running {
			close(w.stopCh)
			<-w.doneCh
		}
		if err := w.watcher.Close(); err != nil {
			w.logger.Error("Error closing watcher", "error", err)
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.opts.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.rewatch()
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) == filepath.Clean(w.dir) && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		w.lost = true
		w.mu.Unlock()
		w.logger.Warn("Tools directory removed, waiting for it to reappear", "dir", w.dir)
		return
	}

	name := filepath.Base(event.Name)
	if w.opts.Filter != nil && !w.opts.Filter(name) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}

	w.logger.Debug("Tools directory changed", "file", name, "event", eventType)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.stats.LastEventType = eventType
	w.pending[event.Name] = time.Now()
}

// rewatch re-adds the watch once a removed directory exists again and
// schedules a reload for whatever it now holds.
func (w *Watcher) rewatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lost {
		return
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return
	}
	w.lost = false
	w.stats.Rewatches++
	w.pending[w.dir] = time.Now()
	w.logger.Info("Watching tools directory again", "dir", w.dir)
}

// flush reloads once every pending change is older than the debounce window.
// While the breaker is open the batch stays pending and is retried on a
// later tick.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, at := range w.pending {
		if now.Sub(at) < w.opts.Debounce {
			w.mu.Unlock()
			return
		}
	}
	files := make([]string, 0, len(w.pending))
	for path := range w.pending {
		files = append(files, filepath.Base(path))
	}

	if b := w.opts.Breaker; b != nil && !b.Allow() {
		first := !w.held
		if first {
			w.held = true
			w.stats.Skipped++
		}
		w.mu.Unlock()
		if first {
			w.logger.Warn("Holding reload after repeated failures",
				"files", files,
				"retry_at", b.RetryAt(),
			)
		}
		return
	}
	clear(w.pending)
	w.held = false
	w.mu.Unlock()

	w.logger.Info("Reloading tools", "files", files)
	err := w.reload(ctx)

	w.mu.Lock()
	w.stats.Reloads++
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Reload failed", "error", err)
		if w.opts.Breaker != nil {
			w.opts.Breaker.RecordFailure()
		}
		return
	}
	if w.opts.Breaker != nil {
		w.opts.Breaker.RecordSuccess()
	}
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
