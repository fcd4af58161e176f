package bulk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must be quiet before it is processed
const DefaultSettle = 500 * time.Millisecond

// Watcher processes supported files dropped into an inbox directory
type Watcher struct {
	pipeline *Pipeline
	dir      string
	columns  []string
	settle   time.Duration
	logger   *zap.Logger

	// OnResult is called after each processed file
	OnResult func(*Result, error)

	mu      sync.Mutex
	pending map[string]time.Time
	done    map[string]bool
}

// NewWatcher creates a watcher for dir. Columns applies to every file.
func NewWatcher(pipeline *Pipeline, dir string, columns []string, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		pipeline: pipeline,
		dir:      dir,
		columns:  columns,
		settle:   DefaultSettle,
		logger:   logger.With(zap.String("component", "bulk.watch"), zap.String("dir", dir)),
		pending:  make(map[string]time.Time),
		done:     make(map[string]bool),
	}
}

// SetSettle changes the quiet period before a file is processed
func (w *Watcher) SetSettle(d time.Duration) {
	w.settle = d
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("failed to stat inbox: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox is not a directory: %s", w.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.logger.Info("Watching inbox", zap.Duration("settle", w.settle))

	tick := w.settle / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Inbox watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))

		case now := <-ticker.C:
			for _, path := range w.ready(now) {
				if ctx.Err() != nil {
					return nil
				}
				w.process(ctx, path)
			}
		}
	}
}

// accepts reports whether a path is an input the watcher should scan
func (w *Watcher) accepts(path string) bool {
	if DetectFileFormat(path) == FormatUnknown {
		return false
	}
	if w.pipeline.IsOutput(path) {
		return false
	}
	name := filepath.Base(path)
	return name != "" && name[0] != '.'
}

func (w *Watcher) touch(path string) {
	if !w.accepts(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done[path] {
		return
	}
	w.pending[path] = time.Now()
}

// ready returns pending files that have been quiet for the settle period
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var paths []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			paths = append(paths, path)
			delete(w.pending, path)
			w.done[path] = true
		}
	}
	return paths
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.logger.Info("Processing inbox file", zap.String("file", path))
	result, err := w.pipeline.ProcessFile(ctx, path, w.columns)
	if err != nil {
		w.logger.Error("Inbox file failed", zap.String("file", path), zap.Error(err))
	}
	if w.OnResult != nil {
		w.OnResult(result, err)
	}
}
