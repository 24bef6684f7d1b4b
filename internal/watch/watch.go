// Package watch drives continuous re-analysis. A recursive fsnotify
// watcher collects changed source files and flushes them as a debounced
// batch to a handler, so a burst of editor saves triggers one pass.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/yaverlabs/devmind/internal/analyzer"
	"github.com/yaverlabs/devmind/internal/config"
	"github.com/yaverlabs/devmind/internal/logging"
)

var tracer = otel.Tracer("devmind/watch")

// ErrWatcherClosed indicates Start was called on a closed watcher.
var ErrWatcherClosed = errors.New("watcher closed")

const defaultDebounce = 500 * time.Millisecond

// Handler receives one debounced batch of changed files, as paths
// relative to the watched root.
type Handler func(ctx context.Context, paths []string)

// Watcher watches a repository tree for source file changes.
type Watcher struct {
	root     string
	debounce time.Duration
	skipDirs map[string]bool
	handler  Handler
	logger   *logging.Logger
	fsw      *fsnotify.Watcher
	stop     chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	closed  bool
}

// New builds a watcher over root. skipDirs are directory basenames that
// are never descended into, matching the analyzer's skip list.
func New(root string, cfg config.WatchConfig, skipDirs []string, handler Handler, logger *logging.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch handler required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("checking watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	debounce := cfg.Debounce.Duration()
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	skip := make(map[string]bool, len(skipDirs))
	for _, d := range skipDirs {
		skip[d] = true
	}

	return &Watcher{
		root:     abs,
		debounce: debounce,
		skipDirs: skip,
		handler:  handler,
		logger:   logger,
		fsw:      fsw,
		stop:     make(chan struct{}),
		pending:  map[string]struct{}{},
	}, nil
}

// Start registers the directory tree and begins dispatching batches in
// a background goroutine. Stop or context cancellation ends it.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "watch.Start")
	defer span.End()

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWatcherClosed
	}

	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("registering watch tree: %w", err)
	}

	w.logger.Info(ctx, "watching repository",
		zap.String("root", w.root),
		zap.Duration("debounce", w.debounce),
	)
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the inotify handles.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.stop)
	if w.timer != nil {
		w.timer.Stop()
	}
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && w.skipDirs[filepath.Base(path)] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.excluded(event.Name) {
		return
	}

	// New directories join the watch tree so nested creates are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn(ctx, "watching new directory failed",
					zap.String("path", event.Name), zap.Error(err))
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	if _, ok := analyzer.DetectLanguage(rel); !ok {
		return
	}
	w.enqueue(ctx, rel)
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range splitPath(rel) {
		if w.skipDirs[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(ctx context.Context, rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.flush(ctx)
	})
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if w.closed || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = map[string]struct{}{}
	w.mu.Unlock()

	sort.Strings(paths)
	w.logger.Debug(ctx, "dispatching changed files", zap.Strings("paths", paths))
	w.handler(ctx, paths)
}

func splitPath(rel string) []string {
	return strings.Split(rel, string(filepath.Separator))
}
