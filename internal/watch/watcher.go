// Package watch keeps the reference index current while mapping files are
// edited.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"wmref/internal/crawler"
	"wmref/internal/resolver"
	"wmref/internal/wiremock"
)

// Updater re-indexes one file; index.Indexer satisfies it.
type Updater interface {
	UpdateFile(ctx context.Context, path string) (bool, error)
}

// Watcher watches every mappings tree under a project root. fsnotify is not
// recursive, so each directory is added on its own and new directories are
// picked up as they appear. The directories searched for roots are watched
// too, so a mappings tree created later is found.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	updater     Updater
	crawler     *crawler.Crawler
	root        string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	logger      *zap.Logger

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	Events    int
	Reindexed int
	Errors    int
}

// NewWatcher creates a watcher for projectRoot. A zero debounce uses 300ms.
func NewWatcher(projectRoot string, c *crawler.Crawler, u Updater, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:     fsw,
		updater:     u,
		crawler:     c,
		root:        projectRoot,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
	}, nil
}

// Start registers the mappings directories and runs the event loop in a
// goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	roots, err := w.crawler.WalkRoots(w.root, w.watchDir)
	if err != nil {
		return err
	}
	for _, root := range roots {
		w.addTree(root.Mappings, false)
	}

	go w.run(ctx)
	return nil
}

// Stop ends the event loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) watchDir(dir string) {
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("Failed to watch directory", zap.String("path", dir), zap.Error(err))
		return
	}
	w.logger.Debug("Watching directory", zap.String("path", dir))
}

// addTree watches dir and every directory below it. With enqueue set, the
// mapping files already present are scheduled for re-indexing, since they
// may have been written before the watch was in place.
func (w *Watcher) addTree(dir string, enqueue bool) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if enqueue && resolver.IsMappingFile(path) {
				w.schedule(path)
			}
			return nil
		}
		w.watchDir(path)
		return nil
	})
	if err != nil {
		w.logger.Warn("Failed to walk directory", zap.String("path", dir), zap.Error(err))
	}
}

// discover searches a directory created outside the watched mappings trees
// for new roots.
func (w *Watcher) discover(dir string) {
	if w.crawler.Ignores(filepath.Base(dir)) {
		return
	}
	roots, err := w.crawler.WalkRoots(dir, w.watchDir)
	if err != nil {
		w.logger.Warn("Failed to search for mappings", zap.String("path", dir), zap.Error(err))
		return
	}
	for _, root := range roots {
		w.logger.Info("Watching new mappings directory", zap.String("path", root.Mappings))
		w.addTree(root.Mappings, true)
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	w.stats.Events++
	w.debounceMap[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounceDur / 3)
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
			w.logger.Error("Watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if _, inTree := resolver.FindAncestor(event.Name, wiremock.MappingsDir); inTree {
				w.addTree(event.Name, true)
			} else {
				w.discover(event.Name)
			}
			return
		}
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !resolver.IsMappingFile(event.Name) {
		return
	}

	w.schedule(event.Name)
}

func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var toProcess []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range toProcess {
		changed, err := w.updater.UpdateFile(ctx, path)
		w.mu.Lock()
		if err != nil {
			w.stats.Errors++
		} else if changed {
			w.stats.Reindexed++
		}
		w.mu.Unlock()
		if err != nil {
			w.logger.Warn("Failed to re-index mapping file", zap.String("path", path), zap.Error(err))
			continue
		}
		if changed {
			w.logger.Info("Re-indexed mapping file", zap.String("path", path))
		}
	}
}
