package vectorindex

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

const defaultWatchDebounce = 500 * time.Millisecond

// Watcher reloads cached collections when their files change under a local
// blob store root. Events are debounced per collection.
type Watcher struct {
	root     string
	cache    *Cache
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	done    chan struct{}
	once    sync.Once
}

func NewWatcher(root string, cache *Cache) *Watcher {
	return &Watcher{
		root:     filepath.Clean(root),
		cache:    cache,
		debounce: defaultWatchDebounce,
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
}

// Start watches the root and every collection directory below it. It
// returns once the watches are in place; events are handled until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.root); err != nil {
		_ = fw.Close()
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		_ = fw.Close()
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			w.addCollectionDir(fw, filepath.Join(w.root, e.Name()))
		}
	}
	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		for id, t := range w.timers {
			t.Stop()
			delete(w.timers, id)
		}
		if w.watcher != nil {
			_ = w.watcher.Close()
		}
	})
}

func (w *Watcher) addCollectionDir(fw *fsnotify.Watcher, dir string) {
	_ = fw.Add(dir)
	docs := filepath.Join(dir, "docs")
	if info, err := os.Stat(docs); err == nil && info.IsDir() {
		_ = fw.Add(docs)
	}
}

func (w *Watcher) run(ctx context.Context) {
	logger := logutil.GetLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("index watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".tmp-") {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			fw := w.watcher
			w.mu.Unlock()
			if filepath.Dir(ev.Name) == w.root {
				w.addCollectionDir(fw, ev.Name)
			} else if filepath.Base(ev.Name) == "docs" {
				_ = fw.Add(ev.Name)
			}
		}
	}
	id := w.collectionOf(ev.Name)
	if id == "" || !w.cache.Contains(id) {
		return
	}
	w.schedule(ctx, id)
}

// collectionOf maps a path below the root to its collection id.
func (w *Watcher) collectionOf(path string) string {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

func (w *Watcher) schedule(ctx context.Context, collectionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[collectionID]; ok {
		t.Stop()
	}
	w.timers[collectionID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, collectionID)
		w.mu.Unlock()
		logger := logutil.GetLogger(ctx).With(zap.String("collection_id", collectionID))
		err := w.cache.Reload(ctx, collectionID)
		switch {
		case err == nil:
			logger.Info("collection index reloaded after change")
		case appErr.IsCollectionNotFound(err):
			logger.Info("collection removed from cache")
		case errors.Is(err, context.Canceled):
		default:
			logger.Error("reload collection index failed", zap.Error(err))
		}
	})
}
