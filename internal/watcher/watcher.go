package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// IngestFunc receives the base name and full content of a settled file.
type IngestFunc func(ctx context.Context, name string, data []byte) error

// FolderWatcher feeds PDFs dropped into a directory to an IngestFunc. Each
// path is handled once its writes have been quiet for the debounce period.
type FolderWatcher struct {
	dir      string
	ingest   IngestFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

func New(dir string, ingest IngestFunc, debounce time.Duration) (*FolderWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &FolderWatcher{
		dir:      dir,
		ingest:   ingest,
		debounce: debounce,
		watcher:  w,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start ingests the PDFs already present and then follows the directory
// until ctx is done.
func (w *FolderWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && isPDF(entry.Name()) {
			w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *FolderWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	logger := logutil.GetLogger(ctx).With(zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isPDF(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watch folder error", zap.Error(err))
		}
	}
}

// schedule (re)arms the debounce timer for path. Every armed callback is
// counted in wg so Stop can wait for an ingest already under way.
func (w *FolderWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		closed := w.closed
		w.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	})
	w.timers[path] = t
}

func (w *FolderWatcher) process(ctx context.Context, path string) {
	logger := logutil.GetLogger(ctx).With(zap.String("file", path))
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("read watched file failed", zap.Error(err))
		return
	}
	if err := w.ingest(ctx, filepath.Base(path), data); err != nil {
		logger.Error("ingest watched file failed", zap.Error(err))
	}
}

func (w *FolderWatcher) Stop() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
