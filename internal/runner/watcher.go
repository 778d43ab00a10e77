package runner

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ricp/internal/logging"
	"ricp/internal/report"
	"ricp/internal/trace"
)

// BundleWatcher watches a directory for trace bundle files and executes a
// control-plane pass on every new or rewritten bundle. Rapid successive
// writes to the same file are debounced.
type BundleWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	runner      *Runner
	dir         string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	onReport    func(*report.RunReport)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewBundleWatcher creates a watcher over dir. onReport receives every
// completed run's report; it must not block for long.
func NewBundleWatcher(dir string, r *Runner, onReport func(*report.RunReport)) (*BundleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &BundleWatcher{
		watcher:     w,
		runner:      r,
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		onReport:    onReport,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled in a goroutine.
func (w *BundleWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	logging.Get(logging.CategoryRunner).Infow("watching bundle directory", "dir", w.dir)
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *BundleWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *BundleWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryRunner)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isBundleFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if w.debounced(ev.Name) {
				continue
			}
			w.handle(ctx, ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("watch error", "err", err)
		}
	}
}

// debounced reports whether the path fired within the debounce window and
// stamps it otherwise.
func (w *BundleWatcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

func (w *BundleWatcher) handle(ctx context.Context, path string) {
	log := logging.Get(logging.CategoryRunner)

	b, err := trace.LoadBundle(path)
	if err != nil {
		log.Warnw("skipping unreadable bundle", "path", path, "err", err)
		return
	}
	rep, err := w.runner.ExecuteRun(ctx, b)
	if err != nil {
		log.Errorw("run failed", "path", path, "run_id", b.RunID, "err", err)
		return
	}
	if w.onReport != nil {
		w.onReport(rep)
	}
}

func isBundleFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
