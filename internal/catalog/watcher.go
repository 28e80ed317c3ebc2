package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Invalidator is implemented by *Cache.
type Invalidator interface {
	Invalidate()
}

// Watcher invalidates a cache when the catalog file changes. It watches the
// parent directory so editors that save via rename are still observed.
type Watcher struct {
	path     string
	target   Invalidator
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// OnInvalidate, when set, runs after each invalidation.
	OnInvalidate func()
}

// NewWatcher creates a Watcher for the catalog file at path.
func NewWatcher(path string, target Invalidator) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: resolve %s", path)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, eris.Wrap(err, "catalog: create watcher")
	}
	return &Watcher{
		path:     filepath.Clean(abs),
		target:   target,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		log:      zap.L().With(zap.String("component", "catalog.watcher")),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return eris.Wrapf(err, "catalog: watch %s", filepath.Dir(w.path))
	}
	w.running = true
	go w.run(ctx)
	w.log.Info("watching catalog file", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit. It is safe to
// call more than once, and without Start.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return eris.Wrap(err, "catalog: close watcher")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

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
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.log.Debug("catalog file event", zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("catalog watcher error", zap.Error(err))
		case <-timerCh:
			timerCh = nil
			w.target.Invalidate()
			w.log.Info("catalog changed, cache invalidated", zap.String("path", w.path))
			if w.OnInvalidate != nil {
				w.OnInvalidate()
			}
		}
	}
}
