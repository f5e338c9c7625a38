package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches rapid saves of script files into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Reloader is what a Watcher drives; *System implements it.
type Reloader interface {
	Reload() error
}

// Watcher reloads a system when files in the watched directories change.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	target   Reloader
	log      *zap.Logger
	debounce time.Duration
	pending  time.Time
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

// NewWatcher creates a watcher over dirs. Nothing happens until Start.
func NewWatcher(target Reloader, log *zap.Logger, dirs ...string) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return &Watcher{
		watcher:  fw,
		target:   target,
		log:      log,
		debounce: DefaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period before a reload. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Start begins watching in a goroutine. It is a no-op when already running.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.log.Error("closing script watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	w.mu.Lock()
	tick := w.debounce / 3
	w.mu.Unlock()
	if tick <= 0 {
		tick = time.Millisecond
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
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("script changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.mu.Lock()
			w.pending = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("script watcher", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

// flush reloads once the last change is older than the debounce period.
func (w *Watcher) flush() {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.mu.Unlock()

	err := w.target.Reload()
	if err != nil {
		w.log.Warn("reload after change failed", zap.Error(err))
	} else {
		w.log.Info("response rules reloaded")
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
