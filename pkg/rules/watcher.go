package rules

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/getmockd/interceptd/pkg/logging"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads the active rule set whenever its file changes and hands
// the parsed set to a callback. Invalid documents are logged and skipped.
type Watcher struct {
	store    *Store
	onChange func(*RuleSet)
	log      *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher for the active set of store.
func NewWatcher(store *Store, onChange func(*RuleSet), log *slog.Logger) *Watcher {
	return &Watcher{
		store:    store,
		onChange: onChange,
		log:      logging.OrNop(log),
		debounce: DefaultDebounce,
	}
}

// Start begins watching. The rules directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors and atomic saves replace the file.
	if err := fsw.Add(w.store.Dir()); err != nil {
		_ = fsw.Close()
		return err
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.loop(fsw, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.running = false
	doneCh := w.doneCh
	fsw := w.fsw
	w.mu.Unlock()

	<-doneCh
	_ = fsw.Close()
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	active := filepath.Clean(w.store.ActivePath())
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != active || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("rules watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	rs, err := w.store.Active()
	if err != nil {
		w.log.Warn("failed to reload active rule set", "path", w.store.ActivePath(), "error", err)
		return
	}
	w.log.Info("active rule set reloaded", "rules", len(rs.Rules), "fallback", rs.Fallback)
	if w.onChange != nil {
		w.onChange(rs)
	}
}
