package analyzer

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/unit"
)

// DefaultDebounce collapses the burst of events editors emit per save.
const DefaultDebounce = 500 * time.Millisecond

// ApplyFunc receives a freshly loaded taxonomy.
type ApplyFunc func(Taxonomy) error

// ConfigureThrough returns an ApplyFunc that reconfigures the unit
// registered under name.
func ConfigureThrough(reg *unit.Registry, name string) ApplyFunc {
	return func(t Taxonomy) error {
		return reg.Configure(name, unit.Options{"taxonomy": t})
	}
}

// TaxonomyWatcher reloads a taxonomy file when it changes.
//
// The parent directory is watched rather than the file, so saves that
// replace the file (write to temp, rename) are seen too.
type TaxonomyWatcher struct {
	path     string
	apply    ApplyFunc
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	timer    *time.Timer
	reloads  int
	lastErr  error
	done     chan struct{}
	stopOnce sync.Once
}

// NewTaxonomyWatcher creates a watcher for path. Call Start to begin.
func NewTaxonomyWatcher(path string, apply ApplyFunc, log *zap.SugaredLogger) (*TaxonomyWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve taxonomy path %s", path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to watch taxonomy directory %s", filepath.Dir(abs))
	}

	return &TaxonomyWatcher{
		path:     abs,
		apply:    apply,
		watcher:  w,
		debounce: DefaultDebounce,
		logger:   logger.OrNop(log),
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the debounce period. Call before Start.
func (tw *TaxonomyWatcher) SetDebounce(d time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.debounce = d
}

// Start begins watching in a background goroutine.
func (tw *TaxonomyWatcher) Start() {
	go tw.watchLoop()
}

func (tw *TaxonomyWatcher) watchLoop() {
	for {
		select {
		case <-tw.done:
			return

		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != tw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			tw.logger.Debugw("Taxonomy watcher detected change",
				logger.FieldFile, event.Name,
				"op", event.Op.String())
			tw.scheduleReload()

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.logger.Warnw("Taxonomy watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (tw *TaxonomyWatcher) scheduleReload() {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timer != nil {
		tw.timer.Stop()
	}
	tw.timer = time.AfterFunc(tw.debounce, func() {
		if err := tw.Reload(); err != nil {
			tw.logger.Errorw("Taxonomy reload failed",
				logger.FieldFile, tw.path,
				logger.FieldError, err)
		}
	})
}

// Reload loads the file and hands it to the apply function. A file that
// fails to load or validate leaves the active taxonomy untouched.
func (tw *TaxonomyWatcher) Reload() error {
	t, err := LoadTaxonomy(tw.path)
	if err == nil {
		err = tw.apply(t)
	}

	tw.mu.Lock()
	tw.lastErr = err
	if err == nil {
		tw.reloads++
	}
	tw.mu.Unlock()

	if err != nil {
		return err
	}
	tw.logger.Infow("Taxonomy reloaded",
		logger.FieldFile, tw.path,
		"categories", len(t.Categories))
	return nil
}

// Stats returns the number of successful reloads and the last reload error.
func (tw *TaxonomyWatcher) Stats() (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.reloads, tw.lastErr
}

// Stop stops watching for changes.
func (tw *TaxonomyWatcher) Stop() error {
	var err error
	tw.stopOnce.Do(func() {
		close(tw.done)
		tw.mu.Lock()
		if tw.timer != nil {
			tw.timer.Stop()
		}
		tw.mu.Unlock()
		err = tw.watcher.Close()
	})
	return err
}
