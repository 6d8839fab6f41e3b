package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/toolgate/internal/logging"
	"github.com/opencode-ai/toolgate/internal/policy"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// EngineSetter receives reloaded engines. *permission.Checker implements it.
type EngineSetter interface {
	SetEngine(*policy.Engine)
}

// Watcher reloads the policy layers when a settings or rule file changes.
// A reload that fails to load or compile is logged and the previous engine
// stays in use.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	target    EngineSetter
	debounce  time.Duration
	onReload  func(*Config, error)
	log       zerolog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook is called after every reload attempt with the new
// configuration or the error that kept the old one in place.
func WithReloadHook(fn func(*Config, error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher watches the configuration locations of cfg. Directories that
// do not exist yet are skipped.
func NewWatcher(cfg *Config, target EngineSetter, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:   fw,
		directory: cfg.Directory,
		target:    target,
		debounce:  DefaultDebounce,
		log:       logging.Component("config"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	// Watch directories rather than files so that atomic renames are seen.
	seen := make(map[string]bool)
	for _, dir := range cfg.WatchPaths() {
		dir = filepath.Clean(dir)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
		w.log.Debug().Str("dir", dir).Msg("watching configuration")
	}
	return w, nil
}

// Start begins watching for changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// relevant reports whether ev touches a settings or rule file.
func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if _, ok := policy.FormatFor(ev.Name); ok {
		return true
	}
	return false
}

// Reload loads every layer again and swaps the engine if the result is valid.
func (w *Watcher) Reload() {
	cfg, err := Load(w.directory)
	var engine *policy.Engine
	if err == nil {
		engine, err = cfg.Engine()
	}
	if err != nil {
		w.log.Error().Err(err).Msg("policy reload failed, keeping previous rules")
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}

	w.target.SetEngine(engine)
	w.log.Info().Int("sources", len(cfg.Sources)).Msg("policy reloaded")
	if w.onReload != nil {
		w.onReload(cfg, nil)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
