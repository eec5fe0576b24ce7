package routing

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a keyword file into a Router when it changes.
type Watcher struct {
	path     string
	router   *Router
	debounce time.Duration
	logger   zerolog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Path     string
	Router   *Router
	Debounce time.Duration
	Logger   zerolog.Logger
}

// NewWatcher creates a watcher. It does not load the file; call Start.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("keywords file path is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultReloadDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("invalid keywords file path: %w", err)
	}

	return &Watcher{
		path:     path,
		router:   cfg.Router,
		debounce: cfg.Debounce,
		logger:   cfg.Logger.With().Str("component", "keyword_watcher").Logger(),
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start loads the file once and watches it for changes. The parent directory is watched
// so that editors replacing the file by rename are seen.
func (w *Watcher) Start() error {
	if err := w.router.LoadKeywordsFile(w.path); err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Keyword watcher started")
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		w.logger.Info().Msg("Keyword watcher stopped")
	})
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule coalesces bursts of events into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.router.LoadKeywordsFile(w.path); err != nil {
			w.logger.Warn().Err(err).Str("path", w.path).Msg("Keyword reload failed, keeping current policy")
		}
	})
}
