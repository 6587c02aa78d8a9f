package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits after the last change before
// rediscovering.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rediscovers tools when a unit directory under one of the
// registry's directories gains a tool.json.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	// rediscovered is signalled after each discovery pass; used by tests.
	rediscovered chan int
}

// Watch starts watching the registry's directories. Directories that do
// not exist are ignored.
func (r *Registry) Watch(debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		registry:     r,
		watcher:      fsw,
		logger:       r.logger.With().Str("component", "registry-watcher").Logger(),
		debounce:     debounce,
		stopCh:       make(chan struct{}),
		rediscovered: make(chan int, 8),
	}

	for _, dir := range r.dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			w.logger.Debug().Str("dir", abs).Msg("Not watching missing directory")
			continue
		}
		w.add(abs)

		// Units that exist now but have no manifest yet.
		entries, _ := os.ReadDir(abs)
		for _, entry := range entries {
			if entry.IsDir() && !isPrivate(entry.Name()) {
				w.add(filepath.Join(abs, entry.Name()))
			}
		}
	}

	go w.run()
	return w, nil
}

func (w *Watcher) add(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn().Err(err).Str("dir", path).Msg("Failed to watch directory")
	}
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Tool watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(event.Name)
	if isPrivate(base) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.add(event.Name)
			// The manifest may have landed before the watch was added.
			if _, err := os.Stat(filepath.Join(event.Name, ManifestFile)); err == nil {
				w.schedule()
			}
			return
		}
	}

	if base == ManifestFile {
		w.logger.Debug().
			Str("file", event.Name).
			Str("op", event.Op.String()).
			Msg("Tool manifest change detected")
		w.schedule()
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.rediscover)
}

func (w *Watcher) rediscover() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	loaded, err := w.registry.Discover(context.Background())
	if err != nil {
		w.logger.Warn().Err(err).Msg("Rediscovery failed")
	}
	w.logger.Info().Int("loaded", loaded).Msg("Rediscovered tools after directory change")

	select {
	case w.rediscovered <- loaded:
	default:
	}
}
