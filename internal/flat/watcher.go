package flat

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/expandinAI/particle/internal/bus"
)

// Watcher turns file-system events on the flat store directory into bus
// notifications, so store instances in other processes observe writes made
// here. It is only needed while the flat backend is authoritative; the
// structured backend is single-writer-per-process.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *bus.Bus
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher publishing to b. Start must be called before
// any events are delivered.
func NewWatcher(b *bus.Bus, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		watcher: watcher,
		bus:     b,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the store directory.
func (w *Watcher) Start(store *Store) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(store.Dir()); err != nil {
		return fmt.Errorf("watch flat store dir %s: %w", store.Dir(), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops the watcher and blocks until the event loop has exited.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if topic, ok := topicFor(event); ok {
				w.bus.Publish(topic)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("flat store watcher error", "error", err)
		}
	}
}

// topicFor maps a collection-file event to its change topic. Temp files
// from in-flight atomic writes are ignored; only the rename onto the final
// name counts as a write.
func topicFor(event fsnotify.Event) (bus.Topic, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	switch filepath.Base(event.Name) {
	case sessionsFile:
		return bus.SessionsChanged, true
	case projectsFile:
		return bus.ProjectsChanged, true
	case kvFile:
		return bus.SettingsChanged, true
	}
	return "", false
}
