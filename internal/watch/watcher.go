// Package watch turns changes made outside the process into change events,
// so open listing sessions refresh when another program touches their
// directory.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/notify"
)

// DefaultDebounce applies when New is given a non-positive interval.
const DefaultDebounce = 200 * time.Millisecond

// Publisher receives the affected paths of external changes.
type Publisher interface {
	Publish(notify.Event)
}

// Watcher watches directories with fsnotify and publishes, once per quiet
// period, the affected paths of each changed directory. Watches are
// reference counted so several sessions can share one directory.
type Watcher struct {
	watcher  *fsnotify.Watcher
	pub      Publisher
	debounce time.Duration

	mu       sync.Mutex
	watching map[string]int // path -> reference count

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a watcher publishing to pub.
func New(pub Publisher, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	dw := &Watcher{
		watcher:  w,
		pub:      pub,
		debounce: debounce,
		watching: make(map[string]int),
		done:     make(chan struct{}),
	}
	dw.wg.Add(1)
	go dw.run()
	return dw, nil
}

// run processes filesystem events with debouncing
func (w *Watcher) run() {
	defer w.wg.Done()
	log := logging.Named("watch")

	// Debounce: track last event time per directory
	lastEvent := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.debounce/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
				continue
			}

			changed := filepath.Clean(event.Name)
			parent := filepath.Dir(changed)
			w.mu.Lock()
			switch {
			case w.watching[parent] > 0:
				lastEvent[parent] = time.Now()
				debug.Log(debug.WATCH, "event: %s on %s (parent: %s)", event.Op, changed, parent)
			case w.watching[changed] > 0:
				// The watched directory itself changed, e.g. was removed.
				lastEvent[changed] = time.Now()
				debug.Log(debug.WATCH, "event: %s on watched dir %s", event.Op, changed)
			}
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify error", logging.Err(err))

		case now := <-ticker.C:
			for dir, last := range lastEvent {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(lastEvent, dir)
				debug.Log(debug.WATCH, "publishing change of %s", dir)
				w.pub.Publish(notify.Affected(dir))
			}
		}
	}
}

// Watch adds a reference to path, starting to watch it on the first one.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching[path] > 0 {
		w.watching[path]++
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	w.watching[path] = 1
	debug.Log(debug.WATCH, "now watching directory: %s", path)
	return nil
}

// Unwatch drops a reference to path and stops watching it with the last one.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()

	switch n := w.watching[path]; {
	case n == 0:
		return
	case n > 1:
		w.watching[path] = n - 1
		return
	}

	if err := w.watcher.Remove(path); err != nil {
		// The path may already be gone.
		debug.Log(debug.WATCH, "error unwatching %s: %v", path, err)
	}
	delete(w.watching, path)
	debug.Log(debug.WATCH, "stopped watching directory: %s", path)
}

// Refs returns the number of references held on path.
func (w *Watcher) Refs(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching[filepath.Clean(path)]
}

// Close shuts down the watcher
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
