package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// eventBuffer is the capacity of the event and error channels.
const eventBuffer = 64

var fsOps = []struct {
	fs fsnotify.Op
	op Op
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpWrite},
	{fsnotify.Remove, OpRemove},
	{fsnotify.Rename, OpRename},
	{fsnotify.Chmod, OpChmod},
}

// FSNotifyWatcher reports changes to watched files and directories.
//
// A file is watched through its parent directory, so an editor that saves
// by renaming a temporary file over the original keeps producing events.
type FSNotifyWatcher struct {
	fsw      *fsnotify.Watcher
	patterns []string

	mu      sync.RWMutex
	targets map[string]struct{}
	dirs    map[string]struct{}
	closed  bool

	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFSNotifyWatcher starts a watcher with nothing watched yet.
func NewFSNotifyWatcher(opts ...Option) (*FSNotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &FSNotifyWatcher{
		fsw:     fsw,
		targets: make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
		events:  make(chan Event, eventBuffer),
		errors:  make(chan error, eventBuffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch adds a file, or a directory whose direct children are reported.
func (w *FSNotifyWatcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrPathNotExist, path)
	}
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.targets[abs]; ok {
		return ErrAlreadyWatching
	}

	dir := abs
	if !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	if _, ok := w.dirs[dir]; !ok {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	w.targets[abs] = struct{}{}
	return nil
}

// WatchedPaths returns the watched paths, sorted.
func (w *FSNotifyWatcher) WatchedPaths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	paths := make([]string, 0, len(w.targets))
	for p := range w.targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Events returns the change channel. It is closed by Close.
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel. It is closed by Close.
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher. It is safe to call more than once.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

func (w *FSNotifyWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if e, ok := w.convert(ev); ok {
				w.send(e)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// convert maps an fsnotify event to an Event for a watched target.
func (w *FSNotifyWatcher) convert(ev fsnotify.Event) (Event, bool) {
	var op Op
	for _, m := range fsOps {
		if ev.Has(m.fs) {
			op |= m.op
		}
	}
	if op == 0 {
		return Event{}, false
	}

	name, err := filepath.Abs(ev.Name)
	if err != nil || !matchesAny(w.patterns, name) {
		return Event{}, false
	}

	w.mu.RLock()
	_, file := w.targets[name]
	_, inDir := w.targets[filepath.Dir(name)]
	w.mu.RUnlock()
	if !file && !inDir {
		return Event{}, false
	}
	return Event{Path: name, Op: op, Time: time.Now()}, true
}

// send delivers e, or reports the drop when the consumer is behind.
func (w *FSNotifyWatcher) send(e Event) {
	select {
	case w.events <- e:
	default:
		select {
		case w.errors <- fmt.Errorf("event buffer full, dropped %s on %s", e.Op, e.Path):
		default:
		}
	}
}

var _ Source = (*FSNotifyWatcher)(nil)
