package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func waitForEvent(t *testing.T, w *FSNotifyWatcher, path string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event := <-w.Events():
			if event.Path == path {
				return event
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event on %s", path)
			return Event{}
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFSNotifyWatcher_WatchFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "stores.lua")
	other := filepath.Join(dir, "other.lua")
	writeFile(t, target, "-- v1")
	writeFile(t, other, "-- v1")

	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch(target); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, other, "-- v2")
	writeFile(t, target, "-- v2")

	abs, _ := filepath.Abs(target)
	event := waitForEvent(t, w, abs)
	if !event.Op.Has(OpWrite) && !event.Op.Has(OpCreate) {
		t.Errorf("event.Op = %v, want WRITE or CREATE", event.Op)
	}

	// The sibling shares the directory but is not a target.
	for {
		select {
		case event := <-w.Events():
			if filepath.Base(event.Path) == "other.lua" {
				t.Errorf("unexpected event for unwatched file: %+v", event)
			}
			continue
		default:
		}
		break
	}
}

func TestFSNotifyWatcher_DirectoryPatterns(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFSNotifyWatcher(WithPatterns("*.lua"))
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	luaPath := filepath.Join(dir, "new.lua")
	writeFile(t, luaPath, "x")

	abs, _ := filepath.Abs(luaPath)
	waitForEvent(t, w, abs)
}

func TestFSNotifyWatcher_WatchErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lua")
	b := filepath.Join(dir, "b.lua")
	writeFile(t, a, "")
	writeFile(t, b, "")

	w, err := NewFSNotifyWatcher()
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher() error = %v", err)
	}

	if err := w.Watch(filepath.Join(dir, "missing.lua")); !errors.Is(err, ErrPathNotExist) {
		t.Errorf("Watch(missing) error = %v, want ErrPathNotExist", err)
	}
	for _, p := range []string{a, b} {
		if err := w.Watch(p); err != nil {
			t.Fatalf("Watch(%s) error = %v", p, err)
		}
	}
	if err := w.Watch(a); !errors.Is(err, ErrAlreadyWatching) {
		t.Errorf("second Watch() error = %v, want ErrAlreadyWatching", err)
	}

	absA, _ := filepath.Abs(a)
	absB, _ := filepath.Abs(b)
	if got, want := w.WatchedPaths(), []string{absA, absB}; !reflect.DeepEqual(got, want) {
		t.Errorf("WatchedPaths() = %v, want %v", got, want)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Watch(dir); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Watch() after Close() error = %v, want ErrWatcherClosed", err)
	}
}

func TestDebouncedFSNotify(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lua")
	b := filepath.Join(dir, "b.lua")
	writeFile(t, a, "-- v1")
	writeFile(t, b, "-- v1")

	w, err := NewFSNotifyWatcher(WithPatterns("*.lua"))
	if err != nil {
		t.Fatalf("NewFSNotifyWatcher() error = %v", err)
	}
	for _, p := range []string{a, b} {
		if err := w.Watch(p); err != nil {
			t.Fatalf("Watch(%s) error = %v", p, err)
		}
	}
	d := NewDebouncer(w, 200*time.Millisecond)
	defer d.Close()

	writeFile(t, a, "-- v2")
	writeFile(t, b, "-- v2")
	writeFile(t, a, "-- v3")

	batch := nextBatch(t, d)
	if len(batch.Paths) != 2 {
		t.Errorf("Paths = %v, want both scripts in one batch", batch.Paths)
	}
}
