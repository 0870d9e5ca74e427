package watcher

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeSource is a Source driven by the test.
type fakeSource struct {
	events chan Event
	errors chan error

	mu     sync.Mutex
	closed bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan Event, 16),
		errors: make(chan error, 16),
	}
}

func (f *fakeSource) Events() <-chan Event { return f.events }
func (f *fakeSource) Errors() <-chan error { return f.errors }

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSource) send(path string, op Op) {
	f.events <- Event{Path: path, Op: op, Time: time.Now()}
}

func nextBatch(t *testing.T, d *Debouncer) Batch {
	t.Helper()
	select {
	case b, ok := <-d.Batches():
		if !ok {
			t.Fatal("Batches() closed")
		}
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch")
		return Batch{}
	}
}

func noBatch(t *testing.T, d *Debouncer, wait time.Duration) {
	t.Helper()
	select {
	case b := <-d.Batches():
		t.Errorf("unexpected batch %+v", b)
	case <-time.After(wait):
	}
}

func TestDebouncer_FoldsBurstIntoOneBatch(t *testing.T) {
	src := newFakeSource()
	d := NewDebouncer(src, 30*time.Millisecond)
	defer d.Close()

	src.send("/s/views.lua", OpWrite)
	src.send("/s/stores.lua", OpCreate)
	src.send("/s/views.lua", OpChmod)

	b := nextBatch(t, d)
	if want := []string{"/s/stores.lua", "/s/views.lua"}; !reflect.DeepEqual(b.Paths, want) {
		t.Errorf("Paths = %v, want %v", b.Paths, want)
	}
	if b.Op != OpCreate|OpWrite|OpChmod {
		t.Errorf("Op = %v, want CREATE|WRITE|CHMOD", b.Op)
	}
	if b.Events != 3 {
		t.Errorf("Events = %d, want 3", b.Events)
	}
	noBatch(t, d, 100*time.Millisecond)
}

func TestDebouncer_MergesWhileConsumerBusy(t *testing.T) {
	src := newFakeSource()
	d := NewDebouncer(src, 10*time.Millisecond)
	defer d.Close()

	// Both batches close before anything is received.
	src.send("/s/a.lua", OpWrite)
	time.Sleep(100 * time.Millisecond)
	src.send("/s/b.lua", OpWrite)
	time.Sleep(100 * time.Millisecond)

	b := nextBatch(t, d)
	if want := []string{"/s/a.lua", "/s/b.lua"}; !reflect.DeepEqual(b.Paths, want) {
		t.Errorf("Paths = %v, want %v", b.Paths, want)
	}
	if b.Events != 2 {
		t.Errorf("Events = %d, want 2", b.Events)
	}
	noBatch(t, d, 50*time.Millisecond)
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	src := newFakeSource()
	d := NewDebouncer(src, 10*time.Millisecond)
	defer d.Close()

	src.send("/s/a.lua", OpWrite)
	if b := nextBatch(t, d); len(b.Paths) != 1 || b.Paths[0] != "/s/a.lua" {
		t.Errorf("first batch = %+v, want /s/a.lua", b)
	}

	src.send("/s/a.lua", OpRemove)
	if b := nextBatch(t, d); b.Op != OpRemove {
		t.Errorf("second batch Op = %v, want REMOVE", b.Op)
	}
}

func TestDebouncer_ForwardsErrors(t *testing.T) {
	src := newFakeSource()
	d := NewDebouncer(src, time.Hour)
	defer d.Close()

	src.errors <- ErrPathNotExist

	select {
	case err := <-d.Errors():
		if !errors.Is(err, ErrPathNotExist) {
			t.Errorf("error = %v, want ErrPathNotExist", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error")
	}
}

func TestDebouncer_Close(t *testing.T) {
	src := newFakeSource()
	d := NewDebouncer(src, time.Hour)

	src.send("/s/a.lua", OpWrite)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !src.isClosed() {
		t.Error("Close() should close the source")
	}
	if _, ok := <-d.Batches(); ok {
		t.Error("Batches() should be closed after Close()")
	}
	if _, ok := <-d.Errors(); ok {
		t.Error("Errors() should be closed after Close()")
	}
}

func TestBatchInsertKeepsPathsSortedAndUnique(t *testing.T) {
	var b Batch
	for _, p := range []string{"c", "a", "b", "a", "c"} {
		b.add(Event{Path: p, Op: OpWrite})
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(b.Paths, want) {
		t.Errorf("Paths = %v, want %v", b.Paths, want)
	}
	if b.Events != 5 {
		t.Errorf("Events = %d, want 5", b.Events)
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpWrite | OpChmod, "WRITE|CHMOD"},
		{0, "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{nil, "/x/any.txt", true},
		{[]string{"*.lua"}, "/x/stores.lua", true},
		{[]string{"*.lua"}, "/x/stores.lua.swp", false},
		{[]string{"*.lua", "*.toml"}, "/x/quickflux.toml", true},
		{[]string{"store_?.lua"}, "/x/store_a.lua", true},
	}

	for _, tt := range tests {
		if got := matchesAny(tt.patterns, tt.path); got != tt.want {
			t.Errorf("matchesAny(%v, %q) = %v, want %v", tt.patterns, tt.path, got, tt.want)
		}
	}
}
