// Package watcher tells the run command when its scripts change.
//
// An FSNotifyWatcher reports raw changes to watched script files. A
// Debouncer sits on top of it and turns a burst of changes, such as an
// editor saving several files or writing one file in steps, into a single
// Batch. Each Batch is one reload.
package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/match"
)

// Watcher errors.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op is a set of file operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

var opNames = [...]string{"CREATE", "WRITE", "REMOVE", "RENAME", "CHMOD"}

// String joins the names of the operations in op with "|".
func (op Op) String() string {
	var names []string
	for i, name := range opNames {
		if op.Has(1 << i) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, "|")
}

// Has reports whether op includes every operation in o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is one change to a watched script.
type Event struct {
	// Path is absolute.
	Path string
	Op   Op
	Time time.Time
}

// Source delivers change events. FSNotifyWatcher is the production source.
type Source interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// Option configures an FSNotifyWatcher.
type Option func(*FSNotifyWatcher)

// WithPatterns restricts events to files whose base name matches one of
// the glob patterns, e.g. "*.lua".
func WithPatterns(patterns ...string) Option {
	return func(w *FSNotifyWatcher) {
		w.patterns = append(w.patterns, patterns...)
	}
}

// matchesAny reports whether the base name of path matches a pattern.
// No patterns matches everything.
func matchesAny(patterns []string, path string) bool {
	if len(patterns) == 0 {
		return true
	}
	base := filepath.Base(path)
	for _, p := range patterns {
		if match.Match(base, p) {
			return true
		}
	}
	return false
}
