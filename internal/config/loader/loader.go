// Package loader reads configuration sources into nested maps.
//
// Files are parsed as TOML or YAML depending on their extension, and
// environment variables are mapped onto dotted setting paths. Sources are
// combined with DeepMerge, later sources overriding earlier ones.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Loader produces one configuration source as a nested map.
// A source that does not exist yields nil, nil.
type Loader interface {
	Load() (map[string]any, error)
}

// FileSystem reads configuration files. fstest.MapFS satisfies it.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the real file system.
type OSFS struct{}

// ReadFile reads the file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return OSFS{}
}

// File loads a single configuration file in a known format.
type File struct {
	fsys   FileSystem
	path   string
	format *Format
}

// ForPath returns a loader for path, choosing the format by extension.
func ForPath(fsys FileSystem, path string) (*File, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range formats {
		if slices.Contains(f.Extensions, ext) {
			return &File{fsys: fsys, path: path, format: f}, nil
		}
	}
	return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
}

// Format returns the format chosen for the file.
func (f *File) Format() *Format {
	return f.format
}

// Load reads and decodes the file. A missing file yields nil, nil.
func (f *File) Load() (map[string]any, error) {
	data, err := f.fsys.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", f.path, err)
	}
	return f.format.Decode(f.path, data)
}

// DeepMerge merges src into dst and returns dst. Nested maps are merged
// key by key; any other value in src replaces the one in dst.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}
