package loader

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format struct {
	Name       string
	Extensions []string

	unmarshal func(data []byte, v any) error
	position  func(err error) (line, column int)
}

// Supported formats.
var (
	TOML = &Format{
		Name:       "toml",
		Extensions: []string{".toml"},
		unmarshal:  toml.Unmarshal,
		position:   tomlPosition,
	}
	YAML = &Format{
		Name:       "yaml",
		Extensions: []string{".yaml", ".yml"},
		unmarshal:  yaml.Unmarshal,
		position:   yamlPosition,
	}

	formats = []*Format{TOML, YAML}
)

// Decode parses data read from source into a map. An empty document yields
// an empty map. Syntax errors are returned as *ParseError.
func (f *Format) Decode(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := f.unmarshal(data, &m); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		perr.Line, perr.Column = f.position(err)
		return nil, perr
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func tomlPosition(err error) (int, int) {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		return derr.Position()
	}
	return 0, 0
}

// yaml.v3 only reports positions inside its messages, e.g.
// "yaml: line 3: did not find expected key".
var yamlLine = regexp.MustCompile(`line (\d+)`)

func yamlPosition(err error) (int, int) {
	m := yamlLine.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, 0
	}
	line, _ := strconv.Atoi(m[1])
	return line, 0
}

// ParseError reports a configuration source that could not be decoded.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
