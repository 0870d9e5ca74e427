package script

import (
	"errors"

	lua "github.com/yuin/gopher-lua"
)

// Errors for Lua state operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when execution times out.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrNoDispatcher is returned when a host is created without a dispatcher.
	ErrNoDispatcher = errors.New("no dispatcher to bind")
)

// ScriptError is a failure raised by Lua code, either with error(...) or by
// returning nil/false followed by a message.
type ScriptError struct {
	// Message is the error value as Lua reports it, usually "source:line: text".
	Message string

	// Traceback is the Lua stack trace, when available.
	Traceback string

	// Cause is the underlying gopher-lua error, if any.
	Cause error
}

func (e *ScriptError) Error() string {
	return "lua: " + e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// newScriptError converts a PCall error into a ScriptError.
func newScriptError(err error) *ScriptError {
	se := &ScriptError{Message: err.Error(), Cause: err}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if apiErr.Object != nil {
			se.Message = apiErr.Object.String()
		}
		se.Traceback = apiErr.StackTrace
	}
	return se
}
