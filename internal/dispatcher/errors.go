package dispatcher

import (
	"errors"
	"fmt"
)

// Dispatcher errors.
var (
	// ErrCyclicDependency is reported when WaitFor names a listener that is
	// itself suspended in WaitFor.
	ErrCyclicDependency = errors.New("dispatcher: cyclic dependency detected")

	// ErrListenerPanic wraps the value recovered from a panicking listener.
	ErrListenerPanic = errors.New("dispatcher: listener panic")
)

// ListenerError describes a listener that failed while handling an action.
type ListenerError struct {
	// ID is the failing listener.
	ID ListenerID

	// ActionType is the type of the action being handled.
	ActionType string

	// Err is the error returned by the listener, or an ErrListenerPanic
	// wrapper when it panicked.
	Err error

	// Panicked is true if the listener panicked.
	Panicked bool

	// Stack is the stack trace captured at the point of panic.
	Stack []byte
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("dispatcher: listener %d failed handling %q: %v", e.ID, e.ActionType, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// CycleWarning describes a WaitFor call that named a listener which was
// itself waiting.
type CycleWarning struct {
	// ActionType is the type of the action being dispatched.
	ActionType string

	// Listener is the listener that called WaitFor.
	Listener ListenerID

	// WaitingOn holds the ids passed to WaitFor.
	WaitingOn []ListenerID

	// Waiting is the waiting stack at detection time, outermost first.
	Waiting []ListenerID
}

// Err returns the warning as an error wrapping ErrCyclicDependency.
func (w CycleWarning) Err() error {
	return fmt.Errorf("%w: listener %d waits on %v while %v are waiting", ErrCyclicDependency, w.Listener, w.WaitingOn, w.Waiting)
}
