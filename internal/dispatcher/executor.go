package dispatcher

import (
	"fmt"
	"runtime/debug"
	"time"
)

// outcome is the result of running one listener.
type outcome struct {
	err        error
	panicked   bool
	panicValue any
	stack      []byte
	duration   time.Duration
}

func (o outcome) failed() bool {
	return o.err != nil || o.panicked
}

// executor runs listeners and observers with optional panic recovery and
// timing.
type executor struct {
	recover bool
}

// run invokes l with the action and captures its outcome.
func (e executor) run(l Listener, a Action) (out outcome) {
	start := time.Now()

	if e.recover {
		defer func() {
			out.duration = time.Since(start)
			if r := recover(); r != nil {
				out.panicked = true
				out.panicValue = r
				out.stack = debug.Stack()
				out.err = fmt.Errorf("%w: %v", ErrListenerPanic, r)
			}
		}()
	}

	out.err = l(a.Type, a.Payload)
	out.duration = time.Since(start)
	return out
}

// notify invokes an observer, returning the recovered panic value if any.
func (e executor) notify(fn DispatchedFunc, a Action) (panicValue any) {
	if e.recover {
		defer func() {
			panicValue = recover()
		}()
	}
	fn(a.Type, a.Payload)
	return nil
}
