// Package dispatcher implements the quickflux action dispatcher.
//
// A Dispatcher broadcasts typed actions to every registered listener,
// synchronously and in ascending listener-id order. It is the Go rendition of
// the flux "AppDispatcher": one instance per execution context, shared by all
// stores and views that want to observe actions.
//
// # Dispatch cycles
//
// Dispatch runs one cycle per action. At the start of a cycle the dispatcher
// snapshots the ids of all registered listeners into a pending set and then
// invokes them lowest id first. Listeners registered during a cycle are not
// part of it; listeners removed during a cycle are skipped when their turn
// comes.
//
//	d := dispatcher.NewWithDefaults()
//	id := d.AddListener(func(actionType string, payload any) error {
//	    if actionType == "todo.add" {
//	        // update state
//	    }
//	    return nil
//	})
//	d.Dispatch("todo.add", map[string]any{"title": "write docs"})
//	d.RemoveListener(id)
//
// A Dispatch call made while a cycle is running (typically from inside a
// listener) is queued and run after the current cycle, in FIFO order. Cycles
// never interleave.
//
// # Dependencies between listeners
//
// A listener may call WaitFor with the ids of listeners it depends on. When at
// least one of them is still pending, the dispatcher runs every pending
// listener before WaitFor returns:
//
//	storeID := d.AddListener(store.Handle)
//	d.AddListener(func(actionType string, payload any) error {
//	    d.WaitFor(storeID)
//	    return view.Refresh(store)
//	})
//
// WaitFor also emits a "cyclic dependency detected" warning when a requested
// id belongs to a listener that is itself suspended in WaitFor. The check only
// sees listeners that are blocked in their own WaitFor call, so many genuine
// cycles resolve silently instead of being reported.
//
// # Failures
//
// A listener that returns an error, or panics while RecoverFromPanic is set,
// is reported through the logger and the optional ErrorHandler. Remaining
// listeners still run and Dispatch itself never fails.
//
// # Concurrency
//
// A Dispatcher is single-threaded. Re-entrant calls from listeners are
// expected and handled, but calls from several goroutines must be serialized
// by the caller. Nested invocation loops started by WaitFor share one pending
// set and one waiting stack; that sharing is what lets WaitFor pull pending
// listeners forward.
package dispatcher
