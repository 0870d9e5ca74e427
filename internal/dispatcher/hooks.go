package dispatcher

// ObserverID identifies a dispatched-notification observer.
type ObserverID int

// DispatchedFunc is notified once per completed cycle, after every listener
// of that cycle has run.
type DispatchedFunc func(actionType string, payload any)

// ErrorHandler is called when a listener fails.
type ErrorHandler func(err *ListenerError)

// CycleHandler is called when WaitFor detects a cyclic dependency.
type CycleHandler func(w CycleWarning)

type observer struct {
	id ObserverID
	fn DispatchedFunc
}

// observerList keeps observers in registration order.
type observerList struct {
	observers []observer
	nextID    ObserverID
}

func newObserverList() *observerList {
	return &observerList{nextID: 1}
}

func (l *observerList) add(fn DispatchedFunc) ObserverID {
	id := l.nextID
	l.nextID++
	l.observers = append(l.observers, observer{id: id, fn: fn})
	return id
}

func (l *observerList) remove(id ObserverID) bool {
	for i, o := range l.observers {
		if o.id == id {
			l.observers = append(l.observers[:i:i], l.observers[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a copy so observers may add or remove observers while
// being notified.
func (l *observerList) snapshot() []observer {
	if len(l.observers) == 0 {
		return nil
	}
	out := make([]observer, len(l.observers))
	copy(out, l.observers)
	return out
}

func (l *observerList) len() int {
	return len(l.observers)
}
