package dispatcher

import (
	"slices"
)

// ListenerID identifies a registered listener.
// Ids start at 1 and are never reused.
type ListenerID int

// Listener handles one action. A non-nil error marks the call as failed;
// the failure is reported and the cycle continues.
type Listener func(actionType string, payload any) error

// registry maps listener ids to callbacks and hands out ids.
type registry struct {
	listeners map[ListenerID]Listener
	nextID    ListenerID
}

func newRegistry() *registry {
	return &registry{
		listeners: make(map[ListenerID]Listener),
		nextID:    1,
	}
}

// add stores l under a fresh id.
func (r *registry) add(l Listener) ListenerID {
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return id
}

// remove deletes the listener, reporting whether it was present.
func (r *registry) remove(id ListenerID) bool {
	if _, ok := r.listeners[id]; !ok {
		return false
	}
	delete(r.listeners, id)
	return true
}

func (r *registry) get(id ListenerID) (Listener, bool) {
	l, ok := r.listeners[id]
	return l, ok
}

func (r *registry) has(id ListenerID) bool {
	_, ok := r.listeners[id]
	return ok
}

func (r *registry) len() int {
	return len(r.listeners)
}

// ids returns all registered ids in ascending order.
func (r *registry) ids() []ListenerID {
	ids := make([]ListenerID, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// pendingSet holds the listeners not yet invoked in the running cycle.
// It is filled from an ascending snapshot and only ever shrinks from the
// front, so a sorted slice gives O(log n) membership and O(1) pop.
type pendingSet struct {
	ids []ListenerID
}

// reset replaces the set with a sorted snapshot.
func (p *pendingSet) reset(sorted []ListenerID) {
	p.ids = sorted
}

func (p *pendingSet) clear() {
	p.ids = nil
}

func (p *pendingSet) empty() bool {
	return len(p.ids) == 0
}

func (p *pendingSet) len() int {
	return len(p.ids)
}

func (p *pendingSet) contains(id ListenerID) bool {
	_, found := slices.BinarySearch(p.ids, id)
	return found
}

// popMin removes and returns the smallest pending id.
// Callers must check empty first.
func (p *pendingSet) popMin() ListenerID {
	id := p.ids[0]
	p.ids = p.ids[1:]
	return id
}
