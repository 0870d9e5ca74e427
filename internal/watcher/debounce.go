package watcher

import (
	"sort"
	"sync"
	"time"
)

// Batch is every change seen between two quiet periods.
type Batch struct {
	// Paths are the changed files, sorted and without duplicates.
	Paths []string
	// Op is the union of all operations in the batch.
	Op Op
	// Events is the number of raw events folded into the batch.
	Events int
}

func (b *Batch) add(e Event) {
	b.insert(e.Path)
	b.Op |= e.Op
	b.Events++
}

func (b *Batch) merge(o *Batch) {
	for _, p := range o.Paths {
		b.insert(p)
	}
	b.Op |= o.Op
	b.Events += o.Events
}

func (b *Batch) insert(path string) {
	i := sort.SearchStrings(b.Paths, path)
	if i < len(b.Paths) && b.Paths[i] == path {
		return
	}
	b.Paths = append(b.Paths, "")
	copy(b.Paths[i+1:], b.Paths[i:])
	b.Paths[i] = path
}

// Debouncer folds events from a Source into batches. A batch is closed once
// no event has arrived for the delay. When the consumer is still busy with
// the previous batch, closed batches are merged so it only ever sees one
// outstanding batch.
type Debouncer struct {
	src   Source
	delay time.Duration

	batches chan Batch
	errors  chan error
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewDebouncer starts folding the events of src. The Debouncer owns src and
// closes it on Close.
func NewDebouncer(src Source, delay time.Duration) *Debouncer {
	d := &Debouncer{
		src:     src,
		delay:   delay,
		batches: make(chan Batch),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Batches returns the batch channel. It is closed when the Debouncer stops.
func (d *Debouncer) Batches() <-chan Batch {
	return d.batches
}

// Errors returns source errors. It is closed when the Debouncer stops.
func (d *Debouncer) Errors() <-chan error {
	return d.errors
}

// Close stops the Debouncer and its source. Pending changes are dropped.
func (d *Debouncer) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		d.wg.Wait()
		err = d.src.Close()
	})
	return err
}

func (d *Debouncer) loop() {
	defer d.wg.Done()
	defer close(d.batches)
	defer close(d.errors)

	quiet := time.NewTimer(d.delay)
	quiet.Stop()
	defer quiet.Stop()

	var (
		open    *Batch // collecting events
		ready   *Batch // closed, not yet received
		pendErr error
		events  = d.src.Events()
		errs    = d.src.Errors()
	)

	for {
		var out chan Batch
		var next Batch
		if ready != nil {
			out, next = d.batches, *ready
		}
		var errOut chan error
		if pendErr != nil {
			errOut = d.errors
		}

		select {
		case <-d.done:
			return

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if open == nil {
				open = &Batch{}
			}
			open.add(e)
			quiet.Reset(d.delay)

		case <-quiet.C:
			if open == nil {
				continue
			}
			if ready == nil {
				ready = open
			} else {
				ready.merge(open)
			}
			open = nil

		case out <- next:
			ready = nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if pendErr == nil {
				pendErr = err
			}

		case errOut <- pendErr:
			pendErr = nil
		}
	}
}
