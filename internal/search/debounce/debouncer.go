package debounce

import (
	"sync"
	"time"
)

// Debouncer runs a fetch once its input has been quiet for the configured delay.
// Every fetch is tagged with a generation. A result is only applied when its
// generation is still the latest one dispatched, so a slow fetch that has been
// superseded never overwrites a newer result. Superseded fetches are not
// cancelled, they run to completion and are discarded.
type Debouncer[In any, Out any] struct {
	delay time.Duration
	fetch func(In) (Out, error)
	apply func(Out, error)

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
}

func NewDebouncer[In any, Out any](
	delay time.Duration,
	fetch func(In) (Out, error),
	apply func(Out, error),
) *Debouncer[In, Out] {
	return &Debouncer[In, Out]{
		delay: delay,
		fetch: fetch,
		apply: apply,
	}
}

// Trigger schedules a fetch for input, replacing any fetch still waiting for
// its quiet period.
func (d *Debouncer[In, Out]) Trigger(input In) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	generation := d.generation
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.run(generation, input)
	})
}

// Stop drops the pending fetch and the result of any fetch in flight.
func (d *Debouncer[In, Out]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer[In, Out]) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

func (d *Debouncer[In, Out]) run(generation uint64, input In) {
	if !d.isCurrent(generation) {
		return
	}
	out, err := d.fetch(input)

	d.mu.Lock()
	defer d.mu.Unlock()
	if generation != d.generation {
		return
	}
	d.apply(out, err)
}

func (d *Debouncer[In, Out]) isCurrent(generation uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return generation == d.generation
}
