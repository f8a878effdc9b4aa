package catalog

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// debouncer runs a function once its key has been quiet for delay. Each key
// has its own timer, so one busy input never holds back another.
type debouncer struct {
	clock clockwork.Clock
	delay time.Duration

	mu     sync.Mutex
	timers map[string]clockwork.Timer
	gen    map[string]uint64
}

func newDebouncer(clock clockwork.Clock, delay time.Duration) *debouncer {
	return &debouncer{
		clock:  clock,
		delay:  delay,
		timers: make(map[string]clockwork.Timer),
		gen:    make(map[string]uint64),
	}
}

func (d *debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.gen[key]++
	gen := d.gen[key]

	d.timers[key] = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// a later Trigger or StopAll may have raced the timer
		if d.gen[key] != gen {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

func (d *debouncer) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		d.gen[key]++
		delete(d.timers, key)
	}
}
