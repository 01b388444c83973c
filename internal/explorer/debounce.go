// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package explorer

import (
	"sync"
	"time"
)

// debouncer calls fn with the last value passed to Trigger once delay has
// passed without another Trigger.
type debouncer struct {
	delay time.Duration
	fn    func(string)

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool
}

func newDebouncer(delay time.Duration, fn func(string)) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger schedules fn(v), replacing any call not yet made.
func (d *debouncer) Trigger(v string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	if d.delay <= 0 {
		d.mu.Unlock()
		d.fn(v)
		return
	}
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen, v) })
	d.mu.Unlock()
}

// fire runs fn unless a later Trigger or Close superseded this timer.
// Stop does not catch a timer whose function has already started.
func (d *debouncer) fire(gen uint64, v string) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn(v)
}

// Close drops any pending call.
func (d *debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
