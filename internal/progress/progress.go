// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress tracks load-cycle progress as a monotonic percentage
// built from named phases, each owning a fixed sub-range of 0-100.
package progress

import (
	"sync"
)

// Phase is one stage of a load cycle with the percentage range it
// reports into.
type Phase struct {
	Name  string
	Start float64
	End   float64
}

// The phases of a load cycle, in order. Ranges never overlap and only
// increase, so the overall percentage is non-decreasing as long as every
// phase reports a non-decreasing fraction.
var (
	Manifest   = Phase{Name: "manifest", Start: 0, End: 10}
	Fetch      = Phase{Name: "fetch", Start: 20, End: 50}
	Decompress = Phase{Name: "decompress", Start: 55, End: 85}
	Index      = Phase{Name: "index", Start: 86, End: 99}
	Done       = Phase{Name: "done", Start: 100, End: 100}
)

// Update is delivered to the sink on every change.
type Update struct {
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
}

// Sink receives progress updates. It is called synchronously, with the
// tracker locked, from the goroutine that reported progress; it must not
// block or call back into the tracker.
type Sink func(Update)

// Tracker is a monotonic progress accumulator. The zero value is usable
// and reports nowhere.
type Tracker struct {
	mu      sync.Mutex
	percent float64
	sink    Sink
}

// NewTracker returns a Tracker that forwards updates to sink (may be nil).
func NewTracker(sink Sink) *Tracker {
	return &Tracker{sink: sink}
}

// Reset moves progress back to zero at the start of a new cycle.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.percent = 0
	if t.sink != nil {
		t.sink(Update{Percent: 0})
	}
}

// Report records that done of total units of phase p have finished.
// total <= 0 reports the phase start.
func (t *Tracker) Report(p Phase, done, total int) {
	frac := 0.0
	if total > 0 {
		frac = float64(done) / float64(total)
	}
	switch {
	case frac < 0:
		frac = 0
	case frac > 1:
		frac = 1
	}
	t.set(p.Name, p.Start+(p.End-p.Start)*frac)
}

// Enter reports the start of phase p.
func (t *Tracker) Enter(p Phase) {
	t.set(p.Name, p.Start)
}

// Complete reports the end of phase p.
func (t *Tracker) Complete(p Phase) {
	t.set(p.Name, p.End)
}

// Finish moves progress to 100%, whatever state the cycle ended in.
func (t *Tracker) Finish() {
	t.Complete(Done)
}

// Percent returns the current percentage.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// set stores pct when it does not move progress backwards. The sink is
// called under the lock so that updates reach it in order.
func (t *Tracker) set(phase string, pct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pct <= t.percent {
		return
	}
	t.percent = pct
	if t.sink != nil {
		t.sink(Update{Phase: phase, Percent: pct})
	}
}
