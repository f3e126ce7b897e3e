package storage

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet window before a persisted write
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces bursts of Trigger calls into one run of fn
type Debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	fn      func()
	timer   *time.Timer
	pending bool
	stopped bool
}

// NewDebouncer creates a Debouncer. With wait <= 0 Trigger runs fn synchronously.
func NewDebouncer(wait time.Duration, fn func()) *Debouncer {
	return &Debouncer{wait: wait, fn: fn}
}

// Trigger schedules fn to run once the quiet window elapses
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.wait <= 0 {
		d.mu.Unlock()
		d.fn()
		return
	}
	defer d.mu.Unlock()
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()
	d.fn()
}

// Flush runs a pending fn immediately
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fn()
}

// Pending reports whether a run is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop flushes and disables further triggers
func (d *Debouncer) Stop() {
	d.Flush()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
