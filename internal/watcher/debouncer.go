package watcher

import (
	"sync"
	"time"
)

// Debouncer runs a callback once a burst of triggers has gone quiet.
// A burst that keeps going longer than maxWait fires anyway, so a steady
// stream of changes still gets delivered.
type Debouncer struct {
	delay   time.Duration
	maxWait time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	first   time.Time
	stopped bool
}

// NewDebouncer creates a new debouncer. A zero maxWait disables the ceiling.
func NewDebouncer(delay, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		maxWait: maxWait,
	}
}

// Trigger (re)starts the quiet timer; fn runs when it expires.
// Only the fn passed by the latest Trigger of a burst runs.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := time.Now()
	if d.timer == nil {
		d.first = now
	} else {
		d.timer.Stop()
	}

	wait := d.delay
	if d.maxWait > 0 {
		if remaining := d.maxWait - now.Sub(d.first); remaining < wait {
			wait = max(remaining, 0)
		}
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(wait, func() {
		d.mu.Lock()
		if d.gen != gen || d.stopped {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()

		fn()
	})
}

// Pending reports whether a callback is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels the pending callback and ignores later triggers
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
