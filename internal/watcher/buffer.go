package watcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/obby/fs-coalescer/internal/log"
	"github.com/obby/fs-coalescer/internal/queue"
)

// Batch is one flush of the buffer: the normalized events that
// accumulated since the previous flush.
type Batch struct {
	Seq       uint64        `json:"seq"`
	Events    []queue.Event `json:"events"`
	FlushedAt time.Time     `json:"flushed_at"`
}

// EventBuffer serializes access to a queue.Queue and flushes it as a
// Batch once the producer has gone quiet.
type EventBuffer struct {
	mu        sync.Mutex
	queue     *queue.Queue
	debouncer *Debouncer
	batches   chan Batch
	seq       uint64
	closed    bool
	logger    *slog.Logger
}

// NewEventBuffer creates a buffer that flushes after debounce of quiet,
// or at most maxWait after the first pending event.
func NewEventBuffer(debounce, maxWait time.Duration) *EventBuffer {
	return &EventBuffer{
		queue:     queue.New(),
		debouncer: NewDebouncer(debounce, maxWait),
		batches:   make(chan Batch, 64),
		logger:    log.NewModuleLogger("watcher", "buffer"),
	}
}

// Push queues an event and schedules a flush
func (b *EventBuffer) Push(e queue.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	before := b.queue.Len()
	b.queue.Add(e)
	pending := b.queue.Len()
	b.mu.Unlock()

	b.logger.Debug("Event queued",
		"event", e.String(),
		"pending", pending,
		"merged", before+1-pending,
	)

	b.debouncer.Trigger(func() { b.Flush() })
}

// Prune removes pending events matching remove and returns how many went
func (b *EventBuffer) Prune(remove func(queue.Event) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	before := b.queue.Len()
	b.queue.Filter(remove)
	return before - b.queue.Len()
}

// Snapshot returns the pending events without flushing them
func (b *EventBuffer) Snapshot() []queue.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Items()
}

// Len returns the number of pending events
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Flush drains the pending events into a Batch. It reports whether a
// batch was emitted.
func (b *EventBuffer) Flush() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	return b.flushLocked()
}

// Batches returns the channel flushed batches are delivered on. It is
// closed by Close.
func (b *EventBuffer) Batches() <-chan Batch {
	return b.batches
}

// Close flushes whatever is pending and closes the batch channel
func (b *EventBuffer) Close() {
	b.debouncer.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.flushLocked()
	b.closed = true
	close(b.batches)
}

func (b *EventBuffer) flushLocked() bool {
	if b.queue.IsEmpty() {
		return false
	}

	b.seq++
	batch := Batch{
		Seq:       b.seq,
		Events:    b.queue.Drain(),
		FlushedAt: time.Now(),
	}

	select {
	case b.batches <- batch:
		b.logger.Debug("Batch flushed", "seq", batch.Seq, "events", len(batch.Events))
		return true
	default:
		b.logger.Warn("Batch channel full, dropping batch",
			"seq", batch.Seq,
			"events", len(batch.Events),
		)
		return false
	}
}
