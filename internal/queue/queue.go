// Package queue implements the ordered event queue that coalesces raw
// filesystem notifications into a minimal equivalent change history.
//
// Every Add folds the new event backward against the events already queued,
// merging or rewriting them until nothing older can merge with it. Because
// the queue was already normalized before the insertion, a single backward
// sweep anchored at the new tail restores the invariant for the whole queue.
//
// A Queue is not safe for concurrent use. Callers that share one must
// serialize access themselves.
package queue

import "slices"

// Queue is an ordered, normalized sequence of events.
type Queue struct {
	events []Event
}

// New creates an empty queue
func New() *Queue {
	return &Queue{}
}

// Add appends event and re-aggregates the queue against it.
// The queue grows by at most one element per call.
func (q *Queue) Add(event Event) {
	q.events = append(q.events, event)
	q.aggregate()
}

// Clear removes all events
func (q *Queue) Clear() {
	q.events = q.events[:0]
}

// Filter removes every event for which remove returns true.
// Order of the remaining events is preserved and no aggregation runs.
func (q *Queue) Filter(remove func(Event) bool) {
	q.events = slices.DeleteFunc(q.events, remove)
}

// IsEmpty reports whether the queue holds no events
func (q *Queue) IsEmpty() bool {
	return len(q.events) == 0
}

// Len returns the number of queued events
func (q *Queue) Len() int {
	return len(q.events)
}

// Items returns a copy of the queued events in order.
func (q *Queue) Items() []Event {
	return slices.Clone(q.events)
}

// Drain returns the queued events and empties the queue.
func (q *Queue) Drain() []Event {
	items := q.Items()
	q.Clear()
	return items
}
