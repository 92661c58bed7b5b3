package queue

import "slices"

// aggregate folds the tail event into the older events, nearest first.
//
// current is the tail event as rewritten so far and idx its position in
// q.events. The slot at idx is only written back once the scan ends.
func (q *Queue) aggregate() {
	idx := len(q.events) - 1
	current := q.events[idx]

	// Set when the oldest history a delete absorbed was the path's creation.
	vanished := false

	for i := idx - 1; i >= 0; i-- {
		prev := q.events[i]

		switch {
		case current.Equal(prev):
			// Exact duplicate.

		case current.Kind == Created && prev.Kind == Deleted &&
			FileName(current.Path) == FileName(prev.Path):
			// Editors that save by deleting the old name and creating the new one.
			current = Event{Kind: Renamed, Path: current.Path, OldPath: prev.Path}

		case current.Kind == Renamed && prev.Kind == Renamed &&
			FileName(current.OldPath) == FileName(prev.Path):
			// A -> B -> C becomes A -> C.
			current.OldPath = prev.OldPath

		case current.Kind == Renamed && prev.Kind == Deleted && current.Path == prev.Path:
			// Rename onto a path that was just deleted: keep the rename and
			// report the target as changed right after it.
			if current.OldPath != current.Path {
				q.events = slices.Insert(q.events, idx, current)
				idx++
			}
			current = Event{Kind: Changed, Path: current.Path, OldPath: current.Path}

		case current.Kind == Deleted && prev.Path == current.Path:
			if prev.Kind == Renamed {
				current.Path = prev.OldPath
				current.OldPath = prev.OldPath
			}
			vanished = prev.Kind == Created

		case prev.Kind == Created && (prev.Path == current.Path || prev.Path == current.OldPath):
			current = Event{Kind: Created, Path: current.Path, OldPath: current.Path}

		default:
			continue
		}

		q.events = slices.Delete(q.events, i, i+1)
		idx--
	}

	if vanished || (current.Kind == Renamed && current.OldPath == current.Path) {
		q.events = slices.Delete(q.events, idx, idx+1)
		return
	}
	q.events[idx] = current
}
