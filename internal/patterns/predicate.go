package patterns

import (
	"path/filepath"
	"strings"

	"github.com/obby/fs-coalescer/internal/queue"
)

// Under returns a queue filter matching events whose path lies strictly
// inside dir. The directory's own events are not matched.
func Under(dir string) func(queue.Event) bool {
	prefix := strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
	return func(e queue.Event) bool {
		return strings.HasPrefix(filepath.ToSlash(e.Path), prefix)
	}
}

// Rejected returns a queue filter matching events the matcher no longer
// allows, so pending events can be pruned after a pattern update.
func (m *Matcher) Rejected() func(queue.Event) bool {
	return func(e queue.Event) bool {
		return !m.Allows(e.Path)
	}
}
