package queue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when parsing an event kind name that is not one of
// created, changed, deleted or renamed.
var ErrUnknownKind = errors.New("unknown event kind")

// Kind classifies a filesystem change
type Kind int

// Event kinds
const (
	Created Kind = iota
	Changed
	Deleted
	Renamed
)

var kindNames = [...]string{
	Created: "created",
	Changed: "changed",
	Deleted: "deleted",
	Renamed: "renamed",
}

// Kinds lists every event kind in declaration order.
func Kinds() []Kind {
	return []Kind{Created, Changed, Deleted, Renamed}
}

func (k Kind) String() string {
	if k < Created || k > Renamed {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a kind name. "modified" is accepted as an alias for changed.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "modified" {
		return Changed, nil
	}
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < Created || k > Renamed {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single normalized filesystem change.
//
// OldPath is only meaningful for Renamed. Events produced by the create
// absorption rule carry OldPath == Path.
type Event struct {
	Kind    Kind   `json:"kind"`
	Path    string `json:"path"`
	OldPath string `json:"old_path,omitempty"`
}

// NewCreated returns a Created event for path.
func NewCreated(path string) Event {
	return Event{Kind: Created, Path: path}
}

// NewChanged returns a Changed event for path.
func NewChanged(path string) Event {
	return Event{Kind: Changed, Path: path}
}

// NewDeleted returns a Deleted event for path.
func NewDeleted(path string) Event {
	return Event{Kind: Deleted, Path: path}
}

// NewRenamed returns a Renamed event moving oldPath to path.
func NewRenamed(oldPath, path string) Event {
	return Event{Kind: Renamed, Path: path, OldPath: oldPath}
}

// Equal reports whether e and other have the same kind, path and old path.
func (e Event) Equal(other Event) bool {
	return e.Kind == other.Kind && e.Path == other.Path && e.OldPath == other.OldPath
}

func (e Event) String() string {
	if e.Kind == Renamed {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
