// Package notify is the in-process change notifier. Mutations publish the
// directories they touched and every subscribed listing decides for itself
// whether to refresh.
package notify

import (
	"path/filepath"
	"slices"
)

// Event names the directories whose listing may be stale after a mutation.
// It is a small set (usually one or two paths), kept sorted and deduplicated.
type Event struct {
	paths []string
}

// NewEvent builds an event from the given paths. Empty paths are dropped and
// the rest are cleaned.
func NewEvent(paths ...string) Event {
	set := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		set = append(set, filepath.Clean(p))
	}
	slices.Sort(set)
	return Event{paths: slices.Compact(set)}
}

// Affected returns the event for a change inside dir: dir itself plus its
// parent, whose listing carries dir's child count. The parent is omitted at
// the filesystem root.
func Affected(dir string) Event {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if parent == dir {
		return NewEvent(dir)
	}
	return NewEvent(dir, parent)
}

// Merge returns the union of e and other.
func (e Event) Merge(other Event) Event {
	return NewEvent(append(slices.Clone(e.paths), other.paths...)...)
}

// Paths returns a copy of the affected paths.
func (e Event) Paths() []string {
	return slices.Clone(e.paths)
}

// Contains reports whether path is one of the affected paths.
func (e Event) Contains(path string) bool {
	_, found := slices.BinarySearch(e.paths, filepath.Clean(path))
	return found
}

// Empty reports whether the event names no paths.
func (e Event) Empty() bool {
	return len(e.paths) == 0
}

// Predicate is evaluated against each affected path of an event.
type Predicate func(path string) bool

// Handler receives matching events.
type Handler func(Event)

// PathIs matches exactly one directory.
func PathIs(path string) Predicate {
	path = filepath.Clean(path)
	return func(p string) bool { return p == path }
}

// Any matches every path.
func Any() Predicate {
	return func(string) bool { return true }
}
