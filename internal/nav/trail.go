// Package nav holds navigation state: the breadcrumb trail from a fixed root
// to the displayed directory, and expansion of user typed paths.
package nav

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/justyntemme/fexplorer/internal/fs"
)

// ErrNotChild is returned when pushing or building a trail would break the
// parent/child chain.
var ErrNotChild = errors.New("not a direct child of the trail's current directory")

// Trail is an immutable breadcrumb trail. Entry i+1 is always a direct child
// of entry i. Every change returns a new Trail.
type Trail struct {
	entries []fs.Entry
}

// NewTrail starts a trail at root.
func NewTrail(root fs.Entry) Trail {
	return Trail{entries: []fs.Entry{root}}
}

// TrailTo builds the trail from root down to path by stat'ing each level.
// path must be root or lie below it.
func TrailTo(root, path string) (Trail, error) {
	root, path = filepath.Clean(root), filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Trail{}, fmt.Errorf("%s is outside %s: %w", path, root, ErrNotChild)
	}

	rootEntry, err := fs.Stat(root)
	if err != nil {
		return Trail{}, err
	}
	t := NewTrail(rootEntry)
	if rel == "." {
		return t, nil
	}

	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)
		e, err := fs.Stat(cur)
		if err != nil {
			return Trail{}, err
		}
		if t, err = t.Push(e); err != nil {
			return Trail{}, err
		}
	}
	return t, nil
}

// Push appends child, which must live directly in the current directory.
func (t Trail) Push(child fs.Entry) (Trail, error) {
	if len(t.entries) == 0 {
		return NewTrail(child), nil
	}
	if !child.IsDir() || filepath.Dir(child.Path) != t.Current().Path || child.Path == t.Current().Path {
		return t, fmt.Errorf("%s: %w", child.Path, ErrNotChild)
	}
	next := make([]fs.Entry, len(t.entries), len(t.entries)+1)
	copy(next, t.entries)
	return Trail{entries: append(next, child)}, nil
}

// Pop drops the current directory. The root is never dropped; ok is false
// when there was nothing to pop.
func (t Trail) Pop() (Trail, bool) {
	if len(t.entries) <= 1 {
		return t, false
	}
	return Trail{entries: slices.Clone(t.entries[:len(t.entries)-1])}, true
}

// TruncateTo keeps the trail up to and including the entry at path, as when
// the user jumps to an ancestor. ok is false if path is not on the trail.
func (t Trail) TruncateTo(path string) (Trail, bool) {
	path = filepath.Clean(path)
	for i, e := range t.entries {
		if e.Path == path {
			return Trail{entries: slices.Clone(t.entries[:i+1])}, true
		}
	}
	return t, false
}

// Current returns the displayed directory, or the zero Entry for an empty trail.
func (t Trail) Current() fs.Entry {
	if len(t.entries) == 0 {
		return fs.Entry{}
	}
	return t.entries[len(t.entries)-1]
}

// Root returns the first entry.
func (t Trail) Root() fs.Entry {
	if len(t.entries) == 0 {
		return fs.Entry{}
	}
	return t.entries[0]
}

// Entries returns a copy of the trail, root first.
func (t Trail) Entries() []fs.Entry {
	return slices.Clone(t.entries)
}

// Len returns the number of entries.
func (t Trail) Len() int {
	return len(t.entries)
}

// String renders the names joined by " > ".
func (t Trail) String() string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.Name
	}
	return strings.Join(names, " > ")
}
