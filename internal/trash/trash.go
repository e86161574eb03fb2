// Package trash moves files to the user's trash instead of deleting them.
// Only the freedesktop.org layout used on Linux is implemented; elsewhere
// every call fails with ErrUnsupported.
package trash

import (
	"errors"
	"time"
)

// ErrUnsupported is returned on platforms without a trash implementation.
var ErrUnsupported = errors.New("trash is not supported on this platform")

// Item represents a file or directory in the trash
type Item struct {
	Name         string    // name inside the trash
	OriginalPath string    // full path the entry was trashed from
	TrashPath    string    // current path in trash
	DeletedAt    time.Time // when the entry was trashed
	Size         int64
	IsDir        bool
}

// MoveToTrash moves a file or directory to the user's trash.
func MoveToTrash(path string) error {
	return moveToTrash(path)
}

// List returns all items currently in the trash.
func List() ([]Item, error) {
	return list()
}

// Dir returns the trash directory, or "" when there is none.
func Dir() string {
	return getPath()
}
