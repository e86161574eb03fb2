package fs

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Kind distinguishes files from directories.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Entry is an immutable snapshot of one filesystem entry taken at listing
// time. It is never a live handle: the path may change right after.
type Entry struct {
	Path       string // absolute, cleaned; identity key
	Name       string
	Size       int64 // 0 for directories
	Kind       Kind
	ModTime    time.Time
	Extension  string // without the dot; empty for directories
	ChildCount int    // direct children; 0 for files
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

// IsHidden reports whether the name is conventionally hidden.
func (e Entry) IsHidden() bool {
	return isHidden(e.Name)
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// extension returns the extension of a file name without the dot. Dotfiles
// such as ".bashrc" have none.
func extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return ext[1:]
}

// newEntry builds an Entry from a stat result. childCount only applies to
// directories.
func newEntry(path string, info iofs.FileInfo, childCount int) Entry {
	e := Entry{
		Path:    path,
		Name:    filepath.Base(path),
		ModTime: info.ModTime(),
	}
	if info.IsDir() {
		e.Kind = KindDirectory
		e.ChildCount = childCount
		return e
	}
	e.Kind = KindFile
	e.Size = info.Size()
	e.Extension = extension(e.Name)
	return e
}

// Stat returns a fresh Entry for path, following symlinks.
func Stat(path string) (Entry, error) {
	abs, err := absPath(path)
	if err != nil {
		return Entry{}, newError("stat", path, KindIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Entry{}, wrapError("stat", abs, err, KindIO)
	}
	count := 0
	if info.IsDir() {
		count = countChildren(abs)
	}
	return newEntry(abs, info, count), nil
}

// countChildren returns the number of direct children of dir, hidden ones
// included. Unreadable directories count as empty.
func countChildren(dir string) int {
	f, err := os.Open(dir)
	if err != nil {
		return 0
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil && len(names) == 0 {
		return 0
	}
	return len(names)
}

func absPath(path string) (string, error) {
	if path == "" {
		return "", os.ErrInvalid
	}
	return filepath.Abs(path)
}
