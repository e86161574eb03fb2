package fs

import (
	"cmp"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/metrics"
)

// ListOptions controls which children List returns.
type ListOptions struct {
	ShowHidden      bool     // include dotfiles
	OnlyDirectories bool     // drop files
	Exclude         []string // doublestar patterns matched against the entry name
}

func (o ListOptions) keep(name string, isDir bool) bool {
	if !o.ShowHidden && isHidden(name) {
		return false
	}
	if o.OnlyDirectories && !isDir {
		return false
	}
	for _, pattern := range o.Exclude {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return false
		}
	}
	return true
}

// Lister enumerates the direct children of a directory. The zero value is
// ready to use. It never modifies the filesystem.
type Lister struct{}

// List returns the children of path sorted directories first, then by name.
// It fails with NotFound, NotADirectory, PermissionDenied or IOError.
func (Lister) List(ctx context.Context, path string, opts ListOptions) ([]Entry, error) {
	return List(ctx, path, opts)
}

// List is the function form of Lister.List.
func List(ctx context.Context, path string, opts ListOptions) (entries []Entry, err error) {
	start := time.Now()
	defer func() { metrics.ObserveOp("list", err, time.Since(start)) }()

	root, err := absPath(path)
	if err != nil {
		return nil, newError("list", path, KindIO, err)
	}
	if err := checkListable(root); err != nil {
		return nil, err
	}
	debug.Log(debug.FS, "list: reading %q", root)

	var result []Entry
	var mu sync.Mutex

	// Walk the resolved directory so a symlinked root still lists, but keep
	// entry paths under the path the caller asked for.
	walkRoot := root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		walkRoot = resolved
	}
	conf := &fastwalk.Config{Follow: false}
	rootLen := len(walkRoot)

	walkErr := fastwalk.Walk(conf, walkRoot, func(fullPath string, d iofs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if fullPath == walkRoot {
			if err != nil {
				return err
			}
			return nil
		}
		if err != nil {
			debug.Log(debug.FS_ENTRY, "list: walk error at %q: %v", fullPath, err)
			return nil
		}

		// Only direct children. fullPath starts with root, so anything with a
		// separator past it is nested.
		rel := fullPath[rootLen:]
		if len(rel) > 0 && os.IsPathSeparator(rel[0]) {
			rel = rel[1:]
		}
		if hasSeparator(rel) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		// Follows symlinks; lstat covers links whose target is gone.
		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			info, err = os.Lstat(fullPath)
			if err != nil {
				debug.Log(debug.FS_ENTRY, "list: skipping %q: stat error: %v", d.Name(), err)
				return nil
			}
		}

		isDir := info.IsDir()
		if opts.keep(d.Name(), isDir) {
			count := 0
			if isDir {
				count = countChildren(fullPath)
			}
			entry := newEntry(filepath.Join(root, rel), info, count)
			debug.Log(debug.FS_ENTRY, "list: %q kind=%s size=%d children=%d",
				entry.Name, entry.Kind, entry.Size, entry.ChildCount)

			mu.Lock()
			result = append(result, entry)
			mu.Unlock()
		}

		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})

	if walkErr != nil {
		debug.Log(debug.FS, "list: walk error: %v", walkErr)
		return nil, wrapError("list", root, walkErr, KindIO)
	}

	SortEntries(result)
	debug.Log(debug.FS, "list: returning %d entries", len(result))
	return result, nil
}

// checkListable fails early with a classified error instead of letting the
// walk silently produce nothing.
func checkListable(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return wrapError("list", root, err, KindIO)
	}
	if !info.IsDir() {
		return newError("list", root, KindNotADirectory, nil)
	}
	f, err := os.Open(root)
	if err != nil {
		return wrapError("list", root, err, KindIO)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !isEOF(err) {
		return wrapError("list", root, err, KindIO)
	}
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// CompareEntries orders directories before files, then names ascending
// (case-sensitive), then paths so that distinct entries never compare equal.
func CompareEntries(a, b Entry) int {
	if a.Kind != b.Kind {
		if a.Kind == KindDirectory {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Path, b.Path)
}

// SortEntries sorts entries in place using CompareEntries.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, CompareEntries)
}

// hasSeparator reports whether rel spans more than one path segment. Only
// the OS separators count, so a backslash is part of the name on Unix.
func hasSeparator(rel string) bool {
	for i := 0; i < len(rel); i++ {
		if os.IsPathSeparator(rel[i]) {
			return true
		}
	}
	return false
}
