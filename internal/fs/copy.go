package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/justyntemme/fexplorer/internal/debug"
)

// CopyName returns the name used for the n-th collision of name: "b.txt"
// becomes "b(1).txt". Directories and dotfiles keep no extension, so the
// counter goes at the end.
func CopyName(name string, n int, isDir bool) string {
	if n == 0 {
		return name
	}
	ext := ""
	if !isDir {
		if e := extension(name); e != "" {
			ext = "." + e
		}
	}
	return fmt.Sprintf("%s(%d)%s", name[:len(name)-len(ext)], n, ext)
}

// reserveFile creates the first free copy name of name in dir exclusively.
func reserveFile(dir, name string, perm iofs.FileMode) (*os.File, string, error) {
	for n := 0; n < maxCopyNames; n++ {
		target := filepath.Join(dir, CopyName(name, n, false))
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0o200)
		if err == nil {
			return f, target, nil
		}
		if !errors.Is(err, iofs.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free name for %q in %s", name, dir)
}

// reserveDir creates the first free copy name of name in dir.
func reserveDir(dir, name string, perm iofs.FileMode) (string, error) {
	for n := 0; n < maxCopyNames; n++ {
		target := filepath.Join(dir, CopyName(name, n, true))
		err := os.Mkdir(target, perm|0o700)
		if err == nil {
			return target, nil
		}
		if !errors.Is(err, iofs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %q in %s", name, dir)
}

type copyItem struct {
	srcPath string
	dstPath string
	mode    iofs.FileMode
	size    int64
}

// copyTree copies everything below src into the existing directory dst.
// Symlinks are recreated, not followed.
func (m *Mutator) copyTree(ctx context.Context, src, dst string) error {
	var (
		items   []copyItem
		itemsMu sync.Mutex
		total   int64
	)

	walkRoot, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}

	conf := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(conf, walkRoot, func(fullPath string, d iofs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(walkRoot, fullPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		item := copyItem{srcPath: fullPath, dstPath: filepath.Join(dst, rel)}
		if d.Type()&iofs.ModeSymlink != 0 {
			item.mode = iofs.ModeSymlink
		} else {
			info, err := d.Info()
			if err != nil {
				return err
			}
			item.mode = info.Mode()
			if info.Mode().IsRegular() {
				item.size = info.Size()
			}
		}

		itemsMu.Lock()
		items = append(items, item)
		total += item.size
		itemsMu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	// Directories first, parents before children.
	slices.SortFunc(items, func(a, b copyItem) int {
		if a.mode.IsDir() != b.mode.IsDir() {
			if a.mode.IsDir() {
				return -1
			}
			return 1
		}
		return len(a.dstPath) - len(b.dstPath)
	})

	debug.Log(debug.FS_COPY, "copy: %d items, %d bytes from %q", len(items), total, src)
	m.sendProgress(Progress{Path: src, Total: total, Label: "Copying " + filepath.Base(src)})

	var current int64
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch {
		case item.mode.IsDir():
			if err := os.MkdirAll(item.dstPath, item.mode.Perm()|0o700); err != nil {
				return err
			}
		case item.mode&iofs.ModeSymlink != 0:
			link, err := os.Readlink(item.srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(link, item.dstPath); err != nil {
				return err
			}
		case item.mode.IsRegular():
			if err := m.copyTreeFile(ctx, item, src, total, &current); err != nil {
				return err
			}
		default:
			debug.Log(debug.FS_COPY, "copy: skipping special file %q", item.srcPath)
		}
	}
	return nil
}

func (m *Mutator) copyTreeFile(ctx context.Context, item copyItem, root string, total int64, current *int64) error {
	in, err := os.Open(item.srcPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(item.dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, item.mode.Perm()|0o200)
	if err != nil {
		return err
	}
	_, err = io.Copy(m.newProgressWriter(ctx, out, root, total, current), in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Chmod(item.dstPath, item.mode.Perm())
}
