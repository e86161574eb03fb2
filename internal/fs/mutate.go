package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justyntemme/fexplorer/internal/debug"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/metrics"
	"github.com/justyntemme/fexplorer/internal/notify"
	"github.com/justyntemme/fexplorer/internal/trash"
)

// Common file permission modes
const (
	DirPermission  = 0o755 // Standard directory permissions
	FilePermission = 0o644 // Standard file permissions
)

// maxCopyNames bounds the search for a free "name(N).ext" during copy.
const maxCopyNames = 10000

// Publisher receives the affected paths of every successful mutation.
// *notify.Bus satisfies it.
type Publisher interface {
	Publish(notify.Event)
}

// Progress represents a progress update during a copy
type Progress struct {
	Path    string // source being copied
	Current int64
	Total   int64
	Label   string
}

// Mutator performs create, delete, copy and trash operations. Each call has
// an all-or-error outcome from the caller's view, but recursive delete and
// directory copy are not transactional: a failure part way leaves whatever
// was already removed or copied in place, and nothing is rolled back.
//
// The mutator takes no path locks. Overlapping concurrent mutations race at
// the OS level and callers that care must serialize them.
type Mutator struct {
	pub Publisher

	// Progress, when set, receives copy progress. Sends never block.
	Progress chan<- Progress
}

// NewMutator creates a mutator publishing to pub, which may be nil.
func NewMutator(pub Publisher) *Mutator {
	return &Mutator{pub: pub}
}

// CreateFile creates an empty file named fileName inside parentPath.
func (m *Mutator) CreateFile(ctx context.Context, parentPath, fileName string) (entry Entry, err error) {
	start := time.Now()
	defer func() { m.finish("create_file", parentPath, start, err) }()

	parent, target, err := m.prepareCreate(ctx, "create_file", parentPath, fileName)
	if err != nil {
		return Entry{}, err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePermission)
	if err != nil {
		return Entry{}, wrapError("create_file", target, err, KindIO)
	}
	if err := f.Close(); err != nil {
		return Entry{}, wrapError("create_file", target, err, KindIO)
	}

	entry, err = Stat(target)
	if err != nil {
		return Entry{}, err
	}
	m.publish(notify.Affected(parent))
	return entry, nil
}

// CreateFolder creates the directory folderName inside parentPath. The parent
// must already exist.
func (m *Mutator) CreateFolder(ctx context.Context, parentPath, folderName string) (entry Entry, err error) {
	start := time.Now()
	defer func() { m.finish("create_folder", parentPath, start, err) }()

	parent, target, err := m.prepareCreate(ctx, "create_folder", parentPath, folderName)
	if err != nil {
		return Entry{}, err
	}

	if err := os.Mkdir(target, DirPermission); err != nil {
		return Entry{}, wrapError("create_folder", target, err, KindIO)
	}

	entry, err = Stat(target)
	if err != nil {
		return Entry{}, err
	}
	m.publish(notify.Affected(parent))
	return entry, nil
}

func (m *Mutator) prepareCreate(ctx context.Context, op, parentPath, name string) (parent, target string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", wrapError(op, parentPath, err, KindIO)
	}
	if err := validateName(name); err != nil {
		return "", "", newError(op, filepath.Join(parentPath, name), KindInvalidName, err)
	}
	parent, err = absPath(parentPath)
	if err != nil {
		return "", "", newError(op, parentPath, KindIO, err)
	}
	info, err := os.Stat(parent)
	if err != nil {
		return "", "", wrapError(op, parent, err, KindIO)
	}
	if !info.IsDir() {
		return "", "", newError(op, parent, KindNotADirectory, nil)
	}
	return parent, filepath.Join(parent, name), nil
}

// Delete removes path; directories are removed with their whole subtree. It
// returns the parent directory, which is also what gets published.
func (m *Mutator) Delete(ctx context.Context, path string) (parent string, err error) {
	start := time.Now()
	defer func() { m.finish("delete", path, start, err) }()

	target, parent, err := m.prepareRemove(ctx, "delete", path)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(target)
	if err != nil {
		return "", wrapError("delete", target, err, KindDeleteFailed)
	}

	if info.IsDir() {
		err = os.RemoveAll(target)
	} else {
		err = os.Remove(target)
	}
	if err != nil {
		// Part of the subtree may already be gone. Still tell listeners.
		m.publish(notify.Affected(parent))
		return "", newError("delete", target, KindDeleteFailed, err)
	}

	m.publish(notify.Affected(parent))
	return parent, nil
}

// Trash moves path to the platform trash instead of deleting it.
func (m *Mutator) Trash(ctx context.Context, path string) (parent string, err error) {
	start := time.Now()
	defer func() { m.finish("trash", path, start, err) }()

	target, parent, err := m.prepareRemove(ctx, "trash", path)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(target); err != nil {
		return "", wrapError("trash", target, err, KindIO)
	}
	if err := trash.MoveToTrash(target); err != nil {
		return "", wrapError("trash", target, err, KindIO)
	}

	m.publish(notify.Affected(parent))
	return parent, nil
}

func (m *Mutator) prepareRemove(ctx context.Context, op, path string) (target, parent string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", wrapError(op, path, err, KindIO)
	}
	target, err = absPath(path)
	if err != nil {
		return "", "", newError(op, path, KindIO, err)
	}
	parent = filepath.Dir(target)
	if parent == target {
		return "", "", newError(op, target, KindPermissionDenied, errors.New("refusing to remove the filesystem root"))
	}
	return target, parent, nil
}

// Copy copies the file or directory at sourcePath into destinationFolderPath.
// When the name is taken the copy is named "base(N).ext", keeping the
// extension. It returns the entry of the new copy.
func (m *Mutator) Copy(ctx context.Context, sourcePath, destinationFolderPath string) (entry Entry, err error) {
	start := time.Now()
	defer func() { m.finish("copy", sourcePath, start, err) }()

	if err := ctx.Err(); err != nil {
		return Entry{}, wrapError("copy", sourcePath, err, KindIO)
	}
	src, err := absPath(sourcePath)
	if err != nil {
		return Entry{}, newError("copy", sourcePath, KindIO, err)
	}
	destDir, err := absPath(destinationFolderPath)
	if err != nil {
		return Entry{}, newError("copy", destinationFolderPath, KindIO, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		if classify(err, KindCopyFailed) == KindNotFound {
			return Entry{}, newError("copy", src, KindNotFound, err)
		}
		return Entry{}, newError("copy", src, KindCopyFailed, err)
	}
	destInfo, err := os.Stat(destDir)
	if err != nil {
		if classify(err, KindCopyFailed) == KindNotFound {
			return Entry{}, newError("copy", destDir, KindNotFound, err)
		}
		return Entry{}, newError("copy", destDir, KindCopyFailed, err)
	}
	if !destInfo.IsDir() {
		return Entry{}, newError("copy", destDir, KindNotADirectory, nil)
	}
	if srcInfo.IsDir() && isWithin(resolve(destDir), resolve(src)) {
		return Entry{}, newError("copy", src, KindCopyFailed,
			fmt.Errorf("destination %s is inside the source directory", destDir))
	}

	var target string
	if srcInfo.IsDir() {
		target, err = m.copyDir(ctx, src, destDir, srcInfo)
	} else {
		target, err = m.copyFile(ctx, src, destDir, srcInfo)
	}
	if target != "" {
		// Even a failed directory copy may have left a partial tree behind.
		m.publish(notify.Affected(destDir))
	}
	if err != nil {
		return Entry{}, copyError(src, err)
	}

	return Stat(target)
}

// copyFile reserves a free name in destDir and copies src into it. A failed
// single-file copy removes its partial output.
func (m *Mutator) copyFile(ctx context.Context, src, destDir string, info os.FileInfo) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, target, err := reserveFile(destDir, filepath.Base(src), info.Mode().Perm())
	if err != nil {
		return "", err
	}
	debug.Log(debug.FS_COPY, "copy: %q -> %q", src, target)

	m.sendProgress(Progress{Path: src, Total: info.Size(), Label: "Copying " + filepath.Base(src)})
	var current int64
	written, err := io.Copy(m.newProgressWriter(ctx, out, src, info.Size(), &current), in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(target, info.Mode().Perm())
	}
	if err != nil {
		os.Remove(target)
		return "", err
	}
	debug.Log(debug.FS_COPY, "copy: wrote %d bytes to %q", written, target)
	return target, nil
}

// copyDir reserves a free directory name in destDir and copies the subtree
// of src below it. On error the partially copied tree stays and the target
// is still returned.
func (m *Mutator) copyDir(ctx context.Context, src, destDir string, info os.FileInfo) (string, error) {
	target, err := reserveDir(destDir, filepath.Base(src), info.Mode().Perm())
	if err != nil {
		return "", err
	}
	debug.Log(debug.FS_COPY, "copy: tree %q -> %q", src, target)
	return target, m.copyTree(ctx, src, target)
}

// copyError turns a failure during the copy itself into a CopyFailed
// error. Cancellation stays an IO error.
func copyError(src string, err error) error {
	var opErr *OpError
	switch {
	case errors.As(err, &opErr):
		return opErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError("copy", src, KindIO, err)
	}
	return newError("copy", src, KindCopyFailed, err)
}

// progressWriter wraps an io.Writer and calls onWrite after each write. It
// stops the copy once ctx is done.
type progressWriter struct {
	ctx     context.Context
	w       io.Writer
	onWrite func(int64)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	if err := pw.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pw.w.Write(p)
	if n > 0 && pw.onWrite != nil {
		pw.onWrite(int64(n))
	}
	return n, err
}

func (m *Mutator) newProgressWriter(ctx context.Context, w io.Writer, src string, total int64, current *int64) io.Writer {
	return &progressWriter{
		ctx: ctx,
		w:   w,
		onWrite: func(n int64) {
			*current += n
			m.sendProgress(Progress{Path: src, Current: *current, Total: total, Label: "Copying " + filepath.Base(src)})
		},
	}
}

func (m *Mutator) sendProgress(p Progress) {
	if m.Progress == nil {
		return
	}
	select {
	case m.Progress <- p:
	default:
		// Channel full, skip this update
	}
}

func (m *Mutator) publish(ev notify.Event) {
	if m.pub != nil {
		m.pub.Publish(ev)
	}
}

func (m *Mutator) finish(op, path string, start time.Time, err error) {
	metrics.ObserveOp(op, err, time.Since(start))
	if err != nil {
		logging.Named("fs").Warn("operation failed",
			logging.String("op", op), logging.String("path", path), logging.Err(err))
		return
	}
	debug.Log(debug.FS, "%s %q done in %s", op, path, time.Since(start))
}

// validateName rejects names that cannot be a single path segment.
func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is reserved", name)
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("name %q contains a NUL byte", name)
	}
	return nil
}

// resolve follows symlinks in path, returning path unchanged on error.
func resolve(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	return path
}

// isWithin reports whether path is dir or lies below it.
func isWithin(path, dir string) bool {
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
