package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestListBasic(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "inner"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), make([]byte, 2048), 0o644))

	entries, err := List(context.Background(), root, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	dir := entries[0]
	assert.Equal(t, "a", dir.Name)
	assert.Equal(t, filepath.Join(root, "a"), dir.Path)
	assert.Equal(t, KindDirectory, dir.Kind)
	assert.Equal(t, 1, dir.ChildCount)
	assert.Zero(t, dir.Size)
	assert.Empty(t, dir.Extension)

	file := entries[1]
	assert.Equal(t, "b.txt", file.Name)
	assert.Equal(t, KindFile, file.Kind)
	assert.Equal(t, int64(2048), file.Size)
	assert.Equal(t, "txt", file.Extension)
	assert.Zero(t, file.ChildCount)
}

func TestListBackslashNames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("backslash is a separator on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, `a\b.txt`), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, `d\e`), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, `d\e`, "inner"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "plain.txt"), nil, 0o644))

	entries, err := List(context.Background(), root, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{`d\e`, `a\b.txt`, "plain.txt"}, names(entries))

	assert.Equal(t, KindDirectory, entries[0].Kind)
	assert.Equal(t, 1, entries[0].ChildCount)
	assert.Equal(t, filepath.Join(root, `a\b.txt`), entries[1].Path)
}

func TestListEmptyDirectory(t *testing.T) {
	entries, err := List(context.Background(), t.TempDir(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListOptions(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"src", ".git", "node_modules"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, d), 0o755))
	}
	for _, f := range []string{"main.go", ".env", "notes.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0o644))
	}

	testCases := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"default hides dotfiles", ListOptions{}, []string{"node_modules", "src", "main.go", "notes.tmp"}},
		{"show hidden", ListOptions{ShowHidden: true}, []string{".git", "node_modules", "src", ".env", "main.go", "notes.tmp"}},
		{"only directories", ListOptions{OnlyDirectories: true}, []string{"node_modules", "src"}},
		{"exclude patterns", ListOptions{Exclude: []string{"node_modules", "*.tmp"}}, []string{"src", "main.go"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entries, err := List(context.Background(), root, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, names(entries))
		})
	}
}

func TestListErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := List(context.Background(), filepath.Join(root, "missing"), ListOptions{})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = List(context.Background(), file, ListOptions{})
	assert.True(t, errors.Is(err, ErrNotADirectory), "got %v", err)

	_, err = List(context.Background(), "", ListOptions{})
	assert.Equal(t, KindIO, KindOf(err))
}

func TestListPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	_, err := List(context.Background(), locked, ListOptions{})
	assert.True(t, errors.Is(err, ErrPermissionDenied), "got %v", err)
}

func TestListSymlinkedRoot(t *testing.T) {
	root := t.TempDir()
	real := filepath.Join(root, "real")
	require.NoError(t, os.Mkdir(real, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(real, "x"), nil, 0o644))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(real, link))

	entries, err := List(context.Background(), link, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Join(link, "x"), entries[0].Path)
}

func TestListBrokenSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root, "gone"), filepath.Join(root, "dangling")))

	entries, err := List(context.Background(), root, ListOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, KindFile, entries[0].Kind)
}

func TestListCancelled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), nil, 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := List(ctx, root, ListOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListKindsMatchStat(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.md"), []byte("hi"), 0o644))

	entries, err := List(context.Background(), root, ListOptions{})
	require.NoError(t, err)
	for _, e := range entries {
		info, err := os.Stat(e.Path)
		require.NoError(t, err)
		assert.Equal(t, info.IsDir(), e.IsDir(), e.Name)
		if !e.IsDir() {
			assert.Equal(t, info.Size(), e.Size, e.Name)
		}
	}
}

func TestCompareEntriesTotalOrder(t *testing.T) {
	entries := []Entry{
		{Name: "b", Path: "/x/b", Kind: KindFile},
		{Name: "B", Path: "/x/B", Kind: KindFile},
		{Name: "z", Path: "/x/z", Kind: KindDirectory},
		{Name: "a", Path: "/y/a", Kind: KindFile},
		{Name: "a", Path: "/x/a", Kind: KindFile},
		{Name: "c", Path: "/x/c", Kind: KindDirectory},
	}
	SortEntries(entries)

	want := []string{"/x/c", "/x/z", "/x/B", "/x/a", "/y/a", "/x/b"}
	got := make([]string, len(entries))
	for i, e := range entries {
		got[i] = e.Path
	}
	assert.Equal(t, want, got)

	for i := range entries {
		for j := range entries {
			if i != j {
				assert.NotZero(t, CompareEntries(entries[i], entries[j]))
			}
		}
	}
	assert.True(t, slices.IsSortedFunc(entries, CompareEntries))
}

func TestListerValue(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "one"), nil, 0o644))
	var l Lister
	entries, err := l.List(context.Background(), root, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, names(entries))
}
