package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExtension(t *testing.T) {
	testCases := []struct {
		name string
		want string
	}{
		{"b.txt", "txt"},
		{"archive.tar.gz", "gz"},
		{"Makefile", ""},
		{".bashrc", ""},
		{".config.json", "json"},
		{"trailing.", ""},
	}
	for _, tc := range testCases {
		if got := extension(tc.name); got != tc.want {
			t.Errorf("extension(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEntryHidden(t *testing.T) {
	if !(Entry{Name: ".git"}).IsHidden() {
		t.Error(".git should be hidden")
	}
	if (Entry{Name: "git"}).IsHidden() {
		t.Error("git should not be hidden")
	}
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"x", ".y"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("12345"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	e, err := Stat(dir)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !e.IsDir() || e.ChildCount != 2 || e.Size != 0 {
		t.Errorf("dir entry = %+v", e)
	}

	e, err = Stat(filepath.Join(dir, "x"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if e.IsDir() || e.Size != 5 || e.Name != "x" {
		t.Errorf("file entry = %+v", e)
	}

	if _, err := Stat(filepath.Join(root, "missing")); KindOf(err) != KindNotFound {
		t.Errorf("missing: kind = %s", KindOf(err))
	}
}
