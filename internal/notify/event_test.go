package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("/b/", "/a", "", "/b", "/a/./")
	assert.Equal(t, []string{"/a", "/b"}, ev.Paths())
	assert.True(t, ev.Contains("/a"))
	assert.True(t, ev.Contains("/b/"))
	assert.False(t, ev.Contains("/c"))
	assert.False(t, ev.Empty())
	assert.True(t, NewEvent("").Empty())
}

func TestAffected(t *testing.T) {
	tests := []struct {
		dir  string
		want []string
	}{
		{"/root/a", []string{"/root", "/root/a"}},
		{"/other", []string{"/", "/other"}},
		{"/", []string{"/"}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Affected(tc.dir).Paths(), "Affected(%q)", tc.dir)
	}
}

func TestEvent_Merge(t *testing.T) {
	merged := NewEvent("/a").Merge(NewEvent("/b", "/a"))
	assert.Equal(t, []string{"/a", "/b"}, merged.Paths())
}

func TestEvent_PathsIsCopy(t *testing.T) {
	ev := NewEvent("/a")
	p := ev.Paths()
	p[0] = "/mutated"
	assert.True(t, ev.Contains("/a"))
}

func TestPredicates(t *testing.T) {
	assert.True(t, PathIs("/root/")("/root"))
	assert.False(t, PathIs("/root")("/root/a"))
	assert.True(t, Any()("/anything"))
}
