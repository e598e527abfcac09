package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedStringKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedStringKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Empty(t, SortedStringKeys(map[string]int{}))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(content))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSnakeCase(t *testing.T) {
	assert.Equal(t, "ticket_service", SnakeCase("TicketService"))
	assert.Equal(t, "service", SnakeCase("Service"))
	assert.Equal(t, "already_snake", SnakeCase("already_snake"))
}

func TestHasPathPrefix(t *testing.T) {
	assert.True(t, HasPathPrefix("/a/b/c", "/a/b"))
	assert.True(t, HasPathPrefix("/a/b", "/a/b"))
	assert.False(t, HasPathPrefix("/a/bc", "/a/b"))
}

func TestUniqueSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, UniqueSorted([]string{"b", "a", "b", "", " a "}))
	assert.Empty(t, UniqueSorted(nil))
}
