package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "server"))
	require.NoError(t, err)
	return store
}

func TestNewStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "server")
	store, err := NewStore(root)
	require.NoError(t, err)
	assert.Equal(t, root, store.Root())
	assert.DirExists(t, root)
}

func TestFilePathRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	cases := []struct {
		salon    string
		filename string
	}{
		{"../etc", "passwd"},
		{"general", "../../etc/passwd"},
		{"general", "a/b"},
		{"general", `a\b`},
		{"", "notes.txt"},
		{"general", ""},
		{".", "notes.txt"},
		{"general", ".."},
		{"general", "a\x00b"},
	}
	for _, tc := range cases {
		_, err := store.FilePath(tc.salon, tc.filename)
		assert.ErrorIs(t, err, ErrInvalidName, "salon=%q filename=%q", tc.salon, tc.filename)
	}
}

func TestFilePathStaysUnderRoot(t *testing.T) {
	store := newTestStore(t)

	path, err := store.FilePath("general", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "general", "notes.txt"), path)
}

func TestSalonDirLifecycle(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.EnsureSalonDir("general"))
	dir, err := store.SalonDir("general")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	// EnsureSalonDir is idempotent
	require.NoError(t, store.EnsureSalonDir("general"))

	path, err := store.FilePath("general", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o600))

	require.NoError(t, store.RemoveSalonDir("general"))
	assert.NoDirExists(t, dir)
}

func TestEnsureAll(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.EnsureAll([]string{"general", "tech", "random"}))
	for _, salon := range []string{"general", "tech", "random"} {
		dir, err := store.SalonDir(salon)
		require.NoError(t, err)
		assert.DirExists(t, dir)
	}
}

func TestClearKeepsRoot(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.EnsureAll([]string{"general", "tech"}))
	path, err := store.FilePath("general", "notes.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o600))

	require.NoError(t, store.Clear())

	assert.DirExists(t, store.Root())
	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
