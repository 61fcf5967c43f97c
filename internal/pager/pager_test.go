package pager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/db")
	require.Equal(t, "/db/catalog", l.CatalogPath())
	require.Equal(t, "/db/wal", l.WalPath())
	require.Equal(t, "/db/tables/3.heap", l.HeapPath(3))
	require.Equal(t, "/db/tables/3.ids", l.IdsPath(3))
	require.Equal(t, "/db/indexes/3/7.idx", l.IndexPath(3, 7))
}

func TestEnsureDirsCreatesSkeleton(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	l := NewLayout(root)
	require.NoError(t, l.EnsureDirs())

	info, err := os.Stat(l.TablesDir())
	require.NoError(t, err)
	require.True(t, info.IsDir())

	info, err = os.Stat(l.IndexesDir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestWriteAtomicThenReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "file.dat")
	require.NoError(t, WriteAtomic(path, []byte("hello"), 0o644))

	data, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWriteAtomicOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.dat")
	require.NoError(t, WriteAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteAtomic(path, []byte("second"), 0o644))

	data, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReadFileMissingReturnsNotExist(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.True(t, os.IsNotExist(err))
}
