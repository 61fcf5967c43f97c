package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
)

func TestInsertLookupEq(t *testing.T) {
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexUnique}, filepath.Join(t.TempDir(), "idx.json"))

	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 10))
	ids, ok := idx.LookupEq(value.Row{value.Int(1)})
	require.True(t, ok)
	require.Equal(t, []uint64{10}, ids)

	_, ok = idx.LookupEq(value.Row{value.Int(2)})
	require.False(t, ok)
}

func TestInsertUniqueViolation(t *testing.T) {
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexUnique}, filepath.Join(t.TempDir(), "idx.json"))

	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 10))
	err := idx.Insert(value.Row{value.Int(1)}, 20)
	require.Error(t, err)
	require.True(t, dberr.Is(err, dberr.KindUniqueViolation))
}

func TestInsertNonUniqueAllowsMultipleRowIDs(t *testing.T) {
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexSecondary}, filepath.Join(t.TempDir(), "idx.json"))

	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 10))
	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 20))
	ids, ok := idx.LookupEq(value.Row{value.Int(1)})
	require.True(t, ok)
	require.ElementsMatch(t, []uint64{10, 20}, ids)
}

func TestInsertSkipsNullKeys(t *testing.T) {
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexSecondary}, filepath.Join(t.TempDir(), "idx.json"))
	require.NoError(t, idx.Insert(value.Row{value.Null()}, 10))
	require.Equal(t, 0, idx.Len())
}

func TestRemove(t *testing.T) {
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexSecondary}, filepath.Join(t.TempDir(), "idx.json"))
	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 10))
	require.NoError(t, idx.Insert(value.Row{value.Int(1)}, 20))

	idx.Remove(value.Row{value.Int(1)}, 10)
	ids, ok := idx.LookupEq(value.Row{value.Int(1)})
	require.True(t, ok)
	require.Equal(t, []uint64{20}, ids)

	idx.Remove(value.Row{value.Int(1)}, 20)
	_, ok = idx.LookupEq(value.Row{value.Int(1)})
	require.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.json")
	idx := New(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexUnique}, path)
	require.NoError(t, idx.Insert(value.Row{value.Int(5)}, 100))
	require.NoError(t, idx.Save())

	loaded, err := Open(catalog.IndexMeta{IndexID: 1, Kind: catalog.IndexUnique}, path)
	require.NoError(t, err)
	ids, ok := loaded.LookupEq(value.Row{value.Int(5)})
	require.True(t, ok)
	require.Equal(t, []uint64{100}, ids)
}

func TestOpenMissingFileReturnsEmptyIndex(t *testing.T) {
	idx, err := Open(catalog.IndexMeta{IndexID: 1}, filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, 0, idx.Len())
}
