package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsEmptyCatalog(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "catalog"))
	require.NoError(t, err)
	require.Empty(t, c.Tables)
	require.Equal(t, uint64(1), c.NextTableID)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog")

	c := New()
	c.AddTable(sampleSchema("users"))
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, loaded.Tables, "users")
	require.Equal(t, c.Tables["users"].TableID, loaded.Tables["users"].TableID)

	in := loaded.IncomingFKs("users")
	require.Empty(t, in)
}
