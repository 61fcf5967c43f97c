package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skepa-db/skepadb/internal/value"
)

func sampleSchema(name string) *TableSchema {
	return &TableSchema{
		Name: name,
		Columns: []Column{
			{Name: "id", Type: value.ColInt, NotNull: true},
			{Name: "label", Type: value.ColText},
		},
		Constraints: []Constraint{{Kind: ConstraintPrimaryKey, Cols: []string{"id"}}},
	}
}

func TestAddTableAssignsIDsAndRebuildsGraph(t *testing.T) {
	c := New()
	c.AddTable(sampleSchema("users"))
	require.Equal(t, uint64(1), c.Tables["users"].TableID)
	require.Equal(t, uint64(2), c.NextTableID)

	c.AddTable(sampleSchema("orders"))
	require.Equal(t, uint64(2), c.Tables["orders"].TableID)
}

func TestForeignKeyGraph(t *testing.T) {
	c := New()
	c.AddTable(sampleSchema("users"))

	orders := sampleSchema("orders")
	orders.Constraints = append(orders.Constraints, Constraint{
		Kind: ConstraintForeignKey,
		FK: &ForeignKey{
			ChildCols: []string{"label"}, ParentTable: "users", ParentCols: []string{"label"},
			OnDelete: FKCascade, OnUpdate: FKRestrict,
		},
	})
	c.AddTable(orders)

	out := c.OutgoingFKs("orders")
	require.Len(t, out, 1)
	require.Equal(t, "users", out[0].ParentTable)

	in := c.IncomingFKs("users")
	require.Len(t, in, 1)
	require.Equal(t, "orders", in[0].ChildTable)
}

func TestColIndexesFailsOnUnknownColumn(t *testing.T) {
	s := sampleSchema("users")
	_, err := s.ColIndexes([]string{"id", "nope"})
	require.Error(t, err)
}

func TestFindIndexMatchesExactColumnSet(t *testing.T) {
	s := sampleSchema("users")
	s.Indexes = []IndexMeta{{IndexID: 1, Cols: []string{"id"}, Kind: IndexPrimaryKey}}
	m, ok := s.FindIndex([]string{"id"})
	require.True(t, ok)
	require.Equal(t, uint64(1), m.IndexID)

	_, ok = s.FindIndex([]string{"label"})
	require.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	c := New()
	c.AddTable(sampleSchema("users"))
	clone := c.Clone()
	clone.Tables["users"].Columns[0].NotNull = false
	require.True(t, c.Tables["users"].Columns[0].NotNull)
}

func TestDropTableRemovesFromFKGraph(t *testing.T) {
	c := New()
	c.AddTable(sampleSchema("users"))
	orders := sampleSchema("orders")
	orders.Constraints = append(orders.Constraints, Constraint{
		Kind: ConstraintForeignKey,
		FK:   &ForeignKey{ChildCols: []string{"label"}, ParentTable: "users", ParentCols: []string{"label"}, OnDelete: FKRestrict, OnUpdate: FKRestrict},
	})
	c.AddTable(orders)
	c.DropTable("orders")
	require.Empty(t, c.IncomingFKs("users"))
}
