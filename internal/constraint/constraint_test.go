package constraint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/heap"
	"github.com/skepa-db/skepadb/internal/index"
	"github.com/skepa-db/skepadb/internal/pager"
	"github.com/skepa-db/skepadb/internal/value"
)

// testWorld backs the constraint engine with real heap/index packages
// over a temp directory, so the constraint engine is exercised against
// its actual collaborators rather than hand-rolled fakes.
type testWorld struct {
	cat     *catalog.Catalog
	heaps   map[string]*heap.Table
	indexes map[string]map[uint64]*index.Index
}

func newTestWorld() *testWorld {
	return &testWorld{
		cat:     catalog.New(),
		heaps:   make(map[string]*heap.Table),
		indexes: make(map[string]map[uint64]*index.Index),
	}
}

func (w *testWorld) Schema(table string) (*catalog.TableSchema, bool) { return w.cat.Get(table) }

func (w *testWorld) Heap(table string) (HeapStore, bool) {
	h, ok := w.heaps[table]
	return h, ok
}

func (w *testWorld) Index(table string, indexID uint64) (IndexStore, bool) {
	m, ok := w.indexes[table]
	if !ok {
		return nil, false
	}
	idx, ok := m[indexID]
	return idx, ok
}

func (w *testWorld) IncomingFKs(table string) []catalog.IncomingFK { return w.cat.IncomingFKs(table) }

// addTable registers schema with the catalog, opens its heap, and builds
// an Index for every IndexMeta it declares.
func addTable(t *testing.T, w *testWorld, layout pager.Layout, s *catalog.TableSchema, indexKinds map[string]catalog.IndexKind) {
	t.Helper()
	w.cat.AddTable(s)

	h, err := heap.Open(layout, s.TableID, len(s.Columns))
	require.NoError(t, err)
	w.heaps[s.Name] = h

	w.indexes[s.Name] = make(map[uint64]*index.Index)
	for colsKey, kind := range indexKinds {
		cols := []string{colsKey}
		s.NextIndexID++
		meta := catalog.IndexMeta{IndexID: s.NextIndexID, Cols: cols, Kind: kind}
		s.Indexes = append(s.Indexes, meta)
		w.indexes[s.Name][meta.IndexID] = index.New(meta, filepath.Join(layout.TableIndexDir(s.TableID), "idx.json"))
	}
}

func usersSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		Name: "users",
		Columns: []catalog.Column{
			{Name: "id", Type: value.ColInt, NotNull: true},
			{Name: "label", Type: value.ColText},
		},
		Constraints: []catalog.Constraint{{Kind: catalog.ConstraintPrimaryKey, Cols: []string{"id"}}},
	}
}

func ordersSchema(onDelete, onUpdate catalog.FKAction) *catalog.TableSchema {
	return &catalog.TableSchema{
		Name: "orders",
		Columns: []catalog.Column{
			{Name: "id", Type: value.ColInt, NotNull: true},
			{Name: "user_id", Type: value.ColInt},
		},
		Constraints: []catalog.Constraint{
			{Kind: catalog.ConstraintPrimaryKey, Cols: []string{"id"}},
			{Kind: catalog.ConstraintForeignKey, FK: &catalog.ForeignKey{
				ChildCols: []string{"user_id"}, ParentTable: "users", ParentCols: []string{"id"},
				OnDelete: onDelete, OnUpdate: onUpdate,
			}},
		},
	}
}

func TestInsertEnforcesNotNull(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Null(), value.Text("a")})
	require.True(t, dberr.Is(err, dberr.KindNotNullViolation))
}

func TestInsertEnforcesPrimaryKeyUniqueness(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("a")})
	require.NoError(t, err)

	_, err = e.Insert("users", value.Row{value.Int(1), value.Text("b")})
	require.True(t, dberr.Is(err, dberr.KindUniqueViolation))
}

func TestInsertEnforcesForeignKey(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKRestrict, catalog.FKRestrict), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("orders", value.Row{value.Int(1), value.Int(99)})
	require.True(t, dberr.Is(err, dberr.KindForeignKeyViolation))

	_, err = e.Insert("users", value.Row{value.Int(99), value.Text("x")})
	require.NoError(t, err)
	_, err = e.Insert("orders", value.Row{value.Int(1), value.Int(99)})
	require.NoError(t, err)
}

func TestDeleteRestrictBlocksWhenChildReferences(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKRestrict, catalog.FKRestrict), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	_, err = e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	err = e.Delete("users", 1)
	require.True(t, dberr.Is(err, dberr.KindForeignKeyViolation))
}

func TestDeleteCascadeRemovesChildren(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKCascade, catalog.FKRestrict), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	orderID, err := e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	require.NoError(t, e.Delete("users", 1))
	_, ok := w.heaps["orders"].Get(orderID)
	require.False(t, ok)
}

func TestDeleteSetNullOnChildren(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKSetNull, catalog.FKRestrict), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	orderID, err := e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	require.NoError(t, e.Delete("users", 1))
	row, ok := w.heaps["orders"].Get(orderID)
	require.True(t, ok)
	require.True(t, row[1].IsNull())
}

func TestDeleteSetNullFailsWhenChildColumnNotNull(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	orders := ordersSchema(catalog.FKSetNull, catalog.FKRestrict)
	orders.Columns[1].NotNull = true
	addTable(t, w, layout, orders, map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	_, err = e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	err = e.Delete("users", 1)
	require.True(t, dberr.Is(err, dberr.KindNotNullViolation))
}

func TestUpdateCascadeRewritesChildForeignKey(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKRestrict, catalog.FKCascade), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	orderID, err := e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	require.NoError(t, e.Update("users", 1, value.Row{value.Int(2), value.Text("x")}))

	row, ok := w.heaps["orders"].Get(orderID)
	require.True(t, ok)
	require.Equal(t, int64(2), row[1].IntValue())
}

func TestUpdateSetNullOnChildrenWhenParentKeyChanges(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})
	addTable(t, w, layout, ordersSchema(catalog.FKRestrict, catalog.FKSetNull), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)
	orderID, err := e.Insert("orders", value.Row{value.Int(1), value.Int(1)})
	require.NoError(t, err)

	require.NoError(t, e.Update("users", 1, value.Row{value.Int(2), value.Text("x")}))

	row, ok := w.heaps["orders"].Get(orderID)
	require.True(t, ok)
	require.True(t, row[1].IsNull())
}

func TestUpdateUniqueAllowsUnchangedRowToPassItself(t *testing.T) {
	layout := pager.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	w := newTestWorld()
	addTable(t, w, layout, usersSchema(), map[string]catalog.IndexKind{"id": catalog.IndexPrimaryKey})

	e := New(w, nil)
	_, err := e.Insert("users", value.Row{value.Int(1), value.Text("x")})
	require.NoError(t, err)

	require.NoError(t, e.Update("users", 1, value.Row{value.Int(1), value.Text("y")}))
}
