// Package constraint implements the constraint engine: every
// insert/update/delete from the executor passes through here, which
// checks arity/type/not-null, enforces PK/Unique via the index manager,
// probes and cascades foreign keys, and feeds the current transaction's
// undo set and WAL frame buffer. Grounded on the depth-first,
// visited-set cascade walk used in the original Rust engine's
// referential-integrity pass, re-expressed against this package's own
// Store/World seams.
package constraint

import (
	"fmt"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
)

// HeapStore is the subset of internal/heap.Table the constraint engine
// needs for one table.
type HeapStore interface {
	Get(rowID uint64) (value.Row, bool)
	Insert(row value.Row) (uint64, error)
	InsertWithID(rowID uint64, row value.Row) error
	Update(rowID uint64, row value.Row) error
	Delete(rowID uint64) error
	Scan(fn func(rowID uint64, row value.Row) error) error
}

// IndexStore is the subset of internal/index.Index the constraint
// engine needs for one index.
type IndexStore interface {
	Insert(key value.Row, rowID uint64) error
	Remove(key value.Row, rowID uint64)
	LookupEq(key value.Row) ([]uint64, bool)
}

// MutationRecorder receives every elementary row mutation the constraint
// engine performs (direct and cascaded), so the caller can buffer the
// matching WAL frame and undo record. table is the schema name; oldRow/
// newRow are nil for the side that does not apply (insert has no
// oldRow, delete has no newRow).
type MutationRecorder interface {
	OnInsert(table string, rowID uint64, newRow value.Row)
	OnUpdate(table string, rowID uint64, oldRow, newRow value.Row)
	OnDelete(table string, rowID uint64, oldRow value.Row)
}

// World gives the constraint engine access to any table's schema, heap,
// and indexes, since FK cascades reach across tables.
type World interface {
	Schema(table string) (*catalog.TableSchema, bool)
	Heap(table string) (HeapStore, bool)
	Index(table string, indexID uint64) (IndexStore, bool)
}

// Engine is the constraint engine for one open database, bound to the
// current transaction's recorder for the duration of one statement.
type Engine struct {
	World World
	Rec   MutationRecorder
}

func New(world World, rec MutationRecorder) *Engine {
	return &Engine{World: world, Rec: rec}
}

func internalf(format string, args ...any) error {
	return dberr.Newf(dberr.KindInternal, format, args...)
}

// checkArityTypeNotNull validates row against schema.
func checkArityTypeNotNull(schema *catalog.TableSchema, row value.Row) error {
	if len(row) != len(schema.Columns) {
		return dberr.Newf(dberr.KindArityMismatch, "table %q expects %d columns, got %d", schema.Name, len(schema.Columns), len(row))
	}
	for i, col := range schema.Columns {
		v := row[i]
		if v.IsNull() {
			if col.NotNull {
				return dberr.Newf(dberr.KindNotNullViolation, "column %q.%q may not be NULL", schema.Name, col.Name)
			}
			continue
		}
		if !v.MatchesColType(col.Type) {
			return dberr.Newf(dberr.KindTypeError, "column %q.%q expects %s", schema.Name, col.Name, col.Type)
		}
	}
	return nil
}

// checkUnique probes every PrimaryKey/Unique constraint's index.
// excludeRowID lets an update's own unchanged projection pass (0 means
// "no row excluded", used by insert).
func (e *Engine) checkUnique(table string, schema *catalog.TableSchema, row value.Row, excludeRowID uint64) error {
	for _, c := range schema.UniqueLikeConstraints() {
		idxs, err := schema.ColIndexes(c.Cols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		key := row.Project(idxs)
		if key.HasNull() {
			continue
		}
		meta, ok := schema.FindIndex(c.Cols)
		if !ok {
			return internalf("constraint engine: no index for unique constraint on %q%v", table, c.Cols)
		}
		idx, ok := e.World.Index(table, meta.IndexID)
		if !ok {
			return internalf("constraint engine: index %d missing for %q", meta.IndexID, table)
		}
		ids, found := idx.LookupEq(key)
		if !found {
			continue
		}
		for _, id := range ids {
			if id != excludeRowID {
				return dberr.Newf(dberr.KindUniqueViolation, "duplicate value for unique constraint on %q%v", table, c.Cols)
			}
		}
	}
	return nil
}

// checkOutgoingFKs probes every outgoing FK's parent PK/Unique index.
// The parent lookup reads the live in-memory index, so it sees
// uncommitted effects of the same transaction.
func (e *Engine) checkOutgoingFKs(table string, schema *catalog.TableSchema, row value.Row) error {
	for _, fk := range schema.ForeignKeys() {
		idxs, err := schema.ColIndexes(fk.ChildCols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		key := row.Project(idxs)
		if key.HasNull() {
			continue
		}
		parentSchema, ok := e.World.Schema(fk.ParentTable)
		if !ok {
			return internalf("constraint engine: parent table %q missing for fk on %q", fk.ParentTable, table)
		}
		meta, ok := parentSchema.FindIndex(fk.ParentCols)
		if !ok {
			return internalf("constraint engine: parent index missing for fk %q -> %q", table, fk.ParentTable)
		}
		idx, ok := e.World.Index(fk.ParentTable, meta.IndexID)
		if !ok {
			return internalf("constraint engine: parent index %d missing", meta.IndexID)
		}
		if ids, found := idx.LookupEq(key); !found || len(ids) == 0 {
			return dberr.Newf(dberr.KindForeignKeyViolation, "foreign key %q%v -> %q%v has no matching parent row", table, fk.ChildCols, fk.ParentTable, fk.ParentCols)
		}
	}
	return nil
}

func (e *Engine) indexInsertAll(table string, schema *catalog.TableSchema, rowID uint64, row value.Row) error {
	for _, m := range schema.Indexes {
		idxs, err := schema.ColIndexes(m.Cols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		idx, ok := e.World.Index(table, m.IndexID)
		if !ok {
			return internalf("constraint engine: index %d missing for %q", m.IndexID, table)
		}
		if err := idx.Insert(row.Project(idxs), rowID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) indexRemoveAll(table string, schema *catalog.TableSchema, rowID uint64, row value.Row) error {
	for _, m := range schema.Indexes {
		idxs, err := schema.ColIndexes(m.Cols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		idx, ok := e.World.Index(table, m.IndexID)
		if !ok {
			return internalf("constraint engine: index %d missing for %q", m.IndexID, table)
		}
		idx.Remove(row.Project(idxs), rowID)
	}
	return nil
}

// Insert validates and writes a new row.
func (e *Engine) Insert(table string, row value.Row) (uint64, error) {
	schema, ok := e.World.Schema(table)
	if !ok {
		return 0, dberr.Newf(dberr.KindUnknownTable, "no such table %q", table)
	}
	if err := checkArityTypeNotNull(schema, row); err != nil {
		return 0, err
	}
	if err := e.checkUnique(table, schema, row, 0); err != nil {
		return 0, err
	}
	if err := e.checkOutgoingFKs(table, schema, row); err != nil {
		return 0, err
	}

	heap, ok := e.World.Heap(table)
	if !ok {
		return 0, internalf("constraint engine: heap missing for %q", table)
	}
	rowID, err := heap.Insert(row)
	if err != nil {
		return 0, err
	}
	if err := e.indexInsertAll(table, schema, rowID, row); err != nil {
		return 0, err
	}
	if e.Rec != nil {
		e.Rec.OnInsert(table, rowID, row)
	}
	return rowID, nil
}

// Update applies newRow over the row at rowID, cascading through any FK
// where table is the referenced parent.
func (e *Engine) Update(table string, rowID uint64, newRow value.Row) error {
	return e.update(table, rowID, newRow, newVisited())
}

func (e *Engine) update(table string, rowID uint64, newRow value.Row, visited visitedSet) error {
	schema, ok := e.World.Schema(table)
	if !ok {
		return dberr.Newf(dberr.KindUnknownTable, "no such table %q", table)
	}
	heap, ok := e.World.Heap(table)
	if !ok {
		return internalf("constraint engine: heap missing for %q", table)
	}
	oldRow, ok := heap.Get(rowID)
	if !ok {
		return internalf("constraint engine: row %d vanished from %q", rowID, table)
	}

	if err := checkArityTypeNotNull(schema, newRow); err != nil {
		return err
	}
	if err := e.checkUnique(table, schema, newRow, rowID); err != nil {
		return err
	}
	if err := e.checkOutgoingFKs(table, schema, newRow); err != nil {
		return err
	}

	// The parent row's own heap/index update must land before the cascade
	// walks its children: a cascaded child re-enters through e.update,
	// which re-checks its outgoing FK against this table's index, and that
	// check has to see the new key, not the one being replaced.
	if err := e.indexRemoveAll(table, schema, rowID, oldRow); err != nil {
		return err
	}
	if err := heap.Update(rowID, newRow); err != nil {
		return err
	}
	if err := e.indexInsertAll(table, schema, rowID, newRow); err != nil {
		return err
	}
	if e.Rec != nil {
		e.Rec.OnUpdate(table, rowID, oldRow, newRow)
	}

	if err := e.cascadeParentUpdate(table, schema, oldRow, newRow, visited); err != nil {
		return err
	}
	return nil
}

// Delete removes the row at rowID, cascading through any FK where table
// is the referenced parent.
func (e *Engine) Delete(table string, rowID uint64) error {
	return e.delete(table, rowID, newVisited())
}

func (e *Engine) delete(table string, rowID uint64, visited visitedSet) error {
	schema, ok := e.World.Schema(table)
	if !ok {
		return dberr.Newf(dberr.KindUnknownTable, "no such table %q", table)
	}
	heap, ok := e.World.Heap(table)
	if !ok {
		return internalf("constraint engine: heap missing for %q", table)
	}
	oldRow, ok := heap.Get(rowID)
	if !ok {
		return internalf("constraint engine: row %d vanished from %q", rowID, table)
	}

	if err := e.cascadeParentDelete(table, schema, oldRow, visited); err != nil {
		return err
	}

	if err := e.indexRemoveAll(table, schema, rowID, oldRow); err != nil {
		return err
	}
	if err := heap.Delete(rowID); err != nil {
		return err
	}
	if e.Rec != nil {
		e.Rec.OnDelete(table, rowID, oldRow)
	}
	return nil
}

// visitedSet is keyed by (table, row_id, action) to stop a cascade walk
// from revisiting the same effect twice within one triggering operation.
type visitedSet map[string]bool

func newVisited() visitedSet { return make(visitedSet) }

func (v visitedSet) seen(table string, rowID uint64, action string) bool {
	k := fmt.Sprintf("%s|%d|%s", table, rowID, action)
	if v[k] {
		return true
	}
	v[k] = true
	return false
}

// cascadeParentUpdate walks every FK referencing table, reacting to a
// changed referenced projection.
func (e *Engine) cascadeParentUpdate(table string, schema *catalog.TableSchema, oldRow, newRow value.Row, visited visitedSet) error {
	for _, ref := range e.worldIncomingFKs(table) {
		parentIdxs, err := schema.ColIndexes(ref.FK.ParentCols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		oldKey := oldRow.Project(parentIdxs)
		newKey := newRow.Project(parentIdxs)
		if oldKey.HasNull() || value.CompareRows(oldKey, newKey) == 0 {
			continue
		}

		childSchema, ok := e.World.Schema(ref.ChildTable)
		if !ok {
			return internalf("constraint engine: child table %q missing", ref.ChildTable)
		}
		childIdxs, err := childSchema.ColIndexes(ref.FK.ChildCols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		childHeap, ok := e.World.Heap(ref.ChildTable)
		if !ok {
			return internalf("constraint engine: child heap %q missing", ref.ChildTable)
		}

		var children []uint64
		err = childHeap.Scan(func(childRowID uint64, childRow value.Row) error {
			k := childRow.Project(childIdxs)
			if k.HasNull() {
				return nil
			}
			if value.CompareRows(k, oldKey) == 0 {
				children = append(children, childRowID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(children) == 0 {
			continue
		}

		switch ref.FK.OnUpdate {
		case catalog.FKRestrict, catalog.FKNoAction:
			return dberr.Newf(dberr.KindForeignKeyViolation, "row referenced by %q via foreign key", ref.ChildTable)
		case catalog.FKCascade:
			for _, childRowID := range children {
				if visited.seen(ref.ChildTable, childRowID, "update") {
					continue
				}
				childRow, ok := childHeap.Get(childRowID)
				if !ok {
					continue
				}
				updated := childRow.Clone()
				for i, ci := range childIdxs {
					updated[ci] = newKey[i]
				}
				if err := e.update(ref.ChildTable, childRowID, updated, visited); err != nil {
					return err
				}
			}
		case catalog.FKSetNull:
			for _, childRowID := range children {
				if visited.seen(ref.ChildTable, childRowID, "update") {
					continue
				}
				childRow, ok := childHeap.Get(childRowID)
				if !ok {
					continue
				}
				updated := childRow.Clone()
				for _, ci := range childIdxs {
					if childSchema.Columns[ci].NotNull {
						return dberr.Newf(dberr.KindNotNullViolation, "cannot SET NULL on %q.%q", ref.ChildTable, childSchema.Columns[ci].Name)
					}
					updated[ci] = value.Null()
				}
				if err := e.update(ref.ChildTable, childRowID, updated, visited); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// cascadeParentDelete walks every FK referencing table, reacting to a
// row about to be deleted.
func (e *Engine) cascadeParentDelete(table string, schema *catalog.TableSchema, oldRow value.Row, visited visitedSet) error {
	for _, ref := range e.worldIncomingFKs(table) {
		parentIdxs, err := schema.ColIndexes(ref.FK.ParentCols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		oldKey := oldRow.Project(parentIdxs)
		if oldKey.HasNull() {
			continue
		}

		childSchema, ok := e.World.Schema(ref.ChildTable)
		if !ok {
			return internalf("constraint engine: child table %q missing", ref.ChildTable)
		}
		childIdxs, err := childSchema.ColIndexes(ref.FK.ChildCols)
		if err != nil {
			return internalf("constraint engine: %v", err)
		}
		childHeap, ok := e.World.Heap(ref.ChildTable)
		if !ok {
			return internalf("constraint engine: child heap %q missing", ref.ChildTable)
		}

		var children []uint64
		err = childHeap.Scan(func(childRowID uint64, childRow value.Row) error {
			k := childRow.Project(childIdxs)
			if k.HasNull() {
				return nil
			}
			if value.CompareRows(k, oldKey) == 0 {
				children = append(children, childRowID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(children) == 0 {
			continue
		}

		switch ref.FK.OnDelete {
		case catalog.FKRestrict, catalog.FKNoAction:
			return dberr.Newf(dberr.KindForeignKeyViolation, "row referenced by %q via foreign key", ref.ChildTable)
		case catalog.FKCascade:
			for _, childRowID := range children {
				if visited.seen(ref.ChildTable, childRowID, "delete") {
					continue
				}
				if err := e.delete(ref.ChildTable, childRowID, visited); err != nil {
					return err
				}
			}
		case catalog.FKSetNull:
			for _, childRowID := range children {
				if visited.seen(ref.ChildTable, childRowID, "update") {
					continue
				}
				childRow, ok := childHeap.Get(childRowID)
				if !ok {
					continue
				}
				updated := childRow.Clone()
				for _, ci := range childIdxs {
					if childSchema.Columns[ci].NotNull {
						return dberr.Newf(dberr.KindNotNullViolation, "cannot SET NULL on %q.%q", ref.ChildTable, childSchema.Columns[ci].Name)
					}
					updated[ci] = value.Null()
				}
				if err := e.update(ref.ChildTable, childRowID, updated, visited); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// worldIncomingFKs is a small seam so this file doesn't need the
// concrete *catalog.Catalog type, only what World already exposes.
// World implementations are expected to delegate to
// catalog.Catalog.IncomingFKs.
func (e *Engine) worldIncomingFKs(table string) []catalog.IncomingFK {
	type incomingProvider interface {
		IncomingFKs(table string) []catalog.IncomingFK
	}
	if p, ok := e.World.(incomingProvider); ok {
		return p.IncomingFKs(table)
	}
	return nil
}
