package engine

import (
	"os"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/index"
	"github.com/skepa-db/skepadb/internal/value"
)

// buildConstraint resolves a parser-facing ConstraintDef into a
// catalog.Constraint, validating its action/kind vocabulary.
func buildConstraint(cd ConstraintDef) (catalog.Constraint, error) {
	switch cd.Kind {
	case "primary_key":
		return catalog.Constraint{Kind: catalog.ConstraintPrimaryKey, Cols: cd.Cols}, nil
	case "unique":
		return catalog.Constraint{Kind: catalog.ConstraintUnique, Cols: cd.Cols}, nil
	case "foreign_key":
		onDelete, err := parseFKAction(cd.OnDelete)
		if err != nil {
			return catalog.Constraint{}, err
		}
		onUpdate, err := parseFKAction(cd.OnUpdate)
		if err != nil {
			return catalog.Constraint{}, err
		}
		return catalog.Constraint{
			Kind: catalog.ConstraintForeignKey,
			FK: &catalog.ForeignKey{
				ChildCols: cd.Cols, ParentTable: cd.ParentTable, ParentCols: cd.ParentCols,
				OnDelete: onDelete, OnUpdate: onUpdate,
			},
		}, nil
	default:
		return catalog.Constraint{}, dberr.Newf(dberr.KindSyntax, "unknown constraint kind %q", cd.Kind)
	}
}

func parseFKAction(s string) (catalog.FKAction, error) {
	switch s {
	case "", "restrict":
		return catalog.FKRestrict, nil
	case "cascade":
		return catalog.FKCascade, nil
	case "set_null":
		return catalog.FKSetNull, nil
	case "no_action":
		return catalog.FKNoAction, nil
	default:
		return 0, dberr.Newf(dberr.KindSyntax, "unknown referential action %q", s)
	}
}

// ensureIndex finds an existing index over exactly cols, or creates a
// new IndexMeta for it (assigned a fresh index_id), returning it either
// way. It does not open storage for the index — callers do that.
func ensureIndex(schema *catalog.TableSchema, cols []string, kind catalog.IndexKind) *catalog.IndexMeta {
	if m, ok := schema.FindIndex(cols); ok {
		return m
	}
	schema.NextIndexID++
	m := catalog.IndexMeta{IndexID: schema.NextIndexID, Cols: append([]string(nil), cols...), Kind: kind}
	schema.Indexes = append(schema.Indexes, m)
	return &schema.Indexes[len(schema.Indexes)-1]
}

func (e *Engine) execCreateTable(s CreateTable) (*Result, error) {
	if _, exists := e.cat.Get(s.Name); exists {
		return nil, dberr.Newf(dberr.KindDuplicateConstraint, "table %q already exists", s.Name)
	}

	schema := &catalog.TableSchema{Name: s.Name}
	for _, c := range s.Columns {
		ct, ok := value.ParseColType(c.Type)
		if !ok {
			return nil, dberr.Newf(dberr.KindTypeError, "unknown column type %q", c.Type)
		}
		schema.Columns = append(schema.Columns, catalog.Column{Name: c.Name, Type: ct, NotNull: c.NotNull})
	}

	for _, cd := range s.Constraints {
		c, err := buildConstraint(cd)
		if err != nil {
			return nil, err
		}
		if c.Kind == catalog.ConstraintPrimaryKey {
			for _, name := range c.Cols {
				idx, ok := schema.ColIndex(name)
				if !ok {
					return nil, dberr.Newf(dberr.KindUnknownColumn, "no such column %q on %q", name, s.Name)
				}
				schema.Columns[idx].NotNull = true
			}
		}
		schema.Constraints = append(schema.Constraints, c)
	}
	for _, c := range schema.Constraints {
		switch c.Kind {
		case catalog.ConstraintPrimaryKey:
			ensureIndex(schema, c.Cols, catalog.IndexPrimaryKey)
		case catalog.ConstraintUnique:
			ensureIndex(schema, c.Cols, catalog.IndexUnique)
		}
	}

	e.cat.AddTable(schema)

	for _, c := range schema.Constraints {
		if c.Kind != catalog.ConstraintForeignKey {
			continue
		}
		parentSchema := schema
		if c.FK.ParentTable != s.Name {
			ps, ok := e.cat.Get(c.FK.ParentTable)
			if !ok {
				e.cat.DropTable(s.Name)
				return nil, dberr.Newf(dberr.KindUnknownTable, "no such table %q referenced by foreign key", c.FK.ParentTable)
			}
			parentSchema = ps
		}
		meta := ensureIndex(parentSchema, c.FK.ParentCols, catalog.IndexUnique)
		if pts, ok := e.tables[parentSchema.Name]; ok {
			if _, open := pts.indexes[meta.IndexID]; !open {
				if err := e.backfillIndex(parentSchema, pts, meta); err != nil {
					e.cat.DropTable(s.Name)
					return nil, err
				}
			}
		}
	}

	ts, err := e.openTableState(schema)
	if err != nil {
		e.cat.DropTable(s.Name)
		return nil, err
	}
	e.tables[s.Name] = ts

	if err := e.persistCatalogChange(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Engine) execCreateIndex(s CreateIndex) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}
	if _, ok := schema.FindIndex(s.Cols); ok {
		return nil, dberr.Newf(dberr.KindDuplicateIndex, "index already exists on %q%v", s.Table, s.Cols)
	}
	if _, err := schema.ColIndexes(s.Cols); err != nil {
		return nil, dberr.Wrap(dberr.KindUnknownColumn, err)
	}

	meta := ensureIndex(schema, s.Cols, catalog.IndexSecondary)
	idx := index.New(*meta, e.layout.IndexPath(schema.TableID, meta.IndexID))

	idxs, _ := schema.ColIndexes(s.Cols)
	if err := ts.heap.Scan(func(rowID uint64, row value.Row) error {
		return idx.Insert(row.Project(idxs), rowID)
	}); err != nil {
		return nil, err
	}
	ts.indexes[meta.IndexID] = idx

	if err := e.persistCatalogChange(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Engine) execDropIndex(s DropIndex) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}
	meta, ok := schema.FindIndex(s.Cols)
	if !ok {
		return nil, dberr.Newf(dberr.KindUnknownIndex, "no index on %q%v", s.Table, s.Cols)
	}
	if meta.Kind != catalog.IndexSecondary {
		return nil, dberr.Newf(dberr.KindInternal, "index on %q%v backs a table constraint and cannot be dropped directly", s.Table, s.Cols)
	}

	path := e.layout.IndexPath(schema.TableID, meta.IndexID)
	delete(ts.indexes, meta.IndexID)
	for i, m := range schema.Indexes {
		if m.IndexID == meta.IndexID {
			schema.Indexes = append(schema.Indexes[:i], schema.Indexes[i+1:]...)
			break
		}
	}
	_ = os.Remove(path)

	if err := e.persistCatalogChange(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func (e *Engine) execAlterTable(s AlterTable) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}

	switch s.Op {
	case AlterAddUnique:
		if err := e.validateUnique(schema, ts, s.Cols); err != nil {
			return nil, err
		}
		schema.Constraints = append(schema.Constraints, catalog.Constraint{Kind: catalog.ConstraintUnique, Cols: s.Cols})
		meta := ensureIndex(schema, s.Cols, catalog.IndexUnique)
		if err := e.backfillIndex(schema, ts, meta); err != nil {
			return nil, err
		}

	case AlterDropUnique:
		if err := e.dropConstraintAndIndex(schema, ts, catalog.ConstraintUnique, s.Cols); err != nil {
			return nil, err
		}

	case AlterAddFK:
		c, err := buildConstraint(s.FK)
		if err != nil {
			return nil, err
		}
		if err := e.validateFK(schema, ts, c.FK); err != nil {
			return nil, err
		}
		parentSchema := schema
		if c.FK.ParentTable != s.Table {
			ps, ok := e.cat.Get(c.FK.ParentTable)
			if !ok {
				return nil, dberr.Newf(dberr.KindUnknownTable, "no such table %q", c.FK.ParentTable)
			}
			parentSchema = ps
		}
		meta := ensureIndex(parentSchema, c.FK.ParentCols, catalog.IndexUnique)
		if pts, ok := e.tables[parentSchema.Name]; ok {
			if _, open := pts.indexes[meta.IndexID]; !open {
				if err := e.backfillIndex(parentSchema, pts, meta); err != nil {
					return nil, err
				}
			}
		}
		schema.Constraints = append(schema.Constraints, c)
		e.cat.ReplaceTable(schema)

	case AlterDropFK:
		found := false
		for i, c := range schema.Constraints {
			if c.Kind != catalog.ConstraintForeignKey {
				continue
			}
			if sameStrList(c.FK.ChildCols, s.DropFKChildCols) && c.FK.ParentTable == s.DropFKParentTable && sameStrList(c.FK.ParentCols, s.DropFKParentCols) {
				schema.Constraints = append(schema.Constraints[:i], schema.Constraints[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return nil, dberr.New(dberr.KindNoSuchConstraint, "no matching foreign key to drop")
		}
		e.cat.ReplaceTable(schema)

	case AlterSetNotNull:
		col := s.Cols[0]
		idx, ok := schema.ColIndex(col)
		if !ok {
			return nil, dberr.Newf(dberr.KindUnknownColumn, "no such column %q", col)
		}
		if err := ts.heap.Scan(func(rowID uint64, row value.Row) error {
			if row[idx].IsNull() {
				return dberr.Newf(dberr.KindNotNullViolation, "column %q contains NULL in existing rows", col)
			}
			return nil
		}); err != nil {
			return nil, err
		}
		schema.Columns[idx].NotNull = true

	case AlterDropNotNull:
		col := s.Cols[0]
		idx, ok := schema.ColIndex(col)
		if !ok {
			return nil, dberr.Newf(dberr.KindUnknownColumn, "no such column %q", col)
		}
		schema.Columns[idx].NotNull = false

	default:
		return nil, dberr.Newf(dberr.KindInternal, "unknown alter op %v", s.Op)
	}

	if err := e.persistCatalogChange(); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// validateUnique scans the table, failing before the change commits if
// any existing NULL-free projection collides.
func (e *Engine) validateUnique(schema *catalog.TableSchema, ts *tableState, cols []string) error {
	idxs, err := schema.ColIndexes(cols)
	if err != nil {
		return dberr.Wrap(dberr.KindUnknownColumn, err)
	}
	seen := make(map[string]bool)
	return ts.heap.Scan(func(rowID uint64, row value.Row) error {
		key := row.Project(idxs)
		if key.HasNull() {
			return nil
		}
		k := string(value.EncodeRow(key))
		if seen[k] {
			return dberr.Newf(dberr.KindUniqueViolation, "existing rows violate new unique constraint on %v", cols)
		}
		seen[k] = true
		return nil
	})
}

// validateFK scans the table, failing if any existing NULL-free child
// projection has no matching parent row.
func (e *Engine) validateFK(schema *catalog.TableSchema, ts *tableState, fk *catalog.ForeignKey) error {
	idxs, err := schema.ColIndexes(fk.ChildCols)
	if err != nil {
		return dberr.Wrap(dberr.KindUnknownColumn, err)
	}
	parentSchema := schema
	if fk.ParentTable != schema.Name {
		ps, ok := e.cat.Get(fk.ParentTable)
		if !ok {
			return dberr.Newf(dberr.KindUnknownTable, "no such table %q", fk.ParentTable)
		}
		parentSchema = ps
	}
	parentIdxs, err := parentSchema.ColIndexes(fk.ParentCols)
	if err != nil {
		return dberr.Wrap(dberr.KindUnknownColumn, err)
	}
	parentTS, ok := e.tables[parentSchema.Name]
	if !ok {
		return dberr.Newf(dberr.KindInternal, "parent table %q not open", parentSchema.Name)
	}

	parentKeys := make(map[string]bool)
	if err := parentTS.heap.Scan(func(rowID uint64, row value.Row) error {
		key := row.Project(parentIdxs)
		if !key.HasNull() {
			parentKeys[string(value.EncodeRow(key))] = true
		}
		return nil
	}); err != nil {
		return err
	}

	return ts.heap.Scan(func(rowID uint64, row value.Row) error {
		key := row.Project(idxs)
		if key.HasNull() {
			return nil
		}
		if !parentKeys[string(value.EncodeRow(key))] {
			return dberr.Newf(dberr.KindForeignKeyViolation, "existing rows violate new foreign key on %v", fk.ChildCols)
		}
		return nil
	})
}

func (e *Engine) backfillIndex(schema *catalog.TableSchema, ts *tableState, meta *catalog.IndexMeta) error {
	idx, ok := ts.indexes[meta.IndexID]
	if !ok {
		idx = index.New(*meta, e.layout.IndexPath(schema.TableID, meta.IndexID))
		ts.indexes[meta.IndexID] = idx
	}
	idxs, err := schema.ColIndexes(meta.Cols)
	if err != nil {
		return err
	}
	return ts.heap.Scan(func(rowID uint64, row value.Row) error {
		return idx.Insert(row.Project(idxs), rowID)
	})
}

func (e *Engine) dropConstraintAndIndex(schema *catalog.TableSchema, ts *tableState, kind catalog.ConstraintKind, cols []string) error {
	found := false
	for i, c := range schema.Constraints {
		if c.Kind == kind && sameStrList(c.Cols, cols) {
			schema.Constraints = append(schema.Constraints[:i], schema.Constraints[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return dberr.New(dberr.KindNoSuchConstraint, "no matching constraint to drop")
	}
	if meta, ok := schema.FindIndex(cols); ok {
		delete(ts.indexes, meta.IndexID)
		_ = os.Remove(e.layout.IndexPath(schema.TableID, meta.IndexID))
		for i, m := range schema.Indexes {
			if m.IndexID == meta.IndexID {
				schema.Indexes = append(schema.Indexes[:i], schema.Indexes[i+1:]...)
				break
			}
		}
	}
	return nil
}

func sameStrList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
