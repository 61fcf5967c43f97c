package engine

import (
	"sort"

	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/constraint"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
)

// candidateRowIDs resolves a WHERE clause to the set of row_ids to
// consider: an equality predicate on the sole
// column of some index takes the index-lookup path; everything else
// (relational/`like` operators, or no matching index) falls back to a
// full scan with predicate filtering. Either way the predicate is
// re-applied against the fetched row, so a stale index entry can never
// produce a wrong result.
func (e *Engine) candidateRowIDs(schema *catalog.TableSchema, ts *tableState, where *Predicate) ([]uint64, error) {
	if where != nil && where.Op == OpEq {
		if meta, ok := schema.FindIndex([]string{where.Col}); ok {
			idx, ok := ts.indexes[meta.IndexID]
			if !ok {
				return nil, dberr.Newf(dberr.KindInternal, "index %d missing for %q", meta.IndexID, schema.Name)
			}
			ids, found := idx.LookupEq(value.Row{where.Val})
			if !found {
				return nil, nil
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			return e.filterIDs(schema, ts, ids, where)
		}
	}

	var ids []uint64
	err := ts.heap.Scan(func(rowID uint64, row value.Row) error {
		ok, err := evalPredicate(schema, row, where)
		if err != nil {
			return err
		}
		if ok {
			ids = append(ids, rowID)
		}
		return nil
	})
	return ids, err
}

// filterIDs re-checks the predicate against each candidate row, needed
// on the index-lookup path since the index itself does not encode the
// full predicate semantics (NULL handling, type checks).
func (e *Engine) filterIDs(schema *catalog.TableSchema, ts *tableState, ids []uint64, where *Predicate) ([]uint64, error) {
	out := ids[:0]
	for _, id := range ids {
		row, ok := ts.heap.Get(id)
		if !ok {
			continue
		}
		match, err := evalPredicate(schema, row, where)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, id)
		}
	}
	return out, nil
}

func applyAssignments(schema *catalog.TableSchema, row value.Row, assigns []Assignment) (value.Row, error) {
	out := row.Clone()
	for _, a := range assigns {
		idx, ok := schema.ColIndex(a.Col)
		if !ok {
			return nil, dberr.Newf(dberr.KindUnknownColumn, "no such column %q on %q", a.Col, schema.Name)
		}
		out[idx] = a.Val
	}
	return out, nil
}

func (e *Engine) resolveTable(table string) (*catalog.TableSchema, *tableState, error) {
	schema, ok := e.cat.Get(table)
	if !ok {
		return nil, nil, dberr.Newf(dberr.KindUnknownTable, "no such table %q", table)
	}
	ts, ok := e.tables[table]
	if !ok {
		return nil, nil, dberr.Newf(dberr.KindInternal, "table %q open in catalog but not in storage", table)
	}
	return schema, ts, nil
}

func (e *Engine) execInsert(ce *constraint.Engine, s Insert) (*Result, error) {
	if _, _, err := e.resolveTable(s.Table); err != nil {
		return nil, err
	}
	if _, err := ce.Insert(s.Table, s.Values); err != nil {
		return nil, err
	}
	return &Result{AffectedRows: 1}, nil
}

func (e *Engine) execUpdate(ce *constraint.Engine, s Update) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}
	ids, err := e.candidateRowIDs(schema, ts, s.Where)
	if err != nil {
		return nil, err
	}

	var affected int64
	for _, id := range ids {
		oldRow, ok := ts.heap.Get(id)
		if !ok {
			continue
		}
		newRow, err := applyAssignments(schema, oldRow, s.Assigns)
		if err != nil {
			return nil, err
		}
		if err := ce.Update(s.Table, id, newRow); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{AffectedRows: affected}, nil
}

func (e *Engine) execDelete(ce *constraint.Engine, s Delete) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}
	ids, err := e.candidateRowIDs(schema, ts, s.Where)
	if err != nil {
		return nil, err
	}

	var affected int64
	for _, id := range ids {
		if err := ce.Delete(s.Table, id); err != nil {
			return nil, err
		}
		affected++
	}
	return &Result{AffectedRows: affected}, nil
}

func (e *Engine) execSelect(s Select) (*Result, error) {
	schema, ts, err := e.resolveTable(s.Table)
	if err != nil {
		return nil, err
	}

	ids, err := e.candidateRowIDs(schema, ts, s.Where)
	if err != nil {
		return nil, err
	}

	projIdxs, columns, err := resolveProjection(schema, s.Projection)
	if err != nil {
		return nil, err
	}

	type rowWithID struct {
		id  uint64
		row value.Row
	}
	rows := make([]rowWithID, 0, len(ids))
	for _, id := range ids {
		row, ok := ts.heap.Get(id)
		if !ok {
			continue
		}
		rows = append(rows, rowWithID{id: id, row: row})
	}

	if s.OrderBy != nil {
		colIdx, ok := schema.ColIndex(s.OrderBy.Col)
		if !ok {
			return nil, dberr.Newf(dberr.KindUnknownColumn, "no such column %q on %q", s.OrderBy.Col, schema.Name)
		}
		asc := s.OrderBy.Dir == OrderAsc
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].row[colIdx], rows[j].row[colIdx]
			if a.IsNull() || b.IsNull() {
				if a.IsNull() && b.IsNull() {
					return false
				}
				if asc {
					return !a.IsNull() // non-null sorts before NULL
				}
				return a.IsNull() // NULL sorts before non-null
			}
			c := value.Compare(a, b)
			if asc {
				return c < 0
			}
			return c > 0
		})
	}

	if s.Limit != nil && *s.Limit < len(rows) {
		rows = rows[:*s.Limit]
	}

	out := &Result{Columns: columns}
	for _, r := range rows {
		out.Rows = append(out.Rows, r.row.Project(projIdxs))
	}
	out.AffectedRows = int64(len(out.Rows))
	return out, nil
}

// resolveProjection expands `*` in declaration order or resolves a
// named column list, preserving request order.
func resolveProjection(schema *catalog.TableSchema, cols []string) ([]int, []string, error) {
	if cols == nil {
		idxs := make([]int, len(schema.Columns))
		names := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			idxs[i] = i
			names[i] = c.Name
		}
		return idxs, names, nil
	}
	idxs, err := schema.ColIndexes(cols)
	if err != nil {
		return nil, nil, dberr.Wrap(dberr.KindUnknownColumn, err)
	}
	return idxs, cols, nil
}
