// Package catalog holds the persistent schema directory:
// tables, columns, constraints, indexes, and the derived foreign-key
// graph. The Catalog is the single in-memory authoritative copy, loaded
// at startup and rewritten atomically on every schema change.
package catalog

import (
	"fmt"

	"github.com/skepa-db/skepadb/internal/value"
)

// Column is one column of a table schema.
type Column struct {
	Name    string        `json:"name"`
	Type    value.ColType `json:"type"`
	NotNull bool          `json:"not_null"`
}

// ConstraintKind distinguishes the three constraint shapes.
type ConstraintKind uint8

const (
	ConstraintPrimaryKey ConstraintKind = iota + 1
	ConstraintUnique
	ConstraintForeignKey
)

// FKAction is one of the four referential actions. NoAction is treated
// as immediate Restrict).
type FKAction uint8

const (
	FKRestrict FKAction = iota + 1
	FKCascade
	FKSetNull
	FKNoAction
)

func (a FKAction) String() string {
	switch a {
	case FKRestrict:
		return "RESTRICT"
	case FKCascade:
		return "CASCADE"
	case FKSetNull:
		return "SET NULL"
	case FKNoAction:
		return "NO ACTION"
	default:
		return "?"
	}
}

// ForeignKey names a child→parent reference.
type ForeignKey struct {
	ChildCols   []string `json:"child_cols"`
	ParentTable string   `json:"parent_table"`
	ParentCols  []string `json:"parent_cols"`
	OnDelete    FKAction `json:"on_delete"`
	OnUpdate    FKAction `json:"on_update"`
}

// Constraint is a tagged union over PrimaryKey(cols) / Unique(cols) /
// ForeignKey(reference).
type Constraint struct {
	Kind ConstraintKind `json:"kind"`
	Cols []string       `json:"cols,omitempty"` // PrimaryKey / Unique
	FK   *ForeignKey    `json:"fk,omitempty"`   // ForeignKey
}

// IndexKind mirrors the three index flavors the index manager maintains.
type IndexKind uint8

const (
	IndexPrimaryKey IndexKind = iota + 1
	IndexUnique
	IndexSecondary
)

// IndexMeta describes one persisted index over a table.
type IndexMeta struct {
	IndexID uint64    `json:"index_id"`
	Cols    []string  `json:"cols"`
	Kind    IndexKind `json:"kind"`
}

// TableSchema is the ordered column list, constraint set, and indexes for
// one table, keyed by a stable table_id.
type TableSchema struct {
	TableID     uint64       `json:"table_id"`
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Constraints []Constraint `json:"constraints"`
	Indexes     []IndexMeta  `json:"indexes"`
	NextIndexID uint64       `json:"next_index_id"`
}

// ColIndex resolves a column name to its ordinal position.
func (s *TableSchema) ColIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ColIndexes resolves a list of column names, failing on the first miss.
func (s *TableSchema) ColIndexes(names []string) ([]int, error) {
	idxs := make([]int, len(names))
	for i, n := range names {
		idx, ok := s.ColIndex(n)
		if !ok {
			return nil, fmt.Errorf("unknown column %q in table %q", n, s.Name)
		}
		idxs[i] = idx
	}
	return idxs, nil
}

// PrimaryKey returns the table's single PrimaryKey constraint, if any.
func (s *TableSchema) PrimaryKey() (*Constraint, bool) {
	for i := range s.Constraints {
		if s.Constraints[i].Kind == ConstraintPrimaryKey {
			return &s.Constraints[i], true
		}
	}
	return nil, false
}

// Uniques returns every Unique constraint (PrimaryKey is unique too but
// is returned separately by PrimaryKey).
func (s *TableSchema) Uniques() []*Constraint {
	var out []*Constraint
	for i := range s.Constraints {
		if s.Constraints[i].Kind == ConstraintUnique {
			out = append(out, &s.Constraints[i])
		}
	}
	return out
}

// ForeignKeys returns every outgoing ForeignKey constraint on this table.
func (s *TableSchema) ForeignKeys() []*ForeignKey {
	var out []*ForeignKey
	for i := range s.Constraints {
		if s.Constraints[i].Kind == ConstraintForeignKey {
			out = append(out, s.Constraints[i].FK)
		}
	}
	return out
}

// UniqueLikeConstraints returns PrimaryKey + Unique constraints together,
// the set the constraint engine must probe on every insert/update.
func (s *TableSchema) UniqueLikeConstraints() []*Constraint {
	var out []*Constraint
	if pk, ok := s.PrimaryKey(); ok {
		out = append(out, pk)
	}
	out = append(out, s.Uniques()...)
	return out
}

// FindIndex locates the index over exactly these columns, if one exists.
func (s *TableSchema) FindIndex(cols []string) (*IndexMeta, bool) {
	for i := range s.Indexes {
		if sameCols(s.Indexes[i].Cols, cols) {
			return &s.Indexes[i], true
		}
	}
	return nil, false
}

func sameCols(a, b []string) bool {
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

// Catalog is the in-memory schema directory for the whole database.
type Catalog struct {
	Tables      map[string]*TableSchema `json:"tables"`
	NextTableID uint64                  `json:"next_table_id"`

	// fwd[child] -> FKs whose child side is this table.
	fwd map[string][]*ForeignKey
	// rev[parent] -> (child table, FK) pairs referencing this table.
	rev map[string][]fkRef
}

type fkRef struct {
	ChildTable string
	FK         *ForeignKey
}

// New returns an empty catalog.
func New() *Catalog {
	c := &Catalog{Tables: make(map[string]*TableSchema), NextTableID: 1}
	c.rebuildFKGraph()
	return c
}

// rebuildFKGraph recomputes the forward/reverse FK indexes from the
// table schemas. Called on load and after any DDL that touches FKs.
func (c *Catalog) rebuildFKGraph() {
	c.fwd = make(map[string][]*ForeignKey)
	c.rev = make(map[string][]fkRef)
	for _, t := range c.Tables {
		for _, fk := range t.ForeignKeys() {
			c.fwd[t.Name] = append(c.fwd[t.Name], fk)
			c.rev[fk.ParentTable] = append(c.rev[fk.ParentTable], fkRef{ChildTable: t.Name, FK: fk})
		}
	}
}

// OutgoingFKs returns the FKs where table is the child.
func (c *Catalog) OutgoingFKs(table string) []*ForeignKey {
	return c.fwd[table]
}

// IncomingFKs returns (childTable, FK) pairs where table is the parent.
type IncomingFK struct {
	ChildTable string
	FK         *ForeignKey
}

func (c *Catalog) IncomingFKs(table string) []IncomingFK {
	refs := c.rev[table]
	out := make([]IncomingFK, len(refs))
	for i, r := range refs {
		out[i] = IncomingFK{ChildTable: r.ChildTable, FK: r.FK}
	}
	return out
}

// Get returns a table's schema.
func (c *Catalog) Get(name string) (*TableSchema, bool) {
	t, ok := c.Tables[name]
	return t, ok
}

// MustGet is Get but panics (Internal-error territory: caller already
// validated the table exists).
func (c *Catalog) MustGet(name string) *TableSchema {
	t, ok := c.Tables[name]
	if !ok {
		panic(fmt.Sprintf("catalog: table %q vanished", name))
	}
	return t
}

// AddTable registers a new table schema, assigning it a fresh table_id.
func (c *Catalog) AddTable(s *TableSchema) {
	s.TableID = c.NextTableID
	c.NextTableID++
	c.Tables[s.Name] = s
	c.rebuildFKGraph()
}

// DropTable removes a table schema entirely.
func (c *Catalog) DropTable(name string) {
	delete(c.Tables, name)
	c.rebuildFKGraph()
}

// ReplaceTable overwrites a table's schema in place (used by ALTER) and
// refreshes the FK graph.
func (c *Catalog) ReplaceTable(s *TableSchema) {
	c.Tables[s.Name] = s
	c.rebuildFKGraph()
}

// Clone deep-copies the catalog. DDL is auto-commit and barred inside a
// transaction, so a pre-DDL snapshot for rollback is never needed; the
// engine's checkpoint saves the live catalog and does not call Clone.
func (c *Catalog) Clone() *Catalog {
	out := New()
	out.NextTableID = c.NextTableID
	for name, t := range c.Tables {
		cp := *t
		cp.Columns = append([]Column(nil), t.Columns...)
		cp.Constraints = append([]Constraint(nil), t.Constraints...)
		for i, con := range cp.Constraints {
			cp.Constraints[i].Cols = append([]string(nil), con.Cols...)
			if con.FK != nil {
				fk := *con.FK
				fk.ChildCols = append([]string(nil), fk.ChildCols...)
				fk.ParentCols = append([]string(nil), fk.ParentCols...)
				cp.Constraints[i].FK = &fk
			}
		}
		cp.Indexes = append([]IndexMeta(nil), t.Indexes...)
		for i, m := range cp.Indexes {
			cp.Indexes[i].Cols = append([]string(nil), m.Cols...)
		}
		out.Tables[name] = &cp
	}
	out.rebuildFKGraph()
	return out
}

// OnLoad must be called after unmarshalling a catalog snapshot from disk,
// to rebuild the derived FK graph.
func (c *Catalog) OnLoad() {
	if c.Tables == nil {
		c.Tables = make(map[string]*TableSchema)
	}
	c.rebuildFKGraph()
}
