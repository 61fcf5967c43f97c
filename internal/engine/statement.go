// Package engine wires the catalog, table heaps, index manager, WAL, and
// transaction manager into the single Engine value the surface drives.
// Modeled on tuannm99/novasql's executor/planner split
// (internal/sql/executor, internal/sql/planner) but restructured around
// this database's own statement set and constraint engine.
package engine

import "github.com/skepa-db/skepadb/internal/value"

// ColumnDef describes one column in a CreateTable statement.
type ColumnDef struct {
	Name    string
	Type    string // "int" | "text"
	NotNull bool
}

// ConstraintDef mirrors catalog.Constraint but as parser-facing input
// (string column names, not yet resolved to ordinals).
type ConstraintDef struct {
	Kind string // "primary_key" | "unique" | "foreign_key"
	Cols []string

	// ForeignKey only:
	ParentTable string
	ParentCols  []string
	OnDelete    string // "restrict" | "cascade" | "set_null" | "no_action"
	OnUpdate    string
}

// CreateTable creates a new table.
type CreateTable struct {
	Name        string
	Columns     []ColumnDef
	Constraints []ConstraintDef
}

// AlterOp tags an AlterTable variant.
type AlterOp uint8

const (
	AlterAddUnique AlterOp = iota + 1
	AlterDropUnique
	AlterAddFK
	AlterDropFK
	AlterSetNotNull
	AlterDropNotNull
)

// AlterTable mutates an existing table's constraint set.
type AlterTable struct {
	Table string
	Op    AlterOp

	Cols []string // AddUnique/DropUnique/SetNotNull(single)/DropNotNull(single)

	FK ConstraintDef // AddFK
	// DropFK identifies the FK by its (child_cols, parent_table, parent_cols) triple.
	DropFKChildCols   []string
	DropFKParentTable string
	DropFKParentCols  []string
}

// CreateIndex creates a secondary index over table's cols.
type CreateIndex struct {
	Table string
	Cols  []string
}

// DropIndex removes the index over table's cols.
type DropIndex struct {
	Table string
	Cols  []string
}

// Insert inserts one row of literal values.
type Insert struct {
	Table  string
	Values value.Row
}

// Op is a predicate comparison operator.
type Op uint8

const (
	OpEq Op = iota + 1
	OpGt
	OpLt
	OpGte
	OpLte
	OpLike
)

// Predicate is a single `col op value` clause.
type Predicate struct {
	Col string
	Op  Op
	Val value.Value
}

// Assignment is one `col = value` clause of an Update statement.
type Assignment struct {
	Col string
	Val value.Value
}

// Update rewrites matching rows' assigned columns.
type Update struct {
	Table   string
	Assigns []Assignment
	Where   *Predicate
}

// Delete removes matching rows.
type Delete struct {
	Table string
	Where *Predicate
}

// OrderDir is the sort direction for Select.OrderBy.
type OrderDir uint8

const (
	OrderAsc OrderDir = iota + 1
	OrderDesc
)

// OrderBy names the sort column and direction of a Select.
type OrderBy struct {
	Col string
	Dir OrderDir
}

// Select reads rows, optionally filtered/ordered/limited.
type Select struct {
	Table      string
	Projection []string // nil means "*"
	Where      *Predicate
	OrderBy    *OrderBy
	Limit      *int
}

// Begin, Commit, Rollback are the transaction-control statements.
type Begin struct{}
type Commit struct{}
type Rollback struct{}
