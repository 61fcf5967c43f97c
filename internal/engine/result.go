package engine

import "github.com/skepa-db/skepadb/internal/value"

// Result is the reply shape handed back to the surface: either
// an affected-row count, or a result set, or (via the returned error) an
// error kind plus message.
type Result struct {
	Columns []string
	Rows    []value.Row

	AffectedRows int64
}
