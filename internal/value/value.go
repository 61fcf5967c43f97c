// Package value implements the engine's cell representation:
// a tagged sum of Null, Int(i64), and Text(utf-8), plus the binary row codec
// and the lexicographic key comparator used by the index manager.
package value

import "fmt"

// Tag identifies a Value's variant. The numeric values match the on-disk
// codec tag byte exactly — do not renumber.
type Tag uint8

const (
	TagNull Tag = 0
	TagInt  Tag = 1
	TagText Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagInt:
		return "int"
	case TagText:
		return "text"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// ColType is a column's declared type, restricted to {int, text}.
type ColType uint8

const (
	ColInt ColType = iota + 1
	ColText
)

func (t ColType) String() string {
	switch t {
	case ColInt:
		return "int"
	case ColText:
		return "text"
	default:
		return fmt.Sprintf("ColType(%d)", uint8(t))
	}
}

func ParseColType(s string) (ColType, bool) {
	switch s {
	case "int":
		return ColInt, true
	case "text":
		return ColText, true
	default:
		return 0, false
	}
}

// Value is a single cell. The zero Value is Null.
type Value struct {
	tag Tag
	i   int64
	s   string
}

func Null() Value        { return Value{tag: TagNull} }
func Int(i int64) Value  { return Value{tag: TagInt, i: i} }
func Text(s string) Value { return Value{tag: TagText, s: s} }

func (v Value) Tag() Tag      { return v.tag }
func (v Value) IsNull() bool  { return v.tag == TagNull }
func (v Value) IntValue() int64 {
	return v.i
}
func (v Value) TextValue() string {
	return v.s
}

// MatchesColType reports whether v may legally occupy a column of type ct
// (NULL matches any column type; the NOT NULL check is separate).
func (v Value) MatchesColType(ct ColType) bool {
	switch v.tag {
	case TagNull:
		return true
	case TagInt:
		return ct == ColInt
	case TagText:
		return ct == ColText
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.tag {
	case TagNull:
		return "NULL"
	case TagInt:
		return fmt.Sprintf("%d", v.i)
	case TagText:
		return v.s
	default:
		return "?"
	}
}

// Equal reports value equality. Two NULLs compare equal here (this is a
// data-model equality check, not the SQL three-valued-logic used by
// predicates — see the planner for that).
func Equal(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNull:
		return true
	case TagInt:
		return a.i == b.i
	case TagText:
		return a.s == b.s
	default:
		return false
	}
}

// Compare orders two same-tag, non-NULL values: Int numerically, Text by
// byte-wise UTF-8 ordering. Comparing values of different tags, or any
// NULL, is a programmer error in this package — callers (index, planner)
// never form such a comparison because indexed keys are NULL-free and
// single-typed per column.
func Compare(a, b Value) int {
	switch {
	case a.tag == TagInt && b.tag == TagInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		default:
			return 0
		}
	case a.tag == TagText && b.tag == TagText:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	default:
		panic(fmt.Sprintf("value: incomparable tags %v/%v", a.tag, b.tag))
	}
}

// Row is a fixed-arity ordered tuple of cells.
type Row []Value

// Clone returns an independent copy (Value is immutable/by-value, so this
// is just a slice copy, kept as a named helper for readability at call
// sites that mutate a copy of a stored row).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Project extracts the values at the given column indexes, used by unique
// and foreign-key constraint checks over a column subset.
func (r Row) Project(idxs []int) Row {
	out := make(Row, len(idxs))
	for i, idx := range idxs {
		out[i] = r[idx]
	}
	return out
}

// HasNull reports whether any cell in the row is NULL.
func (r Row) HasNull() bool {
	for _, v := range r {
		if v.IsNull() {
			return true
		}
	}
	return false
}

// CompareRows lexicographically compares two NULL-free, same-arity,
// same-typed-per-column rows.
func CompareRows(a, b Row) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
