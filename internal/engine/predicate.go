package engine

import (
	"github.com/skepa-db/skepadb/internal/catalog"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/value"
)

// evalPredicate applies one `col op value` clause to row: a NULL column value always yields false, and
// a type mismatch between column and literal is a TypeError.
func evalPredicate(schema *catalog.TableSchema, row value.Row, p *Predicate) (bool, error) {
	if p == nil {
		return true, nil
	}
	idx, ok := schema.ColIndex(p.Col)
	if !ok {
		return false, dberr.Newf(dberr.KindUnknownColumn, "no such column %q on %q", p.Col, schema.Name)
	}
	col := row[idx]
	if col.IsNull() {
		return false, nil
	}
	if !p.Val.MatchesColType(schema.Columns[idx].Type) {
		return false, dberr.Newf(dberr.KindTypeError, "type mismatch comparing %q against literal", p.Col)
	}

	switch p.Op {
	case OpEq:
		return value.Equal(col, p.Val), nil
	case OpGt:
		return value.Compare(col, p.Val) > 0, nil
	case OpLt:
		return value.Compare(col, p.Val) < 0, nil
	case OpGte:
		return value.Compare(col, p.Val) >= 0, nil
	case OpLte:
		return value.Compare(col, p.Val) <= 0, nil
	case OpLike:
		if schema.Columns[idx].Type != value.ColText {
			return false, dberr.Newf(dberr.KindTypeError, "LIKE requires a text column, %q is not", p.Col)
		}
		return likeMatch(col.TextValue(), p.Val.TextValue()), nil
	default:
		return false, dberr.Newf(dberr.KindInternal, "unknown predicate operator %v", p.Op)
	}
}

// likeMatch implements SQL-style `%`/`_` glob matching. There is no
// escape character, so a literal `%` or `_` cannot be matched.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	// classic glob DP, small inputs so the quadratic table is fine.
	n, m := len(s), len(p)
	dp := make([][]bool, n+1)
	for i := range dp {
		dp[i] = make([]bool, m+1)
	}
	dp[0][0] = true
	for j := 1; j <= m; j++ {
		if p[j-1] == '%' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			switch p[j-1] {
			case '%':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '_':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && s[i-1] == p[j-1]
			}
		}
	}
	return dp[n][m]
}
