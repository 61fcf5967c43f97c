package sqlparse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skepa-db/skepadb/internal/engine"
	"github.com/skepa-db/skepadb/internal/value"
)

// parseInsert parses "INSERT INTO table VALUES (v1, v2, ...)".
func parseInsert(sql string) (engine.Insert, error) {
	rest := strings.TrimSpace(sql[len("INSERT INTO"):])
	tablePart, valPart := splitKeyword(rest, "VALUES")
	if strings.TrimSpace(valPart) == "" {
		return engine.Insert{}, fmt.Errorf("invalid INSERT syntax: missing VALUES")
	}
	table, err := parseIdent(tablePart)
	if err != nil {
		return engine.Insert{}, fmt.Errorf("invalid INSERT table name: %w", err)
	}

	valPart = strings.TrimSpace(valPart)
	if !strings.HasPrefix(valPart, "(") || !strings.HasSuffix(valPart, ")") {
		return engine.Insert{}, fmt.Errorf("invalid INSERT values syntax")
	}
	inner := strings.TrimSpace(valPart[1 : len(valPart)-1])

	var row value.Row
	for _, raw := range splitComma(inner) {
		lit, err := parseLiteral(raw)
		if err != nil {
			return engine.Insert{}, err
		}
		row = append(row, lit)
	}
	return engine.Insert{Table: table, Values: row}, nil
}

// parseUpdate parses "UPDATE table SET col=val, ... [WHERE col op val]".
func parseUpdate(sql string) (engine.Update, error) {
	rest := strings.TrimSpace(sql[len("UPDATE"):])
	tablePart, afterTable := splitKeyword(rest, "SET")
	table, err := parseIdent(tablePart)
	if err != nil {
		return engine.Update{}, fmt.Errorf("invalid UPDATE table name: %w", err)
	}

	setPart, wherePart := splitKeyword(afterTable, "WHERE")
	setPart = strings.TrimSpace(setPart)
	if setPart == "" {
		return engine.Update{}, fmt.Errorf("invalid UPDATE syntax: missing SET")
	}

	var assigns []engine.Assignment
	for _, a := range splitComma(setPart) {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return engine.Update{}, fmt.Errorf("invalid assignment: %q", a)
		}
		col, err := parseIdent(kv[0])
		if err != nil {
			return engine.Update{}, fmt.Errorf("invalid assignment column: %w", err)
		}
		lit, err := parseLiteral(kv[1])
		if err != nil {
			return engine.Update{}, err
		}
		assigns = append(assigns, engine.Assignment{Col: col, Val: lit})
	}

	where, err := parsePredicate(wherePart)
	if err != nil {
		return engine.Update{}, err
	}
	return engine.Update{Table: table, Assigns: assigns, Where: where}, nil
}

// parseDelete parses "DELETE FROM table [WHERE col op val]".
func parseDelete(sql string) (engine.Delete, error) {
	rest := strings.TrimSpace(sql[len("DELETE FROM"):])
	tablePart, wherePart := splitKeyword(rest, "WHERE")
	table, err := parseIdent(tablePart)
	if err != nil {
		return engine.Delete{}, fmt.Errorf("invalid DELETE table name: %w", err)
	}
	where, err := parsePredicate(wherePart)
	if err != nil {
		return engine.Delete{}, err
	}
	return engine.Delete{Table: table, Where: where}, nil
}

// parseSelect parses "SELECT * | col,... FROM table [WHERE col op val]
// [ORDER BY col [ASC|DESC]] [LIMIT n]". The three trailing clauses are
// fixed-order and each optional, so they're peeled off one at a time.
func parseSelect(sql string) (engine.Select, error) {
	rest := strings.TrimSpace(sql[len("SELECT"):])
	projPart, tail := splitKeyword(rest, "FROM")
	projPart = strings.TrimSpace(projPart)
	if tail == "" {
		return engine.Select{}, fmt.Errorf("invalid SELECT syntax: missing FROM")
	}

	var projection []string
	if projPart != "*" {
		for _, c := range splitComma(projPart) {
			id, err := parseIdent(c)
			if err != nil {
				return engine.Select{}, fmt.Errorf("invalid projection column: %w", err)
			}
			projection = append(projection, id)
		}
	}

	fields := strings.Fields(tail)
	if len(fields) == 0 {
		return engine.Select{}, fmt.Errorf("invalid SELECT syntax: missing table name")
	}
	table, err := parseIdent(fields[0])
	if err != nil {
		return engine.Select{}, fmt.Errorf("invalid SELECT table name: %w", err)
	}
	clause := strings.TrimSpace(tail[strings.Index(tail, fields[0])+len(fields[0]):])

	wherePart, clause := cutClauseUpto(clause, "WHERE", []string{"ORDER BY", "LIMIT"})
	orderByPart, clause := cutClauseUpto(clause, "ORDER BY", []string{"LIMIT"})
	limitPart, _ := cutClauseUpto(clause, "LIMIT", nil)

	where, err := parsePredicate(wherePart)
	if err != nil {
		return engine.Select{}, err
	}

	var orderBy *engine.OrderBy
	if strings.TrimSpace(orderByPart) != "" {
		ob, err := parseOrderBy(orderByPart)
		if err != nil {
			return engine.Select{}, err
		}
		orderBy = ob
	}

	var limit *int
	if strings.TrimSpace(limitPart) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(limitPart))
		if err != nil {
			return engine.Select{}, fmt.Errorf("invalid LIMIT value: %w", err)
		}
		limit = &n
	}

	return engine.Select{Table: table, Projection: projection, Where: where, OrderBy: orderBy, Limit: limit}, nil
}

// cutClauseUpto strips a leading "<keyword> ..." prefix from s and
// returns its content up to (not including) the first of stopKeywords,
// plus the untouched remainder starting at that stop keyword. If s does
// not begin with keyword, content is "" and remainder is s unchanged.
func cutClauseUpto(s, keyword string, stopKeywords []string) (content, remainder string) {
	s = strings.TrimSpace(s)
	up := strings.ToUpper(s)
	kw := strings.ToUpper(keyword)
	if !strings.HasPrefix(up, kw) {
		return "", s
	}
	after := strings.TrimSpace(s[len(keyword):])
	upAfter := strings.ToUpper(after)
	end := len(after)
	for _, stop := range stopKeywords {
		if idx := strings.Index(upAfter, strings.ToUpper(stop)); idx >= 0 && idx < end {
			end = idx
		}
	}
	return strings.TrimSpace(after[:end]), strings.TrimSpace(after[end:])
}

func parseOrderBy(s string) (*engine.OrderBy, error) {
	toks := strings.Fields(s)
	if len(toks) == 0 {
		return nil, fmt.Errorf("invalid ORDER BY clause")
	}
	col, err := parseIdent(toks[0])
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER BY column: %w", err)
	}
	dir := engine.OrderAsc
	if len(toks) > 1 && strings.EqualFold(toks[1], "DESC") {
		dir = engine.OrderDesc
	}
	return &engine.OrderBy{Col: col, Dir: dir}, nil
}
