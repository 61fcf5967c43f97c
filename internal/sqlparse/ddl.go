package sqlparse

import (
	"fmt"
	"strings"

	"github.com/skepa-db/skepadb/internal/engine"
)

// parseCreateTable parses:
//	CREATE TABLE name (
//	  col type [NOT NULL], ...,
//	  PRIMARY KEY (cols),
//	  UNIQUE (cols),
//	  FOREIGN KEY (cols) REFERENCES parent (cols) [ON DELETE act] [ON UPDATE act]
//	)
func parseCreateTable(sql string) (engine.CreateTable, error) {
	rest := strings.TrimSpace(sql[len("CREATE TABLE"):])
	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return engine.CreateTable{}, fmt.Errorf("invalid CREATE TABLE syntax")
	}
	name, err := parseIdent(rest[:open])
	if err != nil {
		return engine.CreateTable{}, fmt.Errorf("invalid CREATE TABLE syntax: %w", err)
	}

	body := strings.TrimSpace(rest[open+1 : len(rest)-1])
	if body == "" {
		return engine.CreateTable{}, fmt.Errorf("invalid CREATE TABLE syntax: empty body")
	}

	out := engine.CreateTable{Name: name}
	for _, item := range splitComma(body) {
		item = strings.TrimSpace(item)
		up := strings.ToUpper(item)
		switch {
		case strings.HasPrefix(up, "PRIMARY KEY"):
			cols, err := parseIdentList(item[len("PRIMARY KEY"):])
			if err != nil {
				return engine.CreateTable{}, fmt.Errorf("invalid PRIMARY KEY: %w", err)
			}
			out.Constraints = append(out.Constraints, engine.ConstraintDef{Kind: "primary_key", Cols: cols})
		case strings.HasPrefix(up, "UNIQUE"):
			cols, err := parseIdentList(item[len("UNIQUE"):])
			if err != nil {
				return engine.CreateTable{}, fmt.Errorf("invalid UNIQUE: %w", err)
			}
			out.Constraints = append(out.Constraints, engine.ConstraintDef{Kind: "unique", Cols: cols})
		case strings.HasPrefix(up, "FOREIGN KEY"):
			cd, err := parseForeignKeyDef(item)
			if err != nil {
				return engine.CreateTable{}, err
			}
			out.Constraints = append(out.Constraints, cd)
		default:
			col, err := parseColumnDef(item)
			if err != nil {
				return engine.CreateTable{}, err
			}
			out.Columns = append(out.Columns, col)
		}
	}
	return out, nil
}

func parseColumnDef(s string) (engine.ColumnDef, error) {
	toks := strings.Fields(s)
	if len(toks) < 2 {
		return engine.ColumnDef{}, fmt.Errorf("invalid column def: %q", s)
	}
	name, err := parseIdent(toks[0])
	if err != nil {
		return engine.ColumnDef{}, fmt.Errorf("invalid column name: %w", err)
	}
	typ := strings.ToLower(toks[1])
	notNull := false
	if len(toks) >= 4 && strings.EqualFold(toks[2], "NOT") && strings.EqualFold(toks[3], "NULL") {
		notNull = true
	}
	return engine.ColumnDef{Name: name, Type: typ, NotNull: notNull}, nil
}

// parseForeignKeyDef parses "FOREIGN KEY (cols) REFERENCES parent (cols)
// [ON DELETE act] [ON UPDATE act]".
func parseForeignKeyDef(s string) (engine.ConstraintDef, error) {
	rest := strings.TrimSpace(s[len("FOREIGN KEY"):])
	childPart, rest := splitKeyword(rest, "REFERENCES")
	if rest == "" {
		return engine.ConstraintDef{}, fmt.Errorf("invalid FOREIGN KEY: missing REFERENCES")
	}
	childCols, err := parseIdentList(childPart)
	if err != nil {
		return engine.ConstraintDef{}, fmt.Errorf("invalid FOREIGN KEY child columns: %w", err)
	}

	onDeleteAction, rest := extractOnClause(rest, "DELETE")
	onUpdateAction, rest := extractOnClause(rest, "UPDATE")

	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return engine.ConstraintDef{}, fmt.Errorf("invalid FOREIGN KEY: missing parent column list")
	}
	parentTable, err := parseIdent(rest[:open])
	if err != nil {
		return engine.ConstraintDef{}, fmt.Errorf("invalid FOREIGN KEY parent table: %w", err)
	}
	parentCols, err := parseIdentList(rest[open:])
	if err != nil {
		return engine.ConstraintDef{}, fmt.Errorf("invalid FOREIGN KEY parent columns: %w", err)
	}

	return engine.ConstraintDef{
		Kind: "foreign_key", Cols: childCols,
		ParentTable: parentTable, ParentCols: parentCols,
		OnDelete: onDeleteAction, OnUpdate: onUpdateAction,
	}, nil
}

// extractOnClause pulls "ON <DELETE|UPDATE> <action...>" out of s wherever
// it appears, returning the normalized action token and the remainder.
func extractOnClause(s, which string) (string, string) {
	up := strings.ToUpper(s)
	marker := "ON " + strings.ToUpper(which) + " "
	idx := strings.Index(up, marker)
	if idx < 0 {
		return "", s
	}
	after := s[idx+len(marker):]
	toks := strings.Fields(after)
	if len(toks) == 0 {
		return "", s
	}
	action, consumed := normalizeAction(toks)
	rest := s[:idx] + " " + strings.TrimSpace(after[consumed:])
	return action, strings.TrimSpace(rest)
}

func normalizeAction(toks []string) (string, int) {
	first := strings.ToUpper(toks[0])
	switch first {
	case "CASCADE":
		return "cascade", len(toks[0])
	case "RESTRICT":
		return "restrict", len(toks[0])
	case "NO":
		if len(toks) > 1 && strings.EqualFold(toks[1], "ACTION") {
			return "no_action", len(toks[0]) + 1 + len(toks[1])
		}
	case "SET":
		if len(toks) > 1 && strings.EqualFold(toks[1], "NULL") {
			return "set_null", len(toks[0]) + 1 + len(toks[1])
		}
	}
	return "restrict", len(toks[0])
}

// parseAlterTable parses the six ALTER TABLE variants.
func parseAlterTable(sql string) (engine.AlterTable, error) {
	rest := strings.TrimSpace(sql[len("ALTER TABLE"):])
	toks := strings.SplitN(rest, " ", 2)
	if len(toks) != 2 {
		return engine.AlterTable{}, fmt.Errorf("invalid ALTER TABLE syntax")
	}
	table, err := parseIdent(toks[0])
	if err != nil {
		return engine.AlterTable{}, fmt.Errorf("invalid ALTER TABLE table name: %w", err)
	}
	action := strings.TrimSpace(toks[1])
	up := strings.ToUpper(action)

	switch {
	case strings.HasPrefix(up, "ADD UNIQUE"):
		cols, err := parseIdentList(action[len("ADD UNIQUE"):])
		if err != nil {
			return engine.AlterTable{}, err
		}
		return engine.AlterTable{Table: table, Op: engine.AlterAddUnique, Cols: cols}, nil

	case strings.HasPrefix(up, "DROP UNIQUE"):
		cols, err := parseIdentList(action[len("DROP UNIQUE"):])
		if err != nil {
			return engine.AlterTable{}, err
		}
		return engine.AlterTable{Table: table, Op: engine.AlterDropUnique, Cols: cols}, nil

	case strings.HasPrefix(up, "ADD FOREIGN KEY"):
		cd, err := parseForeignKeyDef(action[len("ADD "):])
		if err != nil {
			return engine.AlterTable{}, err
		}
		return engine.AlterTable{Table: table, Op: engine.AlterAddFK, FK: cd}, nil

	case strings.HasPrefix(up, "DROP FOREIGN KEY"):
		fkPart := strings.TrimSpace(action[len("DROP FOREIGN KEY"):])
		childPart, rest := splitKeyword(fkPart, "REFERENCES")
		childCols, err := parseIdentList(childPart)
		if err != nil {
			return engine.AlterTable{}, fmt.Errorf("invalid DROP FOREIGN KEY: %w", err)
		}
		open := strings.Index(rest, "(")
		if open < 0 {
			return engine.AlterTable{}, fmt.Errorf("invalid DROP FOREIGN KEY: missing parent column list")
		}
		parentTable, err := parseIdent(rest[:open])
		if err != nil {
			return engine.AlterTable{}, fmt.Errorf("invalid DROP FOREIGN KEY parent table: %w", err)
		}
		parentCols, err := parseIdentList(rest[open:])
		if err != nil {
			return engine.AlterTable{}, fmt.Errorf("invalid DROP FOREIGN KEY parent columns: %w", err)
		}
		return engine.AlterTable{
			Table: table, Op: engine.AlterDropFK,
			DropFKChildCols: childCols, DropFKParentTable: parentTable, DropFKParentCols: parentCols,
		}, nil

	case strings.HasPrefix(up, "ALTER") && strings.Contains(up, "SET NOT NULL"):
		col, err := parseAlterColumnIdent(action)
		if err != nil {
			return engine.AlterTable{}, err
		}
		return engine.AlterTable{Table: table, Op: engine.AlterSetNotNull, Cols: []string{col}}, nil

	case strings.HasPrefix(up, "ALTER") && strings.Contains(up, "DROP NOT NULL"):
		col, err := parseAlterColumnIdent(action)
		if err != nil {
			return engine.AlterTable{}, err
		}
		return engine.AlterTable{Table: table, Op: engine.AlterDropNotNull, Cols: []string{col}}, nil

	default:
		return engine.AlterTable{}, fmt.Errorf("unsupported ALTER TABLE clause: %q", action)
	}
}

// parseAlterColumnIdent pulls the column name out of "ALTER col SET NOT
// NULL" / "ALTER col DROP NOT NULL".
func parseAlterColumnIdent(action string) (string, error) {
	rest := strings.TrimSpace(action[len("ALTER"):])
	toks := strings.Fields(rest)
	if len(toks) == 0 {
		return "", fmt.Errorf("invalid ALTER clause: missing column name")
	}
	return parseIdent(toks[0])
}

// parseCreateIndex parses "CREATE INDEX ON table (cols)".
func parseCreateIndex(sql string) (engine.CreateIndex, error) {
	rest := strings.TrimSpace(sql[len("CREATE INDEX ON"):])
	open := strings.Index(rest, "(")
	if open < 0 {
		return engine.CreateIndex{}, fmt.Errorf("invalid CREATE INDEX syntax")
	}
	table, err := parseIdent(rest[:open])
	if err != nil {
		return engine.CreateIndex{}, fmt.Errorf("invalid CREATE INDEX table: %w", err)
	}
	cols, err := parseIdentList(rest[open:])
	if err != nil {
		return engine.CreateIndex{}, err
	}
	return engine.CreateIndex{Table: table, Cols: cols}, nil
}

// parseDropIndex parses "DROP INDEX ON table (cols)".
func parseDropIndex(sql string) (engine.DropIndex, error) {
	rest := strings.TrimSpace(sql[len("DROP INDEX ON"):])
	open := strings.Index(rest, "(")
	if open < 0 {
		return engine.DropIndex{}, fmt.Errorf("invalid DROP INDEX syntax")
	}
	table, err := parseIdent(rest[:open])
	if err != nil {
		return engine.DropIndex{}, fmt.Errorf("invalid DROP INDEX table: %w", err)
	}
	cols, err := parseIdentList(rest[open:])
	if err != nil {
		return engine.DropIndex{}, err
	}
	return engine.DropIndex{Table: table, Cols: cols}, nil
}
