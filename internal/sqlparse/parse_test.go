package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skepa-db/skepadb/internal/engine"
	"github.com/skepa-db/skepadb/internal/value"
)

func TestParseBeginCommitRollback(t *testing.T) {
	stmt, err := Parse("BEGIN;")
	require.NoError(t, err)
	require.Equal(t, engine.Begin{}, stmt)

	stmt, err = Parse("commit;")
	require.NoError(t, err)
	require.Equal(t, engine.Commit{}, stmt)

	stmt, err = Parse("Rollback;")
	require.NoError(t, err)
	require.Equal(t, engine.Rollback{}, stmt)
}

func TestParseRejectsMissingTerminator(t *testing.T) {
	_, err := Parse("SELECT * FROM users")
	require.Error(t, err)
}

func TestParseCreateTableFull(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE orders (
		id int NOT NULL,
		user_id int,
		PRIMARY KEY (id),
		UNIQUE (user_id),
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE ON UPDATE SET NULL
	);`)
	require.NoError(t, err)
	ct := stmt.(engine.CreateTable)
	require.Equal(t, "orders", ct.Name)
	require.Len(t, ct.Columns, 2)
	require.True(t, ct.Columns[0].NotNull)
	require.False(t, ct.Columns[1].NotNull)

	var fk *engine.ConstraintDef
	var pk, uq bool
	for i, c := range ct.Constraints {
		switch c.Kind {
		case "primary_key":
			pk = true
		case "unique":
			uq = true
		case "foreign_key":
			fk = &ct.Constraints[i]
		}
	}
	require.True(t, pk)
	require.True(t, uq)
	require.NotNil(t, fk)
	require.Equal(t, "users", fk.ParentTable)
	require.Equal(t, []string{"id"}, fk.ParentCols)
	require.Equal(t, "cascade", fk.OnDelete)
	require.Equal(t, "set_null", fk.OnUpdate)
}

func TestParseAlterTableVariants(t *testing.T) {
	cases := []struct {
		sql string
		op  engine.AlterOp
	}{
		{"ALTER TABLE users ADD UNIQUE (email);", engine.AlterAddUnique},
		{"ALTER TABLE users DROP UNIQUE (email);", engine.AlterDropUnique},
		{"ALTER TABLE users ALTER email SET NOT NULL;", engine.AlterSetNotNull},
		{"ALTER TABLE users ALTER email DROP NOT NULL;", engine.AlterDropNotNull},
	}
	for _, c := range cases {
		stmt, err := Parse(c.sql)
		require.NoError(t, err, c.sql)
		at := stmt.(engine.AlterTable)
		require.Equal(t, "users", at.Table)
		require.Equal(t, c.op, at.Op)
	}

	stmt, err := Parse("ALTER TABLE orders ADD FOREIGN KEY (user_id) REFERENCES users (id);")
	require.NoError(t, err)
	at := stmt.(engine.AlterTable)
	require.Equal(t, engine.AlterAddFK, at.Op)
	require.Equal(t, "users", at.FK.ParentTable)

	stmt, err = Parse("ALTER TABLE orders DROP FOREIGN KEY (user_id) REFERENCES users (id);")
	require.NoError(t, err)
	at = stmt.(engine.AlterTable)
	require.Equal(t, engine.AlterDropFK, at.Op)
	require.Equal(t, "users", at.DropFKParentTable)
}

func TestParseCreateAndDropIndex(t *testing.T) {
	stmt, err := Parse("CREATE INDEX ON users (email);")
	require.NoError(t, err)
	ci := stmt.(engine.CreateIndex)
	require.Equal(t, "users", ci.Table)
	require.Equal(t, []string{"email"}, ci.Cols)

	stmt, err = Parse("DROP INDEX ON users (email);")
	require.NoError(t, err)
	di := stmt.(engine.DropIndex)
	require.Equal(t, "users", di.Table)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("INSERT INTO users VALUES (1, 'alice', NULL);")
	require.NoError(t, err)
	ins := stmt.(engine.Insert)
	require.Equal(t, "users", ins.Table)
	require.Equal(t, value.Row{value.Int(1), value.Text("alice"), value.Null()}, ins.Values)
}

func TestParseUpdateWithWhere(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = 'bob', age = 30 WHERE id = 1;")
	require.NoError(t, err)
	u := stmt.(engine.Update)
	require.Equal(t, "users", u.Table)
	require.Len(t, u.Assigns, 2)
	require.NotNil(t, u.Where)
	require.Equal(t, "id", u.Where.Col)
	require.Equal(t, engine.OpEq, u.Where.Op)
}

func TestParseDeleteWithoutWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM users;")
	require.NoError(t, err)
	d := stmt.(engine.Delete)
	require.Equal(t, "users", d.Table)
	require.Nil(t, d.Where)
}

func TestParseSelectStar(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users;")
	require.NoError(t, err)
	sel := stmt.(engine.Select)
	require.Nil(t, sel.Projection)
	require.Equal(t, "users", sel.Table)
}

func TestParseSelectProjectionWhereOrderByLimit(t *testing.T) {
	stmt, err := Parse("SELECT id, name FROM users WHERE age > 21 ORDER BY id DESC LIMIT 5;")
	require.NoError(t, err)
	sel := stmt.(engine.Select)
	require.Equal(t, []string{"id", "name"}, sel.Projection)
	require.NotNil(t, sel.Where)
	require.Equal(t, "age", sel.Where.Col)
	require.Equal(t, engine.OpGt, sel.Where.Op)
	require.NotNil(t, sel.OrderBy)
	require.Equal(t, "id", sel.OrderBy.Col)
	require.Equal(t, engine.OrderDesc, sel.OrderBy.Dir)
	require.NotNil(t, sel.Limit)
	require.Equal(t, 5, *sel.Limit)
}

func TestParseSelectLikePredicate(t *testing.T) {
	stmt, err := Parse("SELECT * FROM users WHERE name LIKE 'al%';")
	require.NoError(t, err)
	sel := stmt.(engine.Select)
	require.NotNil(t, sel.Where)
	require.Equal(t, engine.OpLike, sel.Where.Op)
	require.Equal(t, "al%", sel.Where.Val.TextValue())
}

func TestParseUnsupportedStatement(t *testing.T) {
	_, err := Parse("FROBNICATE users;")
	require.Error(t, err)
}
