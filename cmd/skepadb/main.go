// Command skepadb starts an interactive REPL against a single local
// database directory. Modeled on tuannm99/novasql's
// cmd/client/main.go readline loop (history, multi-line statement
// buffering on the terminating `;`, tabular result printing), adapted
// from a TCP client driving a remote server into a direct in-process
// caller of the engine.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/skepa-db/skepadb/internal/config"
	"github.com/skepa-db/skepadb/internal/dberr"
	"github.com/skepa-db/skepadb/internal/engine"
	"github.com/skepa-db/skepadb/internal/sqlparse"
)

// History is an append-only, file-backed statement history.
type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History { return &History{path: path} }

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(stmt string) error {
	stmt = compactOneLine(strings.TrimSpace(stmt))
	if stmt == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintln(f, stmt); err != nil {
		return err
	}
	h.lines = append(h.lines, stmt)
	return nil
}

func (h *History) Print(last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	start := len(h.lines) - last
	if start < 0 {
		start = 0
	}
	for i := start; i < len(h.lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, h.lines[i])
	}
}

func compactOneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// statementComplete reports whether buf has a terminating ';' outside a
// quoted string.
func statementComplete(buf string) bool {
	inQuote := false
	for _, r := range buf {
		if r == '\'' {
			inQuote = !inQuote
			continue
		}
		if r == ';' && !inQuote {
			return true
		}
	}
	return false
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") || strings.HasPrefix(line, ".") ||
		line == "quit" || line == "exit"
}

func printResult(res *engine.Result) {
	if len(res.Columns) == 0 {
		fmt.Printf("%d rows affected\n", res.AffectedRows)
		return
	}

	cols := res.Columns
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	rendered := make([][]string, len(res.Rows))
	for r, row := range res.Rows {
		out := make([]string, len(cols))
		for i := range cols {
			if i < len(row) {
				out[i] = row[i].String()
			} else {
				out[i] = "NULL"
			}
			if len(out[i]) > widths[i] {
				widths[i] = len(out[i])
			}
		}
		rendered[r] = out
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Print(" | ")
			}
			fmt.Print(padRight(values[i], widths[i]))
		}
		fmt.Println()
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Print("-+-")
		}
		fmt.Print(strings.Repeat("-", widths[i]))
	}
	fmt.Println()
	for _, row := range rendered {
		printRow(row)
	}
	fmt.Printf("(%d rows)\n", res.AffectedRows)
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func printSchema(e *engine.Engine) {
	for _, name := range e.TableNames() {
		schema, ok := e.TableSchema(name)
		if !ok {
			continue
		}
		fmt.Printf("%s:\n", name)
		for _, c := range schema.Columns {
			nn := ""
			if c.NotNull {
				nn = " not null"
			}
			fmt.Printf("  %s %s%s\n", c.Name, c.Type, nn)
		}
	}
}

const helpText = `meta commands:
  \q | quit | exit        quit
  \history                 print statement history
  .schema                  show all table schemas
  help                     show this help

sql:
  end statement with ';' (parser requires it)
  multiline is supported (waits until ';')

statements (op: = > < >= <= LIKE; act: RESTRICT | CASCADE | SET NULL | NO ACTION):
  CREATE TABLE t (col int|text [NOT NULL], ..., [PRIMARY KEY (cols)], [UNIQUE (cols)],
    [FOREIGN KEY (cols) REFERENCES p (cols) [ON DELETE act] [ON UPDATE act]])
  ALTER TABLE t ADD UNIQUE (cols) | DROP UNIQUE (cols)
  ALTER TABLE t ADD FOREIGN KEY (cols) REFERENCES p (cols) [ON DELETE act] [ON UPDATE act]
  ALTER TABLE t DROP FOREIGN KEY (cols) REFERENCES p (cols)
  ALTER TABLE t ALTER col SET NOT NULL | ALTER col DROP NOT NULL
  CREATE INDEX ON t (cols) | DROP INDEX ON t (cols)
  INSERT INTO t VALUES (v, ...)
  UPDATE t SET col = v, ... [WHERE col op v]
  DELETE FROM t [WHERE col op v]
  SELECT * | col, ... FROM t [WHERE col op v] [ORDER BY col [ASC|DESC]] [LIMIT n]
  BEGIN | COMMIT | ROLLBACK`

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		dataDir    = flag.String("data-dir", "", "override the configured database directory")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Database.Dir = *dataDir
	}

	opts := &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)

	e, err := engine.Open(cfg.Database.Dir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = e.Close() }()

	h := NewHistory(cfg.REPL.HistoryFile)
	_ = h.Load(2000)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "skepadb> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("skepadb, data dir %s\n", cfg.Database.Dir)
	fmt.Println("type help for commands")

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt("skepadb> ")
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isMetaCommand(line) || line == "help" {
			switch line {
			case "\\q", "quit", "exit":
				goto shutdown
			case "help":
				fmt.Println(helpText)
			case "\\history":
				h.Print(50)
			case ".schema":
				printSchema(e)
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !statementComplete(buf.String()) {
			rl.SetPrompt("    -> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt("skepadb> ")

		_ = h.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		parsed, err := sqlparse.Parse(stmt)
		if err != nil {
			fmt.Println(dberr.Wrap(dberr.KindSyntax, err))
			continue
		}
		res, err := e.Execute(parsed)
		if err != nil {
			fmt.Println(err)
			continue
		}
		printResult(res)
	}

shutdown:
	if _, err := e.Execute(engine.Rollback{}); err != nil && !dberr.Is(err, dberr.KindTxnNotOpen) {
		fmt.Fprintf(os.Stderr, "rollback on exit: %v\n", err)
		os.Exit(1)
	}
	if err := e.Checkpoint(); err != nil {
		fmt.Fprintf(os.Stderr, "checkpoint on exit: %v\n", err)
		os.Exit(1)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
