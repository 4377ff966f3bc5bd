// Command libsql is a small shell that runs statements through the
// prepared-statement layer in any connection mode.
//
//	libsql -config libsql.yaml -e "SELECT * FROM users"
//	LIBSQL_URL=http://primary:8080 LIBSQL_PATH=replica.db libsql
//
// Lines are run as statements. Dot commands: .sync, .mode <assoc|num|both|obj|named>,
// .lastid, .mode-info, .quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ineersa/libsqlshim/config"
	"github.com/ineersa/libsqlshim/database"
)

type shell struct {
	conn *database.Connection
	mode database.FetchMode
	out  io.Writer
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML connection config (env vars override it)")
	execute := flag.String("e", "", "Run one statement and exit")
	fetchMode := flag.String("mode", "assoc", "Row shape: assoc, num, both, obj or named")
	debug := flag.Bool("debug", false, "Log statements to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	mode, err := database.ParseFetchMode(*fetchMode)
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	conn, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	sh := &shell{conn: conn, mode: mode, out: os.Stdout}
	if *execute != "" {
		if err := sh.run(ctx, *execute); err != nil {
			log.Fatal(err)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ".quit" {
			return
		}
		if err := sh.run(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func (sh *shell) run(ctx context.Context, line string) error {
	if strings.HasPrefix(line, ".") {
		return sh.command(ctx, line)
	}

	stmt := sh.conn.Prepare(strings.TrimSuffix(line, ";"))
	if err := stmt.SetFetchMode(sh.mode); err != nil {
		return err
	}
	if _, err := stmt.Execute(ctx); err != nil {
		if sh.conn.IsUniqueConstraintError(err) {
			return fmt.Errorf("duplicate value: %w", err)
		}
		return err
	}

	rows, err := stmt.FetchAll(database.FetchDefault)
	if err != nil {
		return err
	}
	columns := stmt.Columns()
	if len(columns) > 0 {
		fmt.Fprintln(sh.out, strings.Join(columns, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(sh.out, sh.formatRow(columns, row))
	}
	if len(columns) > 0 {
		fmt.Fprintf(sh.out, "(%s rows)\n", humanize.Comma(int64(len(rows))))
	} else {
		fmt.Fprintf(sh.out, "(%s affected)\n", humanize.Comma(stmt.AffectedRows()))
	}
	return nil
}

func (sh *shell) command(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".sync":
		if err := sh.conn.Sync(ctx); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "synced")
	case ".mode":
		if len(fields) != 2 {
			return fmt.Errorf("usage: .mode <assoc|num|both|obj|named>")
		}
		mode, err := database.ParseFetchMode(fields[1])
		if err != nil {
			return err
		}
		sh.mode = mode
	case ".lastid":
		fmt.Fprintln(sh.out, sh.conn.LastInsertID())
	case ".mode-info":
		fmt.Fprintf(sh.out, "connection: %s, rows: %s\n", sh.conn.Mode(), sh.mode)
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
	return nil
}

func (sh *shell) formatRow(columns []string, row any) string {
	var values []any
	switch r := row.(type) {
	case []any:
		values = r
	case database.BothRow:
		values = r.Positional
	case map[string]any:
		for _, c := range columns {
			values = append(values, r[c])
		}
	case *database.Object:
		for _, c := range columns {
			v, _ := r.Get(c)
			values = append(values, v)
		}
	}

	cells := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			cells[i] = "NULL"
		case []byte:
			cells[i] = sh.conn.EscapeBinary(x)
		default:
			cells[i] = fmt.Sprint(x)
		}
	}
	return strings.Join(cells, "\t")
}
