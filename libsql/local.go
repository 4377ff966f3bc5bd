package libsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver "sqlite3"
	_ "modernc.org/sqlite"          // pure-Go SQLite driver "sqlite"
)

const (
	DriverSQLite3 = "sqlite3"
	DriverModernc = "sqlite"
)

// LocalEngine serves statements from a SQLite file through a single
// dedicated connection, so that changes() and last_insert_rowid() always
// describe the statement that just ran.
type LocalEngine struct {
	mu     sync.Mutex
	db     *sqlx.DB
	conn   *sqlx.Conn
	path   string
	driver string
	logger *slog.Logger
}

var _ Engine = (*LocalEngine)(nil)

// OpenLocal opens (creating if needed) the database file at cfg.Path.
func OpenLocal(ctx context.Context, cfg Config) (*LocalEngine, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("libsql: local mode requires a database path")
	}
	driverName := cfg.Driver
	if driverName == "" {
		driverName = DriverSQLite3
	}
	if driverName != DriverSQLite3 && driverName != DriverModernc {
		return nil, fmt.Errorf("libsql: unsupported local driver %q", driverName)
	}

	db, err := sqlx.Open(driverName, localDSN(driverName, cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("libsql: open %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Connx(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("libsql: connect %s: %w", cfg.Path, err)
	}

	return &LocalEngine{
		db:     db,
		conn:   conn,
		path:   cfg.Path,
		driver: driverName,
		logger: cfg.logger(),
	}, nil
}

func localDSN(driverName, path string) string {
	if path == ":memory:" {
		return path
	}
	if driverName == DriverModernc {
		return "file:" + path + "?_pragma=busy_timeout(5000)"
	}
	return "file:" + path + "?_busy_timeout=5000"
}

func (e *LocalEngine) Mode() Mode { return ModeLocal }

// Path returns the database file this engine was opened on.
func (e *LocalEngine) Path() string { return e.path }

func (e *LocalEngine) Sync(ctx context.Context) error { return ErrSyncUnsupported }

func (e *LocalEngine) Query(ctx context.Context, query string, args []Value) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, ErrClosed
	}
	return e.run(ctx, func() (*sqlx.Rows, error) {
		return e.conn.QueryxContext(ctx, query, argsOf(args)...)
	})
}

// QueryReadOnly is Query with the connection switched to query_only for the
// duration of the call. Any write in query fails, including one in a
// trailing statement after a leading SELECT.
func (e *LocalEngine) QueryReadOnly(ctx context.Context, query string, args []Value) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, ErrClosed
	}
	if _, err := e.conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("libsql: enter read-only: %w", err)
	}
	defer func() {
		if _, err := e.conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); err != nil {
			e.logger.Error("libsql: leave read-only", "path", e.path, "error", err)
		}
	}()
	return e.run(ctx, func() (*sqlx.Rows, error) {
		return e.conn.QueryxContext(ctx, query, argsOf(args)...)
	})
}

func (e *LocalEngine) Prepare(ctx context.Context, query string) (Prepared, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil, ErrClosed
	}
	stmt, err := e.conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &localPrepared{engine: e, stmt: stmt}, nil
}

// Backup writes a consistent copy of the database to dest, which must not exist.
func (e *LocalEngine) Backup(ctx context.Context, dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return ErrClosed
	}
	if _, err := e.conn.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("libsql: backup to %s: %w", dest, err)
	}
	return nil
}

func (e *LocalEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	connErr := e.conn.Close()
	dbErr := e.db.Close()
	e.conn = nil
	return errors.Join(connErr, dbErr)
}

// run executes one statement and collects its rows and counters. The
// counters are only reported when total_changes() moved, so a read or a
// write that touched nothing yields RowsAffected 0 and no insert id.
func (e *LocalEngine) run(ctx context.Context, exec func() (*sqlx.Rows, error)) (*Result, error) {
	var before int64
	if err := e.conn.QueryRowxContext(ctx, "SELECT total_changes()").Scan(&before); err != nil {
		return nil, fmt.Errorf("libsql: read change counter: %w", err)
	}

	rows, err := exec()
	if err != nil {
		return nil, err
	}
	res, err := materialize(rows)
	if err != nil {
		return nil, err
	}

	var changes, lastID, total int64
	err = e.conn.QueryRowxContext(ctx, "SELECT changes(), last_insert_rowid(), total_changes()").
		Scan(&changes, &lastID, &total)
	if err != nil {
		return nil, fmt.Errorf("libsql: read change counter: %w", err)
	}
	if total != before {
		res.RowsAffected = changes
		res.LastInsertRowID = lastID
	}

	e.logger.Debug("libsql: local statement",
		"path", e.path, "rows", len(res.Rows), "rows_affected", res.RowsAffected)
	return res, nil
}

func materialize(rows *sqlx.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("libsql: read columns: %w", err)
	}
	res := &Result{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("libsql: scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeCell(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// normalizeCell keeps engine values to nil, int64, float64, string and []byte.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	}
	return v
}

func argsOf(values []Value) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.Arg()
	}
	return args
}

// IsSelect reports whether query is a read that can be served by Query
// instead of Prepare. Leading whitespace is ignored; case is not significant.
func IsSelect(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n")
	return len(q) >= 6 && strings.EqualFold(q[:6], "select")
}

type localPrepared struct {
	engine *LocalEngine
	stmt   *sqlx.Stmt
}

func (p *localPrepared) Query(ctx context.Context, args []Value) (*Result, error) {
	p.engine.mu.Lock()
	defer p.engine.mu.Unlock()
	if p.engine.conn == nil {
		return nil, ErrClosed
	}
	return p.engine.run(ctx, func() (*sqlx.Rows, error) {
		return p.stmt.QueryxContext(ctx, argsOf(args)...)
	})
}

func (p *localPrepared) Close() error {
	return p.stmt.Close()
}
