package database

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ineersa/libsqlshim/config"
	"github.com/ineersa/libsqlshim/libsql"
	"github.com/ineersa/libsqlshim/logging"
)

// Options configure a Connection.
type Options struct {
	// LenientWrites makes Exec report success for every statement that did
	// not fail, including DDL and writes that matched no rows.
	LenientWrites bool
	// Classifier decides IsUniqueConstraintError. Defaults to SQLiteClassifier.
	Classifier ErrorClassifier
	// Read is an already open engine to route Select through.
	Read   libsql.Engine
	Logger *slog.Logger
}

// Connection owns an engine and the last insert id observed on it.
type Connection struct {
	engine libsql.Engine
	read   libsql.Engine

	lastInsertID  int64
	lenientWrites bool
	classifier    ErrorClassifier
	logger        *slog.Logger
}

// NewConnection wraps engine. The connection takes ownership of engine and
// of opts.Read.
func NewConnection(engine libsql.Engine, opts Options) *Connection {
	c := &Connection{
		engine:        engine,
		read:          opts.Read,
		lenientWrites: opts.LenientWrites,
		classifier:    opts.Classifier,
		logger:        opts.Logger,
	}
	if c.classifier == nil {
		c.classifier = SQLiteClassifier{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Connect opens the engines described by cfg.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Connection, error) {
	engineCfg, err := cfg.Engine(logger)
	if err != nil {
		return nil, err
	}
	engine, err := libsql.Open(ctx, engineCfg)
	if err != nil {
		return nil, err
	}
	conn := NewConnection(engine, Options{LenientWrites: cfg.LenientWrites, Logger: logger})

	if cfg.Read != nil {
		readCfg, err := cfg.Read.Engine(logger)
		if err == nil {
			_, err = conn.UseReadEngine(ctx, readCfg)
		}
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("database: open read engine: %w", err)
		}
	}
	return conn, nil
}

// Prepare creates a statement on the primary engine.
func (c *Connection) Prepare(query string) *Statement {
	return NewStatement(c, query)
}

// Engine returns the primary engine.
func (c *Connection) Engine() libsql.Engine { return c.engine }

// Mode reports how the primary engine is connected.
func (c *Connection) Mode() libsql.Mode { return c.engine.Mode() }

// Sync pulls the primary's changes into the local replica. It returns
// libsql.ErrSyncUnsupported unless the connection is an embedded replica.
func (c *Connection) Sync(ctx context.Context) error {
	if err := c.engine.Sync(ctx); err != nil {
		return err
	}
	c.logger.Debug("database: synced", "mode", c.engine.Mode())
	return nil
}

// LastInsertID is the most recent positive last_insert_rowid any statement on
// this connection reported, or 0 if none has.
func (c *Connection) LastInsertID() int64 { return c.lastInsertID }

// track records a statement's metadata on the connection. An id of 0 means
// the statement inserted nothing and must not replace an earlier id.
func track(c *Connection, res *libsql.Result) {
	if res.LastInsertRowID > 0 {
		c.lastInsertID = res.LastInsertRowID
	}
}

// UseReadEngine opens a second engine that Select runs on. Its lifecycle is
// independent of the primary until Close, which closes both. A previously
// configured read engine is closed.
//
// A local read engine on the embedded replica's own file is not opened:
// every sync swaps that file, so Select reads through the replica instead.
func (c *Connection) UseReadEngine(ctx context.Context, cfg libsql.Config) (libsql.Engine, error) {
	if replica, ok := c.engine.(*libsql.ReplicaEngine); ok && cfg.Mode == libsql.ModeLocal && samePath(replica.Path(), cfg.Path) {
		c.logger.Debug("database: read engine shares the replica file", "path", cfg.Path)
		c.closeReadEngine()
		return c.engine, nil
	}
	engine, err := libsql.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closeReadEngine()
	c.read = engine
	return engine, nil
}

func (c *Connection) closeReadEngine() {
	if c.read == nil {
		return
	}
	if err := c.read.Close(); err != nil {
		c.logger.Warn("database: close previous read engine", "error", err)
	}
	c.read = nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// ReadEngine returns the engine Select uses.
func (c *Connection) ReadEngine() libsql.Engine {
	if c.read != nil {
		return c.read
	}
	return c.engine
}

// Select runs query on the read engine and returns its rows keyed by column.
func (c *Connection) Select(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	stmt := newStatement(c, c.ReadEngine(), query)
	if _, err := stmt.Execute(ctx, args...); err != nil {
		return nil, err
	}
	rows, err := stmt.FetchAll(FetchAssoc)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.(map[string]any)
	}
	return out, nil
}

// Exec runs query on the primary engine. Without LenientWrites it reports
// whether any rows were affected; with it, any statement that did not fail
// reports true.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) (bool, error) {
	affected, err := NewStatement(c, query).Execute(ctx, args...)
	if err != nil {
		return false, err
	}
	return affected || c.lenientWrites, nil
}

// dispatch sends a SELECT straight to engine.Query and anything else through
// Prepare, closing the prepared handle afterwards.
func (c *Connection) dispatch(ctx context.Context, engine libsql.Engine, query string, args []libsql.Value) (*libsql.Result, error) {
	var (
		res *libsql.Result
		err error
	)
	logger := logging.Or(ctx, c.logger)
	if libsql.IsSelect(query) {
		logger.Debug("database: query", "sql", query, "args", len(args))
		res, err = engine.Query(ctx, query, args)
	} else {
		logger.Debug("database: prepare", "sql", query, "args", len(args))
		res, err = runPrepared(ctx, engine, query, args, logger)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &libsql.Result{}
	}
	return res, nil
}

func runPrepared(ctx context.Context, engine libsql.Engine, query string, args []libsql.Value, logger *slog.Logger) (*libsql.Result, error) {
	stmt, err := engine.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			logger.Warn("database: close prepared statement", "error", err)
		}
	}()
	return stmt.Query(ctx, args)
}

// IsUniqueConstraintError reports whether err is a uniqueness violation
// according to the connection's classifier.
func (c *Connection) IsUniqueConstraintError(err error) bool {
	return c.classifier.IsUniqueViolation(err)
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
	`'`, `\'`,
	`"`, `\"`,
)

// EscapeString backslash-escapes the characters MySQL-style string literals
// require. Bound parameters should be preferred wherever possible.
func (c *Connection) EscapeString(s string) string {
	return stringEscaper.Replace(s)
}

// Quote is EscapeString; the value is not wrapped in quotes.
func (c *Connection) Quote(s string) string {
	return c.EscapeString(s)
}

// EscapeBinary renders b as a blob literal, x'0a1b'.
func (c *Connection) EscapeBinary(b []byte) string {
	return "x'" + hex.EncodeToString(b) + "'"
}

// Close closes the read engine (if any) and the primary engine.
func (c *Connection) Close() error {
	var readErr error
	if c.read != nil {
		readErr = c.read.Close()
		c.read = nil
	}
	return errors.Join(readErr, c.engine.Close())
}
