// Package libsql is the engine side of the shim: a libSQL-style database
// handle that answers every statement with a fully materialised result
// (rows plus last_insert_rowid and rows_affected) instead of a cursor.
//
// Three connection modes are provided:
//
//   - local: a SQLite file opened in-process (mattn/go-sqlite3 or modernc.org/sqlite)
//   - remote: every call is shipped to a primary server over HTTP (see sqlproxy/host)
//   - embedded-replica: reads are served from a local copy of the primary's
//     database, writes are forwarded to the primary, and Sync pulls the
//     primary's current state into the local copy
//
// Callers normally do not use an Engine directly; the database package wraps
// one in a Connection and exposes a prepared-statement API on top of it.
package libsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Mode is the connection mode of an Engine.
type Mode string

const (
	ModeLocal           Mode = "local"
	ModeRemote          Mode = "remote"
	ModeEmbeddedReplica Mode = "embedded-replica"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLocal, ModeRemote, ModeEmbeddedReplica:
		return m, nil
	}
	return "", fmt.Errorf("libsql: unknown connection mode %q", s)
}

var (
	// ErrSyncUnsupported is returned by Sync on engines that have no replica to refresh.
	ErrSyncUnsupported = errors.New("libsql: sync is only supported in embedded-replica mode")
	// ErrClosed is returned by any call on an engine after Close.
	ErrClosed = errors.New("libsql: engine is closed")
)

// Result is the whole response to one statement. Rows[r][i] is the value of
// Columns[i] in row r; row order is the order the engine produced.
type Result struct {
	Columns         []string
	Rows            [][]any
	LastInsertRowID int64 // 0 when the statement produced no id
	RowsAffected    int64
}

// Engine is the backend contract consumed by the statement layer.
type Engine interface {
	// Query runs sql directly with the given ordered values.
	Query(ctx context.Context, sql string, args []Value) (*Result, error)
	// Prepare compiles sql into a reusable handle.
	Prepare(ctx context.Context, sql string) (Prepared, error)
	// Mode reports how the engine is connected.
	Mode() Mode
	// Sync pulls the primary's state into the local replica. Engines that are
	// not replicas return ErrSyncUnsupported.
	Sync(ctx context.Context) error
	Close() error
}

// Prepared is a statement handle obtained from Engine.Prepare.
type Prepared interface {
	Query(ctx context.Context, args []Value) (*Result, error)
	Close() error
}

// Config selects and configures an engine.
type Config struct {
	Mode Mode

	// Path is the local database file (local and embedded-replica modes).
	Path string
	// Driver is the database/sql driver used for local files: "sqlite3"
	// (mattn/go-sqlite3, the default) or "sqlite" (modernc.org/sqlite).
	Driver string

	// URL and AuthToken address the primary (remote and embedded-replica modes).
	URL       string
	AuthToken string

	// SyncSchedule is an optional cron spec ("@every 30s") for background
	// replica syncs.
	SyncSchedule string
	// ReadYourWrites makes the replica sync after every write it forwards to
	// the primary, so the caller's next read sees it.
	ReadYourWrites bool

	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Open creates the engine described by cfg.
func Open(ctx context.Context, cfg Config) (Engine, error) {
	var (
		e   Engine
		err error
	)
	switch cfg.Mode {
	case ModeLocal:
		e, err = OpenLocal(ctx, cfg)
	case ModeRemote:
		e, err = OpenRemote(ctx, cfg)
	case ModeEmbeddedReplica:
		e, err = OpenReplica(ctx, cfg)
	default:
		return nil, fmt.Errorf("libsql: unknown connection mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}
