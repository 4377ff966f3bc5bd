package database

import (
	"context"
	"fmt"

	"github.com/ineersa/libsqlshim/libsql"
)

// State is the position of a statement's cursor in its row buffer.
type State int

const (
	// StateFresh: rows are buffered and none has been fetched.
	StateFresh State = iota
	// StatePartiallyConsumed: at least one row was fetched and more remain.
	StatePartiallyConsumed
	// StateExhausted: no rows remain (or the statement produced none).
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StatePartiallyConsumed:
		return "partially-consumed"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Statement is one query on a Connection. The query text is normalised once
// at construction. Each Execute replaces the row buffer and resets the
// cursor; Fetch removes rows from the front of the buffer.
type Statement struct {
	conn   *Connection
	engine libsql.Engine
	query  string

	binds     bindings
	fetchMode FetchMode

	columns      []string
	rows         [][]any
	fetched      int
	affectedRows int64
}

// NewStatement creates a statement that runs on conn's primary engine.
func NewStatement(conn *Connection, query string) *Statement {
	return newStatement(conn, conn.engine, query)
}

func newStatement(conn *Connection, engine libsql.Engine, query string) *Statement {
	return &Statement{
		conn:      conn,
		engine:    engine,
		query:     NormalizeQuery(query),
		fetchMode: FetchBoth,
	}
}

// Query returns the normalised query text.
func (s *Statement) Query() string { return s.query }

// SetFetchMode sets the shape used by FetchDefault.
func (s *Statement) SetFetchMode(mode FetchMode) error {
	if !mode.valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedFetchMode, int(mode))
	}
	s.fetchMode = mode
	return nil
}

// FetchMode returns the statement's current fetch mode.
func (s *Statement) FetchMode() FetchMode { return s.fetchMode }

// BindValue binds v at position pos (0- or 1-based, as long as the caller is
// consistent). The hint is ignored: the type is inferred from v. It always
// reports true.
func (s *Statement) BindValue(pos int, v any, hint ...ParamType) bool {
	s.binds.set(pos, libsql.Coerce(v))
	return true
}

// BindNamed binds v to a named parameter. The leading ":", "@" or "$" is optional.
func (s *Statement) BindNamed(name string, v any) bool {
	s.binds.setNamed(trimParamName(name), libsql.Coerce(v))
	return true
}

// Execute runs the statement. Any args are bound first, at positions 0..n-1.
// Queries starting with SELECT are sent directly; everything else is
// prepared and then run. It reports whether any rows were affected, so a
// successful SELECT returns false.
//
// On failure the row buffer and affected count are cleared and the engine's
// error is returned.
func (s *Statement) Execute(ctx context.Context, args ...any) (bool, error) {
	for i, a := range args {
		s.binds.set(i, libsql.Coerce(a))
	}

	res, err := s.conn.dispatch(ctx, s.engine, s.query, s.binds.values())
	if err != nil {
		s.clear()
		return false, err
	}

	s.columns = res.Columns
	s.rows = res.Rows
	s.fetched = 0
	s.affectedRows = res.RowsAffected
	track(s.conn, res)
	return s.affectedRows > 0, nil
}

func (s *Statement) clear() {
	s.columns = nil
	s.rows = nil
	s.fetched = 0
	s.affectedRows = 0
}

func (s *Statement) resolve(mode FetchMode) (FetchMode, error) {
	if mode == FetchDefault {
		return s.fetchMode, nil
	}
	if !mode.valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedFetchMode, int(mode))
	}
	return mode, nil
}

// Fetch removes the next row from the buffer and returns it in the given
// shape. ok is false once the buffer is exhausted.
func (s *Statement) Fetch(mode FetchMode) (row any, ok bool, err error) {
	return s.FetchWith(mode, OrientNext, 0)
}

// FetchWith is Fetch with an explicit cursor orientation. Only OrientNext is
// supported and offset is ignored.
func (s *Statement) FetchWith(mode FetchMode, orientation Orientation, offset int) (any, bool, error) {
	mode, err := s.resolve(mode)
	if err != nil {
		return nil, false, err
	}
	if orientation != OrientNext {
		return nil, false, fmt.Errorf("%w: %d", ErrUnsupportedOrientation, int(orientation))
	}
	if len(s.rows) == 0 {
		return nil, false, nil
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	s.fetched++
	return project(mode, s.columns, row), true, nil
}

// FetchAll returns every remaining row and leaves the buffer exhausted.
// The result is never nil.
func (s *Statement) FetchAll(mode FetchMode) ([]any, error) {
	mode, err := s.resolve(mode)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, project(mode, s.columns, row))
	}
	s.fetched += len(s.rows)
	s.rows = nil
	return out, nil
}

// State reports where the cursor is.
func (s *Statement) State() State {
	switch {
	case len(s.rows) == 0:
		return StateExhausted
	case s.fetched > 0:
		return StatePartiallyConsumed
	}
	return StateFresh
}

// RowCount is the larger of the number of unfetched rows and the number of
// rows affected by the last Execute.
func (s *Statement) RowCount() int64 {
	return max(int64(len(s.rows)), s.affectedRows)
}

// AffectedRows is the rows_affected reported for the last Execute.
func (s *Statement) AffectedRows() int64 { return s.affectedRows }

// ColumnCount is the number of columns in the last result.
func (s *Statement) ColumnCount() int { return len(s.columns) }

// Columns returns the column names of the last result.
func (s *Statement) Columns() []string { return slicesClone(s.columns) }

// NextRowset always reports false: the engine returns one result per statement.
func (s *Statement) NextRowset() bool { return false }
