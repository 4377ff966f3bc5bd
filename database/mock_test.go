package database

import (
	"context"

	"github.com/ineersa/libsqlshim/libsql"
)

// engineCall records one request made to a mockEngine.
type engineCall struct {
	Path string // "query" or "prepare"
	SQL  string
	Args []libsql.Value
}

// mockEngine returns queued results in order and records every call.
type mockEngine struct {
	mode    libsql.Mode
	results []*libsql.Result
	errs    []error

	history        []engineCall
	closedPrepared int
	syncs          int
	closed         bool
}

func newMockEngine(mode libsql.Mode) *mockEngine {
	return &mockEngine{mode: mode}
}

// respond queues a result for the next statement.
func (m *mockEngine) respond(res *libsql.Result) *mockEngine {
	m.results = append(m.results, res)
	m.errs = append(m.errs, nil)
	return m
}

// fail queues an error for the next statement.
func (m *mockEngine) fail(err error) *mockEngine {
	m.results = append(m.results, nil)
	m.errs = append(m.errs, err)
	return m
}

func (m *mockEngine) next() (*libsql.Result, error) {
	if len(m.results) == 0 {
		return &libsql.Result{}, nil
	}
	res, err := m.results[0], m.errs[0]
	m.results, m.errs = m.results[1:], m.errs[1:]
	return res, err
}

func (m *mockEngine) Query(ctx context.Context, sql string, args []libsql.Value) (*libsql.Result, error) {
	m.history = append(m.history, engineCall{Path: "query", SQL: sql, Args: args})
	return m.next()
}

func (m *mockEngine) Prepare(ctx context.Context, sql string) (libsql.Prepared, error) {
	return &mockPrepared{engine: m, sql: sql}, nil
}

func (m *mockEngine) Mode() libsql.Mode { return m.mode }

func (m *mockEngine) Sync(ctx context.Context) error {
	if m.mode != libsql.ModeEmbeddedReplica {
		return libsql.ErrSyncUnsupported
	}
	m.syncs++
	return nil
}

func (m *mockEngine) Close() error {
	m.closed = true
	return nil
}

type mockPrepared struct {
	engine *mockEngine
	sql    string
}

func (p *mockPrepared) Query(ctx context.Context, args []libsql.Value) (*libsql.Result, error) {
	p.engine.history = append(p.engine.history, engineCall{Path: "prepare", SQL: p.sql, Args: args})
	return p.engine.next()
}

func (p *mockPrepared) Close() error {
	p.engine.closedPrepared++
	return nil
}

func twoRows() *libsql.Result {
	return &libsql.Result{
		Columns: []string{"id", "x"},
		Rows:    [][]any{{int64(1), "a"}, {int64(2), "b"}},
	}
}
