package host

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ineersa/libsqlshim/libsql"
	"github.com/ineersa/libsqlshim/logging"
	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

// SQLHost answers proxy requests against one local database.
// It manages prepared statements and the generation counter replicas sync against.
type SQLHost struct {
	engine     *libsql.LocalEngine
	stmts      map[string]libsql.Prepared
	generation int64
	mu         sync.Mutex
	logger     *slog.Logger
}

// NewSQLHost creates a new SQLHost instance serving engine.
func NewSQLHost(engine *libsql.LocalEngine, logger *slog.Logger) *SQLHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLHost{
		engine: engine,
		stmts:  make(map[string]libsql.Prepared),
		// Seeded from the clock so a restarted primary never reuses a
		// generation a replica may already hold.
		generation: time.Now().UnixNano(),
		logger:     logger,
	}
}

// Generation returns the current generation. It advances on every change.
func (h *SQLHost) Generation() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}

// Handle runs one request. Requests are serialised: the engine has a single
// connection and the counters it reports must belong to this request.
func (h *SQLHost) Handle(ctx context.Context, req *types.SQLRequest) (*types.Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch req.Command {
	case types.CommandQuery:
		return h.handleQuery(ctx, req, h.engine.Query)
	case types.CommandPrepare:
		return h.handlePrepare(ctx, req)
	case types.CommandExecute:
		return h.handleExecute(ctx, req)
	case types.CommandCloseStmt:
		return h.handleCloseStmt(req)
	}
	return nil, fmt.Errorf("unknown command: %s", req.Command)
}

// HandleReadOnly runs a query request with writes disabled on the database.
// Every other command is refused.
func (h *SQLHost) HandleReadOnly(ctx context.Context, req *types.SQLRequest) (*types.Response, error) {
	if req.Command != types.CommandQuery {
		return nil, fmt.Errorf("command %s requires write access", req.Command)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handleQuery(ctx, req, h.engine.QueryReadOnly)
}

type queryFunc func(ctx context.Context, query string, args []libsql.Value) (*libsql.Result, error)

func (h *SQLHost) handleQuery(ctx context.Context, req *types.SQLRequest, query queryFunc) (*types.Response, error) {
	args, err := libsql.WireArgs(req.Args)
	if err != nil {
		return nil, err
	}
	res, err := query(ctx, req.SQL, args)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected > 0 {
		h.generation++
	}
	return libsql.WireResult(res), nil
}

func (h *SQLHost) handlePrepare(ctx context.Context, req *types.SQLRequest) (*types.Response, error) {
	stmt, err := h.engine.Prepare(ctx, req.SQL)
	if err != nil {
		return nil, err
	}
	stmtID := uuid.NewString()
	h.stmts[stmtID] = stmt
	return &types.Response{StmtID: stmtID}, nil
}

func (h *SQLHost) handleExecute(ctx context.Context, req *types.SQLRequest) (*types.Response, error) {
	stmt, ok := h.stmts[req.StmtID]
	if !ok {
		return nil, fmt.Errorf("statement not found: %s", req.StmtID)
	}
	args, err := libsql.WireArgs(req.Args)
	if err != nil {
		return nil, err
	}
	res, err := stmt.Query(ctx, args)
	if err != nil {
		return nil, err
	}
	// Prepared statements are anything that is not a plain SELECT, including
	// DDL that reports no affected rows, so every execution counts as a change.
	h.generation++
	return libsql.WireResult(res), nil
}

func (h *SQLHost) handleCloseStmt(req *types.SQLRequest) (*types.Response, error) {
	stmt, exists := h.stmts[req.StmtID]
	if !exists {
		// Closing an unknown statement is not an error; close is idempotent.
		return &types.Response{}, nil
	}
	delete(h.stmts, req.StmtID)
	if err := stmt.Close(); err != nil {
		return nil, fmt.Errorf("close statement failed: %w", err)
	}
	return &types.Response{}, nil
}

// Reset closes every open prepared statement.
func (h *SQLHost) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, stmt := range h.stmts {
		_ = stmt.Close() // best effort
		delete(h.stmts, id)
	}
}

// Snapshot is a consistent copy of the database at one generation.
type Snapshot struct {
	Path       string
	Generation int64
}

// Remove deletes the snapshot file.
func (s *Snapshot) Remove() error {
	return os.Remove(s.Path)
}

// Snapshot copies the database unless the primary is still at known, in which
// case it returns nil.
func (h *SQLHost) Snapshot(ctx context.Context, known int64) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if known == h.generation {
		return nil, nil
	}
	path := filepath.Join(os.TempDir(), "libsql-snapshot-"+uuid.NewString()+".db")
	if err := h.engine.Backup(ctx, path); err != nil {
		return nil, err
	}
	logging.Or(ctx, h.logger).Info("sqlproxy: snapshot taken",
		"generation", h.generation, "replica_generation", known)
	return &Snapshot{Path: path, Generation: h.generation}, nil
}
