package libsql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ineersa/libsqlshim/sqlproxy/client"
	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

// RemoteEngine ships every statement to a primary over HTTP.
type RemoteEngine struct {
	client *client.Client
	logger *slog.Logger
	closed atomic.Bool
}

var _ Engine = (*RemoteEngine)(nil)

// OpenRemote returns an engine for the primary at cfg.URL. No request is made
// until the first statement.
func OpenRemote(ctx context.Context, cfg Config) (*RemoteEngine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("libsql: remote mode requires a primary URL")
	}
	return &RemoteEngine{
		client: client.NewClient(cfg.URL, client.WithAuthToken(cfg.AuthToken)),
		logger: cfg.logger(),
	}, nil
}

func (e *RemoteEngine) Mode() Mode { return ModeRemote }

func (e *RemoteEngine) Sync(ctx context.Context) error { return ErrSyncUnsupported }

func (e *RemoteEngine) Query(ctx context.Context, query string, args []Value) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	resp, err := e.client.Do(ctx, types.SQLRequest{
		Command: types.CommandQuery,
		SQL:     query,
		Args:    wireArgs(args),
	})
	if err != nil {
		return nil, err
	}
	return resultFromWire(resp)
}

func (e *RemoteEngine) Prepare(ctx context.Context, query string) (Prepared, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	resp, err := e.client.Do(ctx, types.SQLRequest{Command: types.CommandPrepare, SQL: query})
	if err != nil {
		return nil, err
	}
	if resp.StmtID == "" {
		return nil, fmt.Errorf("libsql: primary did not return a statement id for prepare")
	}
	return &remotePrepared{engine: e, stmtID: resp.StmtID}, nil
}

func (e *RemoteEngine) Close() error {
	e.closed.Store(true)
	return nil
}

type remotePrepared struct {
	engine *RemoteEngine
	stmtID string
}

func (p *remotePrepared) Query(ctx context.Context, args []Value) (*Result, error) {
	if p.engine.closed.Load() {
		return nil, ErrClosed
	}
	resp, err := p.engine.client.Do(ctx, types.SQLRequest{
		Command: types.CommandExecute,
		StmtID:  p.stmtID,
		Args:    wireArgs(args),
	})
	if err != nil {
		return nil, err
	}
	return resultFromWire(resp)
}

func (p *remotePrepared) Close() error {
	if p.stmtID == "" {
		return nil
	}
	_, err := p.engine.client.Do(context.Background(), types.SQLRequest{
		Command: types.CommandCloseStmt,
		StmtID:  p.stmtID,
	})
	p.stmtID = ""
	return err
}

func wireArgs(args []Value) []types.Value {
	if len(args) == 0 {
		return nil
	}
	out := make([]types.Value, len(args))
	for i, v := range args {
		out[i] = types.NewValue(v.Any())
		out[i].Name = v.Name
	}
	return out
}

// WireArgs decodes wire arguments back into bind values.
func WireArgs(args []types.Value) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		v, err := a.Decode()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = Coerce(v)
		out[i].Name = a.Name
	}
	return out, nil
}

// WireResult encodes a result for the wire.
func WireResult(res *Result) *types.Response {
	rows := make([][]types.Value, len(res.Rows))
	for r, row := range res.Rows {
		cells := make([]types.Value, len(row))
		for i, cell := range row {
			cells[i] = types.NewValue(cell)
		}
		rows[r] = cells
	}
	return &types.Response{
		Columns:         res.Columns,
		Rows:            rows,
		LastInsertRowID: res.LastInsertRowID,
		RowsAffected:    res.RowsAffected,
	}
}

func resultFromWire(resp *types.Response) (*Result, error) {
	res := &Result{
		Columns:         resp.Columns,
		Rows:            make([][]any, len(resp.Rows)),
		LastInsertRowID: resp.LastInsertRowID,
		RowsAffected:    resp.RowsAffected,
	}
	for r, row := range resp.Rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			v, err := cell.Decode()
			if err != nil {
				return nil, fmt.Errorf("libsql: row %d column %d: %w", r, i, err)
			}
			cells[i] = v
		}
		res.Rows[r] = cells
	}
	return res, nil
}
