package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ineersa/libsqlshim/libsql"
	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

func newTestHost(t *testing.T) *SQLHost {
	t.Helper()
	engine, err := libsql.OpenLocal(context.Background(), libsql.Config{
		Mode: libsql.ModeLocal,
		Path: filepath.Join(t.TempDir(), "primary.db"),
	})
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return NewSQLHost(engine, nil)
}

func handle(t *testing.T, h *SQLHost, req types.SQLRequest) *types.Response {
	t.Helper()
	resp, err := h.Handle(context.Background(), &req)
	if err != nil {
		t.Fatalf("Handle(%s %q): %v", req.Command, req.SQL, err)
	}
	return resp
}

func exec(t *testing.T, h *SQLHost, sql string, args ...any) *types.Response {
	t.Helper()
	prep := handle(t, h, types.SQLRequest{Command: types.CommandPrepare, SQL: sql})
	if prep.StmtID == "" {
		t.Fatal("prepare returned no statement id")
	}
	wire := make([]types.Value, len(args))
	for i, a := range args {
		wire[i] = types.NewValue(a)
	}
	resp := handle(t, h, types.SQLRequest{Command: types.CommandExecute, StmtID: prep.StmtID, Args: wire})
	handle(t, h, types.SQLRequest{Command: types.CommandCloseStmt, StmtID: prep.StmtID})
	return resp
}

func TestHandleStatements(t *testing.T) {
	h := newTestHost(t)
	gen := h.Generation()

	exec(t, h, "CREATE TABLE t (id INTEGER PRIMARY KEY, x TEXT)")
	if h.Generation() == gen {
		t.Error("DDL did not advance the generation")
	}

	resp := exec(t, h, "INSERT INTO t (x) VALUES (?)", "a")
	if resp.LastInsertRowID != 1 || resp.RowsAffected != 1 {
		t.Errorf("insert response = %+v", resp)
	}

	gen = h.Generation()
	resp = handle(t, h, types.SQLRequest{
		Command: types.CommandQuery,
		SQL:     "SELECT id, x FROM t WHERE id = ?",
		Args:    []types.Value{types.NewValue(int64(1))},
	})
	if h.Generation() != gen {
		t.Error("a read advanced the generation")
	}
	if len(resp.Rows) != 1 || len(resp.Columns) != 2 {
		t.Fatalf("query response = %+v", resp)
	}
	id, _ := resp.Rows[0][0].Decode()
	x, _ := resp.Rows[0][1].Decode()
	if id != int64(1) || x != "a" {
		t.Errorf("row = %v, %v", id, x)
	}
}

func TestHandleErrors(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	if _, err := h.Handle(ctx, &types.SQLRequest{Command: "vacuum"}); err == nil {
		t.Error("unknown command accepted")
	}
	if _, err := h.Handle(ctx, &types.SQLRequest{Command: types.CommandExecute, StmtID: "missing"}); err == nil {
		t.Error("execute of an unknown statement succeeded")
	}
	if _, err := h.Handle(ctx, &types.SQLRequest{Command: types.CommandQuery, SQL: "SELECT * FROM nope"}); err == nil {
		t.Error("query of a missing table succeeded")
	}
	// Closing twice is fine.
	handle(t, h, types.SQLRequest{Command: types.CommandCloseStmt, StmtID: "missing"})
}

func TestReset(t *testing.T) {
	h := newTestHost(t)
	prep := handle(t, h, types.SQLRequest{Command: types.CommandPrepare, SQL: "SELECT 1"})
	h.Reset()
	if _, err := h.Handle(context.Background(), &types.SQLRequest{Command: types.CommandExecute, StmtID: prep.StmtID}); err == nil {
		t.Error("statement survived Reset")
	}
}

func TestSnapshot(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	exec(t, h, "CREATE TABLE t (x)")

	snap, err := h.Snapshot(ctx, h.Generation())
	if err != nil || snap != nil {
		t.Fatalf("Snapshot at the current generation = %v, %v; want nil", snap, err)
	}

	snap, err = h.Snapshot(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Generation != h.Generation() {
		t.Errorf("snapshot generation = %d, want %d", snap.Generation, h.Generation())
	}
	if info, err := os.Stat(snap.Path); err != nil || info.Size() == 0 {
		t.Fatalf("snapshot file: %v", err)
	}
	if err := snap.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(snap.Path); !os.IsNotExist(err) {
		t.Errorf("snapshot file still exists: %v", err)
	}
}
