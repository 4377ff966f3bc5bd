package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func snapshotServer(t *testing.T, data []byte, checksum, generation string) *httptest.Server {
	t.Helper()
	body := compress(t, data)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("generation") == generation {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set(types.HeaderGeneration, generation)
		w.Header().Set(types.HeaderChecksum, checksum)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSnapshot(t *testing.T) {
	data := []byte("SQLite format 3\x00 pretend database")
	srv := snapshotServer(t, data, types.Checksum(xxh3.Hash(data)), "42")
	c := NewClient(srv.URL + "/")

	var buf bytes.Buffer
	gen, changed, err := c.Snapshot(context.Background(), 0, &buf)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if gen != 42 || !changed || !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("Snapshot = %d, %v, %q", gen, changed, buf.Bytes())
	}

	buf.Reset()
	gen, changed, err = c.Snapshot(context.Background(), 42, &buf)
	if err != nil || changed || gen != 42 || buf.Len() != 0 {
		t.Errorf("unchanged Snapshot = %d, %v, %v", gen, changed, err)
	}
}

func TestSnapshotIntegrity(t *testing.T) {
	data := []byte("database bytes")

	srv := snapshotServer(t, data, "0000000000000000", "7")
	_, _, err := NewClient(srv.URL).Snapshot(context.Background(), 0, &bytes.Buffer{})
	if !IsIntegrityError(err) {
		t.Errorf("checksum mismatch error = %v, want integrity error", err)
	}

	srv = snapshotServer(t, data, types.Checksum(xxh3.Hash(data)), "not-a-number")
	_, _, err = NewClient(srv.URL).Snapshot(context.Background(), 0, &bytes.Buffer{})
	if !IsIntegrityError(err) {
		t.Errorf("bad generation error = %v, want integrity error", err)
	}
}

func TestDo(t *testing.T) {
	var got types.SQLRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		switch got.SQL {
		case "fail":
			json.NewEncoder(w).Encode(types.Response{Error: "UNIQUE constraint failed: t.x"})
		case "crash":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			json.NewEncoder(w).Encode(types.Response{RowsAffected: 3})
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, WithAuthToken("tok"), WithHTTPClient(srv.Client()))
	ctx := context.Background()

	resp, err := c.Do(ctx, types.SQLRequest{Command: types.CommandQuery, SQL: "UPDATE t SET x = 1"})
	if err != nil || resp.RowsAffected != 3 {
		t.Fatalf("Do = %+v, %v", resp, err)
	}
	if authHeader != "Bearer tok" || got.Command != types.CommandQuery {
		t.Errorf("request auth=%q command=%q", authHeader, got.Command)
	}

	_, err = c.Do(ctx, types.SQLRequest{Command: types.CommandQuery, SQL: "fail"})
	if !IsHostError(err) || err.Error() != "UNIQUE constraint failed: t.x" {
		t.Errorf("host error = %v", err)
	}

	_, err = c.Do(ctx, types.SQLRequest{Command: types.CommandQuery, SQL: "crash"})
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Type != ErrorTypeAPI || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("server failure error = %v", err)
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url)
	if err := c.Health(context.Background()); !IsNetworkError(err) {
		t.Errorf("Health against a closed server = %v, want network error", err)
	}
	if c.BaseURL() != url {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}
