package host

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/ineersa/libsqlshim/auth"
	"github.com/ineersa/libsqlshim/libsql"
	"github.com/ineersa/libsqlshim/logging"
	"github.com/ineersa/libsqlshim/sqlproxy/types"
)

// Server exposes an SQLHost over HTTP:
//
//	POST /v1/execute   one SQLRequest, answered with a Response
//	GET  /v1/snapshot  zstd-compressed database image for replicas
//	GET  /health
//
// When a verifier is set every route except /health requires a bearer token.
type Server struct {
	host *SQLHost
	mux  *http.ServeMux
}

// NewServer builds the HTTP handler. verifier may be nil to disable auth.
func NewServer(host *SQLHost, verifier *auth.Verifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{host: host, mux: http.NewServeMux()}
	protected := func(h http.HandlerFunc) http.HandlerFunc {
		return chain(h, tokenRequired(verifier), logRequests(logger))
	}
	s.mux.HandleFunc("POST /v1/execute", protected(s.handleExecute))
	s.mux.HandleFunc("GET /v1/snapshot", protected(s.handleSnapshot))
	s.mux.HandleFunc("GET /health", chain(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, logRequests(logger)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req types.SQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, err, http.StatusBadRequest)
		return
	}
	handle := s.host.Handle
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && !claims.CanWrite() {
		if !isRead(&req) {
			fail(w, r, errors.New("token is read-only"), http.StatusForbidden)
			return
		}
		handle = s.host.HandleReadOnly
	}

	resp, err := handle(r.Context(), &req)
	if err != nil {
		// SQL errors are part of the protocol, not HTTP failures.
		logging.Or(r.Context(), nil).Debug("sqlproxy: request failed", "command", req.Command, "error", err)
		resp = &types.Response{Error: err.Error()}
	}
	writeJSON(w, r, resp)
}

func isRead(req *types.SQLRequest) bool {
	return req.Command == types.CommandQuery && libsql.IsSelect(req.SQL)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	logger := logging.Or(r.Context(), nil)

	var known int64
	if v := r.URL.Query().Get("generation"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail(w, r, err, http.StatusBadRequest)
			return
		}
		known = n
	}

	snap, err := s.host.Snapshot(r.Context(), known)
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}
	if snap == nil {
		w.Header().Set(types.HeaderGeneration, strconv.FormatInt(known, 10))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer snap.Remove()

	data, err := os.ReadFile(snap.Path)
	if err != nil {
		fail(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set(types.HeaderGeneration, strconv.FormatInt(snap.Generation, 10))
	w.Header().Set(types.HeaderChecksum, types.Checksum(xxh3.Hash(data)))
	w.WriteHeader(http.StatusOK)

	enc, err := zstd.NewWriter(w)
	if err != nil {
		logger.Error("sqlproxy: snapshot encoder", "error", err)
		return
	}
	if _, err := enc.Write(data); err != nil {
		logger.Warn("sqlproxy: snapshot transfer aborted", "error", err)
	}
	if err := enc.Close(); err != nil {
		logger.Warn("sqlproxy: snapshot transfer aborted", "error", err)
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error, status int) {
	logging.Or(r.Context(), nil).Warn("sqlproxy: request rejected",
		"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, r *http.Request, resp interface{}) {
	payload, err := json.Marshal(resp)
	if err != nil {
		logging.Or(r.Context(), nil).Error("sqlproxy: marshal response",
			"method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}
