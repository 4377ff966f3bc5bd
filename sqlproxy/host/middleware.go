package host

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ineersa/libsqlshim/auth"
	"github.com/ineersa/libsqlshim/logging"
)

type middleware func(http.HandlerFunc) http.HandlerFunc

// chain wraps h so that the first middleware runs innermost.
func chain(h http.HandlerFunc, middleware ...middleware) http.HandlerFunc {
	for _, m := range middleware {
		h = m(h)
	}
	return h
}

// tokenRequired rejects requests without a valid bearer token and stores the
// verified claims in the request context under auth.ClaimsKey. A nil
// verifier lets every request through without claims.
func tokenRequired(verifier *auth.Verifier) middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				logging.Or(r.Context(), nil).Warn("sqlproxy: rejected token", "error", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), auth.ClaimsKey, claims)))
		}
	}
}

// logRequests attaches a request-scoped logger to the context and logs each
// request once it completes.
func logRequests(logger *slog.Logger) middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLogger := logger.With("request_id", uuid.NewString(), "remote", r.RemoteAddr)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(logging.ContextWithLogger(r.Context(), reqLogger)))

			reqLogger.Debug("sqlproxy: request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
