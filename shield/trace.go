package shield

import (
	"log/slog"
	"net/http"

	"github.com/hazyhaar/widgetwatch/idgen"
	"github.com/hazyhaar/widgetwatch/kit"
)

// RequestHeader carries the request id in both directions.
const RequestHeader = "X-Request-ID"

var requestID = idgen.Prefixed("req_", idgen.UUIDv7())

// RequestID tags each request with an id (reusing a well-formed incoming
// X-Request-ID), stores it with the remote address in the kit context, and
// attaches a per-request logger with kit.WithLogger.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestHeader)
			if id == "" || len(id) > 64 {
				id = requestID()
			}
			w.Header().Set(RequestHeader, id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)

			reqLogger := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = kit.WithLogger(ctx, reqLogger)
			reqLogger.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
