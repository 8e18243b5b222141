// Package shield provides the HTTP middleware stack in front of the status
// API: security headers for a JSON-only surface, body limits, request ids
// with a per-request logger, and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/widgetwatch/kit"
)

// maxAPIBody bounds JSON request bodies (linkify payloads are message HTML).
const maxAPIBody = 1 << 20

// APIStack returns the middleware stack for the status API, ordered:
// HeadToGet → SecurityHeaders → MaxBody → RequestID.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxAPIBody),
		RequestID(logger),
	}
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l := kit.GetLogger(ctx); l != nil {
		return l
	}
	return slog.Default()
}

// HeadToGet routes HEAD to the GET handlers so uptime checks can HEAD
// /health and /api/pages. net/http drops the body of a HEAD response.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
