package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/metrics"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

type ctxKey int

const actorKey ctxKey = iota

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// actorFrom returns the authenticated user, else the first non-empty
// payload actor, else the system actor.
func actorFrom(ctx context.Context, payload ...string) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	for _, a := range payload {
		if a != "" {
			return a
		}
	}
	return storage.SystemActor
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrw := newResponseWriterWrapper(w)

		next.ServeHTTP(wrw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(wrw.GetStatusCode())).
			Observe(elapsed.Seconds())

		if s.opts.AccessLog == nil {
			return
		}
		entry := AccessLogEntry{
			Timestamp:  start.UTC(),
			Method:     r.Method,
			Route:      route,
			Path:       r.URL.Path,
			StatusCode: wrw.GetStatusCode(),
			Bytes:      wrw.BytesWritten(),
			Duration:   elapsed,
			Actor:      storage.SystemActor,
		}
		if wrw.actor != "" {
			entry.Actor = wrw.actor
		}
		if vars := mux.Vars(r); vars != nil {
			entry.RecordID = vars["id"]
		}
		s.opts.AccessLog.LogEntry(entry)
	})
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="catalog"`)
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		valid, err := s.userRepo.ValidateUser(r.Context(), username, password)
		if err != nil {
			s.logger.Error("http: failed to validate user", zap.String("username", username), zap.Error(err))
		}
		if err != nil || !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="catalog"`)
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if rec, ok := w.(*responseWriterWrapper); ok {
			rec.actor = username
		}
		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), username)))
	})
}
