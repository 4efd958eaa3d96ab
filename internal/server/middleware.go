package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nyimbi/Games/internal/realtime"
)

type ctxKey int

const ctxKeyRoom ctxKey = iota

// roomMiddleware resolves {sessionID} to its live room or answers 404.
func roomMiddleware(m *realtime.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			room, ok := m.Room(chi.URLParam(r, "sessionID"))
			if !ok {
				writeError(w, http.StatusNotFound, "room not found")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyRoom, room)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roomFrom(r *http.Request) *realtime.Room {
	return r.Context().Value(ctxKeyRoom).(*realtime.Room)
}
