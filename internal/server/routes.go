package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/nyimbi/Games/internal/handler/health"
	"github.com/nyimbi/Games/internal/handler/ws"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Games realtime API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks, deps.Manager).Routes())
	r.Mount("/ws", ws.NewHandler(deps.Manager, logger, deps.WS).Routes())

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", handleListRooms(deps.Manager))

		// These outlive the in-memory room.
		r.Get("/{sessionID}/history", handleHistory(deps.History))
		r.Get("/{sessionID}/presence", handlePresence(deps.Roster))
		r.Get("/{sessionID}/events", handleEvents(deps.Events))

		r.Group(func(r chi.Router) {
			r.Use(roomMiddleware(deps.Manager))
			r.Get("/{sessionID}", handleGetRoom())
			r.Patch("/{sessionID}/state", handlePatchState(deps.Manager))
			r.Post("/{sessionID}/buzzer/reset", handleResetBuzzer(deps.Manager))
			r.Post("/{sessionID}/messages", handleSendMessage())
		})
	})
}
