package server

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nyimbi/Games/internal/journal"
	"github.com/nyimbi/Games/internal/presence"
	"github.com/nyimbi/Games/internal/realtime"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type RoomsResponse struct {
	Rooms       int      `json:"rooms"`
	Connections int      `json:"connections"`
	Sessions    []string `json:"sessions"`
}

type RoomResponse struct {
	SessionID   string            `json:"session_id"`
	CreatedAt   time.Time         `json:"created_at"`
	PlayerCount int               `json:"player_count"`
	Members     []realtime.Member `json:"members"`
	GameState   map[string]any    `json:"game_state"`
}

type StateResponse struct {
	GameState map[string]any `json:"game_state"`
}

// MessageRequest pushes an envelope into a room. To is "all" (the default),
// "coach", "players" or "user:<id>".
type MessageRequest struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	To      string         `json:"to,omitempty"`
}

type MessageResponse struct {
	Delivered int `json:"delivered"`
}

func handleListRooms(m *realtime.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := m.Stats()
		sessions := m.Sessions()
		slices.Sort(sessions)

		writeJSON(w, http.StatusOK, RoomsResponse{
			Rooms:       stats.Rooms,
			Connections: stats.Connections,
			Sessions:    sessions,
		})
	}
}

func handleGetRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := roomFrom(r)

		members := room.Members()
		slices.SortFunc(members, func(a, b realtime.Member) int {
			return strings.Compare(a.UserID, b.UserID)
		})

		writeJSON(w, http.StatusOK, RoomResponse{
			SessionID:   room.SessionID,
			CreatedAt:   room.CreatedAt,
			PlayerCount: room.PlayerCount(),
			Members:     members,
			GameState:   room.GameState(),
		})
	}
}

func handlePatchState(m *realtime.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := roomFrom(r)

		broadcast := true
		if v := r.URL.Query().Get("broadcast"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "broadcast must be a boolean")
				return
			}
			broadcast = b
		}

		var patch map[string]any
		if err := readJSON(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if !m.UpdateGameState(context.WithoutCancel(r.Context()), room.SessionID, patch, broadcast) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}

		writeJSON(w, http.StatusOK, StateResponse{GameState: room.GameState()})
	}
}

func handleResetBuzzer(m *realtime.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.ResetBuzzer(context.WithoutCancel(r.Context()), roomFrom(r).SessionID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := roomFrom(r)

		var req MessageRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kind, err := realtime.ParseKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		// A cancelled write tears down the websocket, so the caller going
		// away must not cut a fan-out short.
		ctx := context.WithoutCancel(r.Context())
		env := realtime.NewEnvelope(kind, req.Payload)

		var delivered int
		switch to := strings.TrimSpace(req.To); {
		case to == "" || to == "all":
			delivered = room.Broadcast(ctx, env, "")
		case to == "players":
			delivered = room.SendToPlayers(ctx, env)
		case to == "coach":
			if room.SendToCoach(ctx, env) {
				delivered = 1
			}
		case strings.HasPrefix(to, "user:") && len(to) > len("user:"):
			if room.SendToUser(ctx, strings.TrimPrefix(to, "user:"), env) {
				delivered = 1
			}
		default:
			writeError(w, http.StatusBadRequest, "to must be all, coach, players or user:<id>")
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Delivered: delivered})
	}
}

func handleHistory(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			writeError(w, http.StatusServiceUnavailable, "history is not configured")
			return
		}

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		entries, err := h.Recent(r.Context(), chi.URLParam(r, "sessionID"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handlePresence(ro Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ro == nil {
			writeError(w, http.StatusServiceUnavailable, "presence is not configured")
			return
		}

		online, err := ro.Online(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if online == nil {
			online = []presence.Participant{}
		}
		writeJSON(w, http.StatusOK, online)
	}
}
