package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/nyimbi/Games/internal/handler/health"
	"github.com/nyimbi/Games/internal/journal"
	"github.com/nyimbi/Games/internal/presence"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type sessionPath struct {
	SessionID string `path:"sessionID"`
}

type patchStateRequest struct {
	sessionPath
	Broadcast *bool `query:"broadcast" description:"Push the merged state to the room as state_sync. Defaults to true."`
}

type messageRequest struct {
	sessionPath
	MessageRequest
}

type historyRequest struct {
	sessionPath
	Limit int `query:"limit" minimum:"1" maximum:"500" default:"50"`
}

type wsRequest struct {
	sessionPath
	UserID      string `query:"user_id" description:"Used when the X-User-ID header is absent."`
	DisplayName string `query:"display_name"`
	Role        string `query:"role" enum:"coach,player"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Games realtime API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Live session rooms for coach-led games: websocket transport and room control.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the status of backend dependencies and live room counts.")
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(health.Response{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// GET /ws/sessions/{sessionID}
	getWS, _ := r.NewOperationContext(http.MethodGet, "/ws/sessions/{sessionID}")
	getWS.SetSummary("Join a session room")
	getWS.SetDescription("Upgrades to a websocket attached to the session's room. " +
		"Identity comes from X-User-ID, X-Display-Name and X-Role, or the matching query parameters.")
	getWS.AddReqStructure(wsRequest{})
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusBadRequest),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

	// GET /api/rooms
	listRooms, _ := r.NewOperationContext(http.MethodGet, "/api/rooms")
	listRooms.SetSummary("List rooms")
	listRooms.SetDescription("Returns live room and connection counts and the open session ids.")
	listRooms.AddRespStructure(RoomsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listRooms)

	// GET /api/rooms/{sessionID}
	getRoom, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{sessionID}")
	getRoom.SetSummary("Get room")
	getRoom.SetDescription("Returns the room's members and game state.")
	getRoom.AddReqStructure(sessionPath{})
	getRoom.AddRespStructure(RoomResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRoom)

	// PATCH /api/rooms/{sessionID}/state
	patchState, _ := r.NewOperationContext(http.MethodPatch, "/api/rooms/{sessionID}/state")
	patchState.SetSummary("Update game state")
	patchState.SetDescription("Shallow-merges the body into the game state. Buzzer keys are ignored; use the buzzer reset endpoint.")
	patchState.AddReqStructure(patchStateRequest{})
	patchState.AddRespStructure(StateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	patchState.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	patchState.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(patchState)

	// POST /api/rooms/{sessionID}/buzzer/reset
	resetBuzzer, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{sessionID}/buzzer/reset")
	resetBuzzer.SetSummary("Reset buzzer")
	resetBuzzer.SetDescription("Unlocks the buzzer and tells the room with state_sync.")
	resetBuzzer.AddReqStructure(sessionPath{})
	resetBuzzer.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	resetBuzzer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(resetBuzzer)

	// POST /api/rooms/{sessionID}/messages
	postMessage, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{sessionID}/messages")
	postMessage.SetSummary("Send message")
	postMessage.SetDescription("Delivers an envelope to the room, the coach, the players or one user.")
	postMessage.AddReqStructure(messageRequest{})
	postMessage.AddRespStructure(MessageResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postMessage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postMessage.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postMessage)

	// GET /api/rooms/{sessionID}/history
	getHistory, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{sessionID}/history")
	getHistory.SetSummary("Room history")
	getHistory.SetDescription("Returns recorded joins, leaves and buzzer events, newest first.")
	getHistory.AddReqStructure(historyRequest{})
	getHistory.AddRespStructure([]journal.Entry{}, openapi.WithHTTPStatus(http.StatusOK))
	getHistory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	getHistory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHistory)

	// GET /api/rooms/{sessionID}/presence
	getPresence, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{sessionID}/presence")
	getPresence.SetSummary("Online participants")
	getPresence.SetDescription("Returns who is online in the session according to the shared presence store.")
	getPresence.AddReqStructure(sessionPath{})
	getPresence.AddRespStructure([]presence.Participant{}, openapi.WithHTTPStatus(http.StatusOK))
	getPresence.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getPresence)

	// GET /api/rooms/{sessionID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{sessionID}/events")
	getEvents.SetSummary("Activity stream")
	getEvents.SetDescription("Server-Sent Events stream of joins, leaves and buzzer activity for the session.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	getEvents.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
