// Package ws attaches websocket clients to realtime rooms and turns their
// inbound envelopes into room operations.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/nyimbi/Games/internal/realtime"
)

const maxDecodeErrors = 5

type Options struct {
	WriteTimeout time.Duration
	ReadLimit    int64
	// OriginPatterns restricts cross-origin upgrades. Empty allows any origin.
	OriginPatterns []string
}

type Handler struct {
	manager *realtime.Manager
	logger  *slog.Logger
	opts    Options
}

func NewHandler(manager *realtime.Manager, logger *slog.Logger, opts Options) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 64 << 10
	}
	return &Handler{manager: manager, logger: logger, opts: opts}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sessions/{sessionID}", h.serve)
	return r
}

// transport writes envelopes as text frames, bounding each write.
type transport struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (t transport) Write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, data)
}

var errMissingUser = errors.New("user id is required")

// identityFromRequest reads the caller-supplied identity. Headers win over
// query parameters; browsers cannot set headers on an upgrade request.
func identityFromRequest(r *http.Request) (realtime.Identity, error) {
	pick := func(header, query string) string {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			return v
		}
		return strings.TrimSpace(r.URL.Query().Get(query))
	}

	id := realtime.Identity{
		UserID:      pick("X-User-ID", "user_id"),
		DisplayName: pick("X-Display-Name", "display_name"),
		SessionID:   chi.URLParam(r, "sessionID"),
	}
	if id.UserID == "" {
		return id, errMissingUser
	}
	if id.DisplayName == "" {
		id.DisplayName = id.UserID
	}

	role := pick("X-Role", "role")
	if role == "" {
		role = string(realtime.RolePlayer)
	}
	var err error
	if id.Role, err = realtime.ParseRole(role); err != nil {
		return id, err
	}
	return id, nil
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.OriginPatterns,
		InsecureSkipVerify: len(h.opts.OriginPatterns) == 0,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.opts.ReadLimit)

	logger := h.logger.With(
		"conn_id", uuid.NewString(),
		"session_id", id.SessionID,
		"user_id", id.UserID,
	)

	// Room traffic outlives any one request; sends are bounded by the
	// transport's write timeout instead.
	ctx := context.WithoutCancel(r.Context())

	c := h.manager.Connect(ctx, transport{conn: conn, timeout: h.opts.WriteTimeout}, id)
	defer h.manager.DisconnectConn(ctx, c)

	decodeErrors := 0
	for {
		typ, data, err := conn.Read(r.Context())
		if err != nil {
			logger.Debug("websocket read ended", "error", err)
			return
		}
		if typ != websocket.MessageText {
			c.Send(ctx, errorEnvelope("invalid_message", "binary frames are not supported"))
			continue
		}

		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			decodeErrors++
			logger.Debug("invalid envelope", "error", err)
			c.Send(ctx, errorEnvelope("invalid_message", err.Error()))
			if decodeErrors >= maxDecodeErrors {
				conn.Close(websocket.StatusPolicyViolation, "too many invalid messages")
				return
			}
			continue
		}
		decodeErrors = 0

		h.dispatch(ctx, c, env)
	}
}
