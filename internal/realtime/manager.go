// Package realtime holds the in-process room manager: it tracks which
// participants are attached to which session, fans game events out to them
// and arbitrates buzzer races.
//
// Activities are queued while the registry lock is held and handed to
// observers one at a time in that order, so an observer never sees a room
// close after the join that reopened it.
//
// Fan-out writes to each recipient concurrently, so two unrelated envelopes
// may reach one connection in either order. Envelopes that carry game state
// (state_sync, buzzer) are tagged with the room's state version and a
// connection drops any that is older than the last state it was sent.
package realtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Manager is the process-wide registry of rooms keyed by session id.
// Construct one at startup and share it.
type Manager struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	pending []Activity // guarded by mu

	deliverMu sync.Mutex // held while observers run

	logger    *slog.Logger
	observers []Observer
	now       func() time.Time
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithObserver registers o for lifecycle activity. May be given repeatedly.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observers = append(m.observers, o) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:  make(map[string]*Room),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect attaches t to the room for id.SessionID, creating the room if
// needed. Others in the room are told about the join, then the newcomer gets
// a connected envelope with the room's current state.
func (m *Manager) Connect(ctx context.Context, t Transport, id Identity) *Connection {
	now := m.now()
	conn := newConnection(t, id, now)

	m.mu.Lock()
	room, existed := m.rooms[id.SessionID]
	if !existed {
		room = newRoom(id.SessionID, now)
		m.rooms[id.SessionID] = room
	}
	room.AddConnection(conn)
	if !existed {
		m.enqueue(Activity{Type: ActivityRoomOpened, SessionID: id.SessionID, At: now})
	}
	m.enqueue(activityFor(ActivityJoined, id, now))
	m.mu.Unlock()

	if !existed {
		m.logger.Info("room opened", "session_id", id.SessionID)
	}
	m.logger.Info("participant connected",
		"session_id", id.SessionID,
		"user_id", id.UserID,
		"role", id.Role,
		"connections", room.Len(),
	)
	m.flush(ctx)

	room.Broadcast(ctx, NewEnvelope(KindPlayerJoined, map[string]any{
		"user_id":      id.UserID,
		"display_name": id.DisplayName,
		"role":         id.Role,
		"player_count": room.PlayerCount(),
	}).From(id.UserID), id.UserID)

	if !conn.sendSnapshot(ctx, func() (Envelope, uint64) {
		state, version := room.snapshot()
		return NewEnvelope(KindConnected, map[string]any{
			"session_id":   id.SessionID,
			"player_count": room.PlayerCount(),
			"game_state":   state,
		}), version
	}) {
		m.logger.Warn("initial sync failed", "session_id", id.SessionID, "user_id", id.UserID)
	}

	return conn
}

// Disconnect removes whichever connection userID has in sessionID. Unknown
// sessions or users are ignored.
func (m *Manager) Disconnect(ctx context.Context, userID, sessionID string) {
	m.detach(ctx, sessionID, func(r *Room) (*Connection, bool) {
		return r.RemoveConnection(userID)
	})
}

// DisconnectConn removes c only if it is still the registered connection for
// its user, so the close of a replaced transport leaves its successor alone.
func (m *Manager) DisconnectConn(ctx context.Context, c *Connection) {
	m.detach(ctx, c.SessionID, func(r *Room) (*Connection, bool) {
		return c, r.removeIf(c)
	})
}

func (m *Manager) detach(ctx context.Context, sessionID string, remove func(*Room) (*Connection, bool)) {
	m.mu.Lock()
	room, ok := m.rooms[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	now := m.now()
	conn, removed := remove(room)
	if removed {
		m.enqueue(activityFor(ActivityLeft, conn.Identity, now))
	}
	closed := room.IsEmpty()
	if closed {
		delete(m.rooms, sessionID)
		room.close()
		m.enqueue(Activity{Type: ActivityRoomClosed, SessionID: sessionID, At: now})
	}
	m.mu.Unlock()

	if removed {
		m.logger.Info("participant disconnected",
			"session_id", sessionID,
			"user_id", conn.UserID,
			"connections", room.Len(),
		)
	}
	if closed {
		m.logger.Info("room removed", "session_id", sessionID)
	}
	m.flush(ctx)

	if removed && !closed {
		room.Broadcast(ctx, NewEnvelope(KindPlayerLeft, map[string]any{
			"user_id":      conn.UserID,
			"display_name": conn.DisplayName,
			"role":         conn.Role,
			"player_count": room.PlayerCount(),
		}).From(conn.UserID), "")
	}
}

// Room looks up the live room for sessionID.
func (m *Manager) Room(sessionID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[sessionID]
	return r, ok
}

// UpdateGameState shallow-merges patch into the room's state and, when
// broadcast is set, sends the whole resulting state to everyone. Buzzer keys
// are owned by the arbiter and are dropped from patch. Reports whether the
// room exists.
func (m *Manager) UpdateGameState(ctx context.Context, sessionID string, patch map[string]any, broadcast bool) bool {
	clean := make(map[string]any, len(patch))
	var dropped []string
	for k, v := range patch {
		if k == StateBuzzerLocked || k == StateBuzzerWinner {
			dropped = append(dropped, k)
			continue
		}
		clean[k] = v
	}

	// The read lock keeps the room registered until the merge lands.
	m.mu.RLock()
	room, ok := m.rooms[sessionID]
	var (
		state   map[string]any
		version uint64
	)
	if ok {
		state, version, ok = room.merge(clean)
	}
	m.mu.RUnlock()
	if !ok {
		return false
	}

	if len(dropped) > 0 {
		slices.Sort(dropped)
		m.logger.Debug("ignoring buzzer keys in state patch", "session_id", sessionID, "keys", dropped)
	}
	if broadcast {
		room.broadcastState(ctx, NewEnvelope(KindStateSync, state), version)
	}
	return true
}

// Stats counts live rooms and the connections attached to them.
type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Rooms: len(m.rooms)}
	for _, r := range m.rooms {
		s.Connections += r.Len()
	}
	return s
}

// Sessions lists the session ids that currently have a room.
func (m *Manager) Sessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	return ids
}

// enqueue records a for delivery. m.mu must be held for writing.
func (m *Manager) enqueue(a Activity) {
	if len(m.observers) > 0 {
		m.pending = append(m.pending, a)
	}
}

// flush hands every queued activity to the observers in enqueue order. It
// returns once the queue is empty, so the caller's own activities have been
// delivered.
func (m *Manager) flush(ctx context.Context) {
	if len(m.observers) == 0 {
		return
	}
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, a := range batch {
			for _, o := range m.observers {
				o.Observe(ctx, a)
			}
		}
	}
}

func activityFor(t ActivityType, id Identity, at time.Time) Activity {
	return Activity{
		Type:        t,
		SessionID:   id.SessionID,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Role:        id.Role,
		At:          at,
	}
}
