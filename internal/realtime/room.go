package realtime

import (
	"context"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Room is the live counterpart of one session: its attached connections and
// the shared game state. All mutation goes through its methods.
type Room struct {
	SessionID string
	CreatedAt time.Time

	mu          sync.RWMutex
	connections map[string]*Connection
	state       map[string]any
	version     uint64 // bumped on every state change
	closed      bool   // set once the room leaves the registry
}

func newRoom(sessionID string, now time.Time) *Room {
	return &Room{
		SessionID:   sessionID,
		CreatedAt:   now,
		connections: make(map[string]*Connection),
		state:       make(map[string]any),
	}
}

// AddConnection inserts c, replacing any connection with the same user id.
// Nothing is announced; that is the Manager's job.
func (r *Room) AddConnection(c *Connection) {
	r.mu.Lock()
	r.connections[c.UserID] = c
	r.mu.Unlock()
}

// RemoveConnection deletes and returns the connection for userID.
func (r *Room) RemoveConnection(userID string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.connections[userID]
	if ok {
		delete(r.connections, userID)
	}
	return c, ok
}

// removeIf deletes userID only while it still maps to c.
func (r *Room) removeIf(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connections[c.UserID] != c {
		return false
	}
	delete(r.connections, c.UserID)
	return true
}

func (r *Room) Connection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connections[userID]
	return c, ok
}

// Coach returns a coach connection, or nil if none is attached.
func (r *Room) Coach() *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.connections {
		if c.Role == RoleCoach {
			return c
		}
	}
	return nil
}

// Players returns the player connections in no particular order.
func (r *Room) Players() []*Connection {
	return r.recipients(func(c *Connection) bool { return c.Role == RolePlayer })
}

func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.connections {
		if c.Role == RolePlayer {
			n++
		}
	}
	return n
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

func (r *Room) IsEmpty() bool { return r.Len() == 0 }

// GameState returns a shallow copy of the current state.
func (r *Room) GameState() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.state)
}

// Member describes an attached connection for introspection.
type Member struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
}

func (r *Room) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.connections))
	for _, c := range r.connections {
		out = append(out, Member{
			UserID:      c.UserID,
			DisplayName: c.DisplayName,
			Role:        c.Role,
			ConnectedAt: c.ConnectedAt,
		})
	}
	return out
}

// snapshot returns a copy of the state with the version it was taken at.
func (r *Room) snapshot() (map[string]any, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.state), r.version
}

// merge applies patch to the state and returns the full result and its
// version. A closed room refuses the patch.
func (r *Room) merge(patch map[string]any) (map[string]any, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, 0, false
	}
	maps.Copy(r.state, patch)
	r.version++
	return maps.Clone(r.state), r.version, true
}

// close marks the room as reaped. Later state changes through a stale
// *Room are refused.
func (r *Room) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Broadcast delivers env to every connection except excludeUserID and
// returns how many sends succeeded. Failed sends are swallowed.
func (r *Room) Broadcast(ctx context.Context, env Envelope, excludeUserID string) int {
	return fanOut(ctx, r.recipients(func(c *Connection) bool {
		return c.UserID != excludeUserID
	}), env, (*Connection).Send)
}

// broadcastState is Broadcast for envelopes that carry game state at
// version. A connection that has already been sent a newer state skips it.
func (r *Room) broadcastState(ctx context.Context, env Envelope, version uint64) int {
	return fanOut(ctx, r.recipients(func(*Connection) bool { return true }), env,
		func(c *Connection, ctx context.Context, env Envelope) bool {
			return c.sendState(ctx, env, version)
		})
}

func (r *Room) SendToUser(ctx context.Context, userID string, env Envelope) bool {
	c, ok := r.Connection(userID)
	if !ok {
		return false
	}
	return c.Send(ctx, env)
}

func (r *Room) SendToCoach(ctx context.Context, env Envelope) bool {
	c := r.Coach()
	if c == nil {
		return false
	}
	return c.Send(ctx, env)
}

// SendToPlayers has the same fan-out semantics as Broadcast.
func (r *Room) SendToPlayers(ctx context.Context, env Envelope) int {
	return fanOut(ctx, r.Players(), env, (*Connection).Send)
}

func (r *Room) recipients(keep func(*Connection) bool) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.connections))
	for _, c := range r.connections {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// fanOut sends env to every connection concurrently and waits for all of
// them. A slow or broken recipient never holds up its siblings.
func fanOut(ctx context.Context, conns []*Connection, env Envelope, send func(*Connection, context.Context, Envelope) bool) int {
	if len(conns) == 0 {
		return 0
	}
	if env.Timestamp == nil {
		env = env.At(time.Now().UTC())
	}

	results := make([]bool, len(conns))
	var g errgroup.Group
	for i, c := range conns {
		g.Go(func() error {
			results[i] = send(c, ctx, env)
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}
