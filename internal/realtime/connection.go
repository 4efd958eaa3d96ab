package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Role is a participant's role within a session.
type Role string

const (
	RoleCoach  Role = "coach"
	RolePlayer Role = "player"
)

// ParseRole accepts "coach" or "player".
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCoach, RolePlayer:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Transport is a participant's live full-duplex channel. Write must be safe
// for concurrent use; timeouts are the transport's business.
type Transport interface {
	Write(ctx context.Context, data []byte) error
}

// Identity is what the caller vouches for when attaching a transport.
type Identity struct {
	UserID      string
	DisplayName string
	SessionID   string
	Role        Role
}

// Connection is one participant's handle inside a Room.
type Connection struct {
	Identity
	ConnectedAt time.Time

	transport Transport

	// mu serializes state-bearing writes; stateVersion is the newest room
	// state version this connection has been sent.
	mu           sync.Mutex
	stateVersion uint64
}

func newConnection(t Transport, id Identity, now time.Time) *Connection {
	return &Connection{Identity: id, ConnectedAt: now, transport: t}
}

// Send encodes env and writes it to the transport. It never panics or
// returns an error: any failure is reported as false and is not retried.
func (c *Connection) Send(ctx context.Context, env Envelope) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return c.transport.Write(ctx, data) == nil
}

// sendState writes env unless the connection has already been sent a newer
// room state. A superseded envelope counts as delivered.
func (c *Connection) sendState(ctx context.Context, env Envelope, version uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version < c.stateVersion {
		return true
	}
	if !c.Send(ctx, env) {
		return false
	}
	c.stateVersion = version
	return true
}

// sendSnapshot builds env while holding the state lock, so no older state
// can reach the connection after it.
func (c *Connection) sendSnapshot(ctx context.Context, build func() (Envelope, uint64)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	env, version := build()
	if !c.Send(ctx, env) {
		return false
	}
	c.stateVersion = max(c.stateVersion, version)
	return true
}
