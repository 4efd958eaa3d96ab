package realtime

import (
	"context"
	"time"
)

// Game state keys owned by the buzzer arbiter. They are always written
// together.
const (
	StateBuzzerLocked = "buzzer_locked"
	StateBuzzerWinner = "buzzer_winner"
)

// claimBuzzer locks the buzzer for winner unless it is already locked or
// the room is closed, and returns the new state version. The check and the
// set happen under one critical section.
func (r *Room) claimBuzzer(winner map[string]any) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, false
	}
	if locked, _ := r.state[StateBuzzerLocked].(bool); locked {
		return 0, false
	}
	r.state[StateBuzzerLocked] = true
	r.state[StateBuzzerWinner] = winner
	r.version++
	return r.version, true
}

func (r *Room) releaseBuzzer() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, false
	}
	r.state[StateBuzzerLocked] = false
	r.state[StateBuzzerWinner] = nil
	r.version++
	return r.version, true
}

// BuzzerWinner returns the recorded winner, if the buzzer is locked.
func (r *Room) BuzzerWinner() (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if locked, _ := r.state[StateBuzzerLocked].(bool); !locked {
		return nil, false
	}
	w, _ := r.state[StateBuzzerWinner].(map[string]any)
	return w, true
}

// HandleBuzzer records a buzzer press and reports whether it won the race.
// The first press to reach the room wins; ts is carried for display only and
// plays no part in ordering. A win is broadcast to the whole room.
func (m *Manager) HandleBuzzer(ctx context.Context, sessionID, userID, displayName string, ts time.Time) bool {
	stamp := ts.UTC().Format(time.RFC3339Nano)

	m.mu.Lock()
	room, ok := m.rooms[sessionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	version, won := room.claimBuzzer(map[string]any{
		"user_id":      userID,
		"display_name": displayName,
		"timestamp":    stamp,
	})
	if !won {
		m.mu.Unlock()
		return false
	}
	a := Activity{
		Type:        ActivityBuzzerWon,
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		At:          m.now(),
	}
	if c, ok := room.Connection(userID); ok {
		a.Role = c.Role
	}
	m.enqueue(a)
	m.mu.Unlock()

	m.logger.Info("buzzer won", "session_id", sessionID, "user_id", userID)
	m.flush(ctx)

	room.broadcastState(ctx, NewEnvelope(KindBuzzer, map[string]any{
		"winner_id":   userID,
		"winner_name": displayName,
		"timestamp":   stamp,
	}).From(userID), version)
	return true
}

// ResetBuzzer unlocks the buzzer for the next round and tells the room.
// Does nothing if the session has no room.
func (m *Manager) ResetBuzzer(ctx context.Context, sessionID string) {
	m.mu.Lock()
	room, ok := m.rooms[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	version, ok := room.releaseBuzzer()
	if !ok {
		m.mu.Unlock()
		return
	}
	m.enqueue(Activity{Type: ActivityBuzzerReset, SessionID: sessionID, At: m.now()})
	m.mu.Unlock()

	m.flush(ctx)

	room.broadcastState(ctx, NewEnvelope(KindStateSync, map[string]any{
		StateBuzzerLocked: false,
		StateBuzzerWinner: nil,
	}), version)
}
