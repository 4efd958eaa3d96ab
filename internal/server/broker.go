package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nyimbi/Games/internal/realtime"
)

// ActivityEvent is the payload streamed to activity subscribers.
type ActivityEvent struct {
	Type        realtime.ActivityType `json:"type"`
	SessionID   string                `json:"session_id"`
	UserID      string                `json:"user_id,omitempty"`
	DisplayName string                `json:"display_name,omitempty"`
	Role        realtime.Role         `json:"role,omitempty"`
	At          string                `json:"at"`
}

// Broker fans room activity out to in-process subscribers, keyed by session
// id. It is registered with the manager as an observer.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded activity for the session.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Observe implements realtime.Observer.
func (b *Broker) Observe(_ context.Context, a realtime.Activity) {
	data, _ := json.Marshal(ActivityEvent{
		Type:        a.Type,
		SessionID:   a.SessionID,
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		At:          a.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})

	b.mu.RLock()
	for ch := range b.subs[a.SessionID] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}
