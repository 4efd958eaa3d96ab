package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the event carried by an Envelope.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindError        Kind = "error"

	KindSessionStart  Kind = "session_start"
	KindSessionEnd    Kind = "session_end"
	KindSessionPause  Kind = "session_pause"
	KindSessionResume Kind = "session_resume"
	KindPlayerJoined  Kind = "player_joined"
	KindPlayerLeft    Kind = "player_left"

	KindGameStart   Kind = "game_start"
	KindGameEnd     Kind = "game_end"
	KindRoundStart  Kind = "round_start"
	KindRoundEnd    Kind = "round_end"
	KindQuestion    Kind = "question"
	KindAnswer      Kind = "answer"
	KindBuzzer      Kind = "buzzer"
	KindScoreUpdate Kind = "score_update"
	KindTimerUpdate Kind = "timer_update"

	KindWritingUpdate Kind = "writing_update"
	KindTurnChange    Kind = "turn_change"

	KindSpeakerChange Kind = "speaker_change"
	KindArgument      Kind = "argument"

	KindStateSync Kind = "state_sync"
	KindChat      Kind = "chat"
	KindPing      Kind = "ping"
	KindPong      Kind = "pong"
)

var kinds = map[Kind]struct{}{
	KindConnected: {}, KindDisconnected: {}, KindError: {},
	KindSessionStart: {}, KindSessionEnd: {}, KindSessionPause: {}, KindSessionResume: {},
	KindPlayerJoined: {}, KindPlayerLeft: {},
	KindGameStart: {}, KindGameEnd: {}, KindRoundStart: {}, KindRoundEnd: {},
	KindQuestion: {}, KindAnswer: {}, KindBuzzer: {}, KindScoreUpdate: {}, KindTimerUpdate: {},
	KindWritingUpdate: {}, KindTurnChange: {},
	KindSpeakerChange: {}, KindArgument: {},
	KindStateSync: {}, KindChat: {}, KindPing: {}, KindPong: {},
}

// Valid reports whether k is one of the wire kinds.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// ParseKind converts s to a Kind, rejecting unknown values.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Envelope is the uniform wrapper for all realtime traffic.
type Envelope struct {
	Kind      Kind
	Payload   map[string]any
	SenderID  string
	Timestamp *time.Time
}

// NewEnvelope builds an envelope with no sender and an unset timestamp.
func NewEnvelope(kind Kind, payload map[string]any) Envelope {
	return Envelope{Kind: kind, Payload: payload}
}

// From returns a copy of e attributed to senderID.
func (e Envelope) From(senderID string) Envelope {
	e.SenderID = senderID
	return e
}

// At returns a copy of e stamped with t.
func (e Envelope) At(t time.Time) Envelope {
	e.Timestamp = &t
	return e
}

type wireEnvelope struct {
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload"`
	SenderID  *string        `json:"sender_id"`
	Timestamp *time.Time     `json:"timestamp"`
}

// MarshalJSON writes the wire record. An unset timestamp becomes the current
// UTC time and a nil payload becomes an empty object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	w := wireEnvelope{Kind: e.Kind, Payload: e.Payload, Timestamp: e.Timestamp}
	if w.Payload == nil {
		w.Payload = map[string]any{}
	}
	if e.SenderID != "" {
		id := e.SenderID
		w.SenderID = &id
	}
	if w.Timestamp == nil {
		now := time.Now().UTC()
		w.Timestamp = &now
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", w.Kind)
	}
	*e = Envelope{Kind: w.Kind, Payload: w.Payload, Timestamp: w.Timestamp}
	if w.SenderID != nil {
		e.SenderID = *w.SenderID
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return nil
}
