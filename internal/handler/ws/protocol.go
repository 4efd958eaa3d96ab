package ws

import (
	"context"
	"time"

	"github.com/nyimbi/Games/internal/realtime"
)

// Kinds only a coach may send; they are relayed to the whole room.
var coachControl = map[realtime.Kind]bool{
	realtime.KindSessionStart:  true,
	realtime.KindSessionEnd:    true,
	realtime.KindSessionPause:  true,
	realtime.KindSessionResume: true,
	realtime.KindGameStart:     true,
	realtime.KindGameEnd:       true,
	realtime.KindRoundStart:    true,
	realtime.KindRoundEnd:      true,
	realtime.KindQuestion:      true,
	realtime.KindScoreUpdate:   true,
	realtime.KindTimerUpdate:   true,
	realtime.KindTurnChange:    true,
	realtime.KindSpeakerChange: true,
}

// Kinds a participant sends to the coach rather than the room.
var toCoach = map[realtime.Kind]bool{
	realtime.KindAnswer:        true,
	realtime.KindWritingUpdate: true,
	realtime.KindArgument:      true,
}

func errorEnvelope(code, message string) realtime.Envelope {
	return realtime.NewEnvelope(realtime.KindError, map[string]any{
		"code":    code,
		"message": message,
	})
}

func (h *Handler) dispatch(ctx context.Context, c *realtime.Connection, env realtime.Envelope) {
	room, ok := h.manager.Room(c.SessionID)
	if !ok {
		return
	}
	relay := realtime.NewEnvelope(env.Kind, env.Payload).From(c.UserID)

	switch {
	case env.Kind == realtime.KindPing:
		c.Send(ctx, realtime.NewEnvelope(realtime.KindPong, env.Payload))

	case env.Kind == realtime.KindBuzzer:
		if c.Role != realtime.RolePlayer {
			c.Send(ctx, errorEnvelope("forbidden", "only players can buzz"))
			return
		}
		ts := time.Now()
		if env.Timestamp != nil {
			ts = *env.Timestamp
		}
		if !h.manager.HandleBuzzer(ctx, c.SessionID, c.UserID, c.DisplayName, ts) {
			c.Send(ctx, errorEnvelope("buzzer_locked", "someone else buzzed first"))
		}

	case env.Kind == realtime.KindChat:
		room.Broadcast(ctx, relay, "")

	case toCoach[env.Kind]:
		if !room.SendToCoach(ctx, relay) {
			c.Send(ctx, errorEnvelope("no_coach", "no coach is connected"))
		}

	case env.Kind == realtime.KindStateSync:
		if c.Role != realtime.RoleCoach {
			c.Send(ctx, errorEnvelope("forbidden", "only the coach can change game state"))
			return
		}
		h.manager.UpdateGameState(ctx, c.SessionID, env.Payload, true)

	case coachControl[env.Kind]:
		if c.Role != realtime.RoleCoach {
			c.Send(ctx, errorEnvelope("forbidden", string(env.Kind)+" is reserved for the coach"))
			return
		}
		if env.Kind == realtime.KindRoundStart || env.Kind == realtime.KindQuestion {
			h.manager.ResetBuzzer(ctx, c.SessionID)
		}
		room.Broadcast(ctx, relay, "")

	default:
		c.Send(ctx, errorEnvelope("unsupported", string(env.Kind)+" cannot be sent by clients"))
	}
}
