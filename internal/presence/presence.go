// Package presence mirrors room membership into redis so that other
// processes can see who is online in a session.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nyimbi/Games/internal/realtime"
)

// Participant is one online user as stored in redis.
type Participant struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Role        realtime.Role `json:"role"`
	JoinedAt    time.Time     `json:"joined_at"`
}

// Tracker records joins and leaves reported by the room manager. Each session
// is one redis hash keyed by user id; the hash expires after ttl without
// activity so a crashed process does not leave users online forever.
type Tracker struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewTracker(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{rdb: rdb, ttl: ttl, logger: logger}
}

func sessionKey(sessionID string) string { return "presence:session:" + sessionID }

// Observe implements realtime.Observer. Redis failures are logged and
// otherwise ignored.
func (t *Tracker) Observe(ctx context.Context, a realtime.Activity) {
	var err error
	switch a.Type {
	case realtime.ActivityJoined:
		err = t.online(ctx, a)
	case realtime.ActivityLeft:
		err = t.rdb.HDel(ctx, sessionKey(a.SessionID), a.UserID).Err()
	case realtime.ActivityRoomClosed:
		err = t.rdb.Del(ctx, sessionKey(a.SessionID)).Err()
	default:
		return
	}
	if err != nil {
		t.logger.Warn("presence update failed",
			"activity", a.Type,
			"session_id", a.SessionID,
			"user_id", a.UserID,
			"error", err,
		)
	}
}

func (t *Tracker) online(ctx context.Context, a realtime.Activity) error {
	data, err := json.Marshal(Participant{
		UserID:      a.UserID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		JoinedAt:    a.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding participant: %w", err)
	}

	key := sessionKey(a.SessionID)
	_, err = t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, a.UserID, data)
		pipe.Expire(ctx, key, t.ttl)
		return nil
	})
	return err
}

// Online lists the participants recorded for sessionID, ordered by user id.
func (t *Tracker) Online(ctx context.Context, sessionID string) ([]Participant, error) {
	entries, err := t.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading presence for %q: %w", sessionID, err)
	}

	out := make([]Participant, 0, len(entries))
	for userID, raw := range entries {
		var p Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			t.logger.Warn("skipping malformed presence entry", "session_id", sessionID, "user_id", userID, "error", err)
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Check pings redis; it satisfies health.Checker.
func (t *Tracker) Check(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}
