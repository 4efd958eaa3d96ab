// Package journal keeps a durable log of room activity: who joined and left
// which session, and who won each buzzer race.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyimbi/Games/internal/realtime"
)

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded activity.
type Entry struct {
	ID          string                `json:"id"`
	SessionID   string                `json:"session_id"`
	Activity    realtime.ActivityType `json:"activity"`
	UserID      string                `json:"user_id,omitempty"`
	DisplayName string                `json:"display_name,omitempty"`
	Role        realtime.Role         `json:"role,omitempty"`
	OccurredAt  time.Time             `json:"occurred_at"`
}

type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Journal {
	return &Journal{db: db, logger: logger}
}

// Observe implements realtime.Observer. A failed write is logged; a room
// never stalls on its journal.
func (j *Journal) Observe(ctx context.Context, a realtime.Activity) {
	if err := j.Record(ctx, a); err != nil {
		j.logger.Warn("journal write failed",
			"activity", a.Type,
			"session_id", a.SessionID,
			"error", err,
		)
	}
}

func (j *Journal) Record(ctx context.Context, a realtime.Activity) error {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO room_activity (id, session_id, activity, user_id, display_name, role, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), a.SessionID, string(a.Type), a.UserID, a.DisplayName, string(a.Role), at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("recording %s for session %q: %w", a.Type, a.SessionID, err)
	}
	return nil
}

// Recent returns up to limit entries for sessionID, newest first.
func (j *Journal) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, activity, user_id, display_name, role, occurred_at
		FROM room_activity
		WHERE session_id = ?
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			activity string
			role     string
			at       string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &activity, &e.UserID, &e.DisplayName, &role, &at); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.Activity = realtime.ActivityType(activity)
		e.Role = realtime.Role(role)
		if e.OccurredAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parsing occurred_at %q: %w", at, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
