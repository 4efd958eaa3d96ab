package realtime

import (
	"context"
	"time"
)

// ActivityType names a lifecycle change in the room registry.
type ActivityType string

const (
	ActivityRoomOpened  ActivityType = "room_opened"
	ActivityRoomClosed  ActivityType = "room_closed"
	ActivityJoined      ActivityType = "joined"
	ActivityLeft        ActivityType = "left"
	ActivityBuzzerWon   ActivityType = "buzzer_won"
	ActivityBuzzerReset ActivityType = "buzzer_reset"
)

// Activity is reported to observers after the registry lock is released,
// one at a time and in the order the registry changed. User fields are empty
// for room-level activity.
type Activity struct {
	Type        ActivityType
	SessionID   string
	UserID      string
	DisplayName string
	Role        Role
	At          time.Time
}

// Observer is told about room lifecycle changes. Implementations must not
// block for long and must not call back into the Manager synchronously.
type Observer interface {
	Observe(ctx context.Context, a Activity)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, a Activity)

func (f ObserverFunc) Observe(ctx context.Context, a Activity) { f(ctx, a) }
