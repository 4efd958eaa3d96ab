package realtime

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleBuzzer_ExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	const n = 64
	for i := range n {
		m.Connect(ctx, &fakeTransport{}, player("s1", fmt.Sprintf("p%d", i)))
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		winners []string
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			<-start
			if m.HandleBuzzer(ctx, "s1", id, "name-"+id, time.Now()) {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)

	room, _ := m.Room("s1")
	winner, locked := room.BuzzerWinner()
	require.True(t, locked)
	assert.Equal(t, winners[0], winner["user_id"])
	assert.Equal(t, "name-"+winners[0], winner["display_name"])
}

func TestHandleBuzzer_BroadcastsWin(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	a := &fakeTransport{}
	b := &fakeTransport{}
	m.Connect(ctx, a, player("s1", "A"))
	m.Connect(ctx, b, player("s1", "B"))

	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	require.True(t, m.HandleBuzzer(ctx, "s1", "B", "name-B", at))

	for _, ft := range []*fakeTransport{a, b} {
		env := ft.last(t, KindBuzzer)
		assert.Equal(t, "B", env.SenderID)
		assert.Equal(t, "B", env.Payload["winner_id"])
		assert.Equal(t, "name-B", env.Payload["winner_name"])
		assert.Equal(t, "2026-05-04T10:30:00Z", env.Payload["timestamp"])
	}

	room, _ := m.Room("s1")
	state := room.GameState()
	assert.Equal(t, true, state[StateBuzzerLocked])
	assert.NotNil(t, state[StateBuzzerWinner])
}

func TestHandleBuzzer_ArrivalOrderNotTimestamp(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	m.Connect(ctx, &fakeTransport{}, player("s1", "A"))
	m.Connect(ctx, &fakeTransport{}, player("s1", "B"))

	now := time.Now()
	assert.True(t, m.HandleBuzzer(ctx, "s1", "A", "name-A", now))
	assert.False(t, m.HandleBuzzer(ctx, "s1", "B", "name-B", now.Add(-time.Hour)),
		"an earlier claimed timestamp must not steal the win")

	room, _ := m.Room("s1")
	winner, _ := room.BuzzerWinner()
	assert.Equal(t, "A", winner["user_id"])
}

func TestHandleBuzzer_MissingRoom(t *testing.T) {
	m := NewManager()
	assert.False(t, m.HandleBuzzer(context.Background(), "nope", "A", "A", time.Now()))
	_, ok := m.Room("nope")
	assert.False(t, ok)
}

func TestResetBuzzer_ReenablesRace(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	a := &fakeTransport{}
	m.Connect(ctx, a, player("s1", "A"))
	m.Connect(ctx, &fakeTransport{}, player("s1", "B"))

	require.True(t, m.HandleBuzzer(ctx, "s1", "A", "name-A", time.Now()))
	require.False(t, m.HandleBuzzer(ctx, "s1", "B", "name-B", time.Now()))

	m.ResetBuzzer(ctx, "s1")

	got := a.last(t, KindStateSync)
	assert.Equal(t, map[string]any{StateBuzzerLocked: false, StateBuzzerWinner: nil}, got.Payload)

	room, _ := m.Room("s1")
	_, locked := room.BuzzerWinner()
	assert.False(t, locked)
	state := room.GameState()
	assert.Equal(t, false, state[StateBuzzerLocked])
	assert.Nil(t, state[StateBuzzerWinner])

	assert.True(t, m.HandleBuzzer(ctx, "s1", "B", "name-B", time.Now()))
}

func TestResetBuzzer_MissingRoom(t *testing.T) {
	m := NewManager()
	assert.NotPanics(t, func() { m.ResetBuzzer(context.Background(), "nope") })
	_, ok := m.Room("nope")
	assert.False(t, ok)
}

func TestBuzzer_ObserverActivity(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	m := NewManager(WithObserver(obs))
	m.Connect(ctx, &fakeTransport{}, player("s1", "A"))

	m.HandleBuzzer(ctx, "s1", "A", "name-A", time.Now())
	m.HandleBuzzer(ctx, "s1", "A", "name-A", time.Now())
	m.ResetBuzzer(ctx, "s1")

	assert.Equal(t, []ActivityType{
		ActivityRoomOpened,
		ActivityJoined,
		ActivityBuzzerWon,
		ActivityBuzzerReset,
	}, obs.types())

	obs.mu.Lock()
	won := obs.seen[2]
	obs.mu.Unlock()
	assert.Equal(t, RolePlayer, won.Role)
}

func TestHandleBuzzer_RacingLastDisconnect(t *testing.T) {
	ctx := context.Background()

	for range 100 {
		obs := &recordingObserver{}
		m := NewManager(WithObserver(obs))
		m.Connect(ctx, &fakeTransport{}, player("s1", "a"))

		var (
			wg  sync.WaitGroup
			won bool
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			won = m.HandleBuzzer(ctx, "s1", "a", "name-a", time.Now())
		}()
		go func() {
			defer wg.Done()
			m.Disconnect(ctx, "a", "s1")
		}()
		wg.Wait()

		obs.mu.Lock()
		seen := append([]Activity(nil), obs.seen...)
		obs.mu.Unlock()
		checkActivityOrder(t, seen)
		assert.Equal(t, won, slices.Contains(obs.types(), ActivityBuzzerWon),
			"a reported win must be recorded while the room was live")
		_, ok := m.Room("s1")
		assert.False(t, ok)
	}
}

func TestBuzzer_ResetSupersedesLateWin(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	a := &fakeTransport{}
	m.Connect(ctx, a, player("s1", "A"))
	room, _ := m.Room("s1")

	winVersion, ok := room.claimBuzzer(map[string]any{"user_id": "A"})
	require.True(t, ok)
	m.ResetBuzzer(ctx, "s1")
	a.reset()

	// The win notice arrives after the reset's state_sync.
	room.broadcastState(ctx, NewEnvelope(KindBuzzer, map[string]any{"winner_id": "A"}), winVersion)

	assert.Empty(t, a.kinds(t))
	_, locked := room.BuzzerWinner()
	assert.False(t, locked)
}
