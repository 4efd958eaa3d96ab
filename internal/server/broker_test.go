package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nyimbi/Games/internal/realtime"
)

func TestBrokerDeliversPerSession(t *testing.T) {
	b := NewBroker()
	mine := b.Subscribe("s1")
	other := b.Subscribe("s2")
	defer b.Unsubscribe("s2", other)

	b.Observe(context.Background(), realtime.Activity{
		Type: realtime.ActivityJoined, SessionID: "s1", UserID: "u1", Role: realtime.RolePlayer, At: time.Now(),
	})

	select {
	case data := <-mine:
		var ev ActivityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Type != realtime.ActivityJoined || ev.UserID != "u1" {
			t.Errorf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event for s1 subscriber")
	}

	select {
	case data := <-other:
		t.Fatalf("s2 subscriber got %s", data)
	default:
	}

	b.Unsubscribe("s1", mine)
	b.mu.RLock()
	_, ok := b.subs["s1"]
	b.mu.RUnlock()
	if ok {
		t.Error("empty subscriber set was not removed")
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s1")
	defer b.Unsubscribe("s1", ch)

	for range cap(ch) + 5 {
		b.Observe(context.Background(), realtime.Activity{Type: realtime.ActivityBuzzerReset, SessionID: "s1"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("buffered = %d, want %d", len(ch), cap(ch))
	}
}

func TestHandleEventsStreamsActivity(t *testing.T) {
	broker := NewBroker()
	deps := Deps{
		Manager: realtime.NewManager(realtime.WithLogger(discardLogger()), realtime.WithObserver(broker)),
		Events:  broker,
	}
	srv := httptest.NewServer(newRouter(discardLogger(), deps))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/rooms/s1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content-type = %q", got)
	}

	// Headers are flushed after subscribing, so activity from here on is seen.
	join(deps.Manager, "s1", "p1", realtime.RolePlayer)

	sc := bufio.NewScanner(resp.Body)
	var types []string
	for sc.Scan() && len(types) < 2 {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ActivityEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		types = append(types, string(ev.Type))
	}

	want := []string{string(realtime.ActivityRoomOpened), string(realtime.ActivityJoined)}
	if len(types) != 2 || types[0] != want[0] || types[1] != want[1] {
		t.Errorf("types = %v, want %v", types, want)
	}
}
