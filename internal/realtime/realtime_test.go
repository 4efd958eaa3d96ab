package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("broken pipe")

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	block  chan struct{}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) envelopes(t *testing.T) []Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, data := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		out = append(out, env)
	}
	return out
}

func (f *fakeTransport) kinds(t *testing.T) []Kind {
	t.Helper()
	var out []Kind
	for _, env := range f.envelopes(t) {
		out = append(out, env.Kind)
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// last returns the most recent envelope of kind k.
func (f *fakeTransport) last(t *testing.T, k Kind) Envelope {
	t.Helper()
	envs := f.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Kind == k {
			return envs[i]
		}
	}
	t.Fatalf("no %s envelope among %v", k, f.kinds(t))
	return Envelope{}
}

func player(session, user string) Identity {
	return Identity{UserID: user, DisplayName: "name-" + user, SessionID: session, Role: RolePlayer}
}

func coach(session, user string) Identity {
	return Identity{UserID: user, DisplayName: "coach-" + user, SessionID: session, Role: RoleCoach}
}
