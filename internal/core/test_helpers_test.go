package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/store"
	"github.com/vovakirdan/studyroom-server/internal/store/sqlite"
)

type testEnv struct {
	hub   *Hub
	store *sqlite.SQLiteStore
	auth  *auth.Service
	clock *clockwork.FakeClock
}

var clientSeq atomic.Int64

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	identity := auth.NewService(st)
	hub := NewHub(st, identity, nil)
	clock := clockwork.NewFakeClock()
	hub.clock = clock
	t.Cleanup(hub.Shutdown)

	return &testEnv{hub: hub, store: st, auth: identity, clock: clock}
}

func (e *testEnv) newUser(t *testing.T) *store.User {
	t.Helper()
	user, err := e.auth.CreateUser(context.Background())
	require.NoError(t, err)
	return user
}

func (e *testEnv) newRoom(t *testing.T, owner *store.User, capacity int, password string) *store.Room {
	t.Helper()

	var hash *string
	if password != "" {
		h, err := auth.HashPassword(password)
		require.NoError(t, err)
		hash = &h
	}
	room, err := e.store.CreateRoom(context.Background(), owner.ID, "study", hash, capacity)
	require.NoError(t, err)
	return room
}

// connect registers a fresh client with the hub.
func (e *testEnv) connect(t *testing.T, buffer int) *Client {
	t.Helper()
	c := NewClient(fmt.Sprintf("c%d", clientSeq.Add(1)), buffer)
	e.hub.RegisterClient(c)
	t.Cleanup(func() { e.hub.UnregisterClient(c) })
	return c
}

// join sends a join command and returns the join outcome.
func (e *testEnv) join(t *testing.T, c *Client, room *store.Room, user *store.User, password string) JoinStatus {
	t.Helper()
	c.Commands <- &Command{Kind: CommandJoinRoom, RoomID: room.ID, Token: user.Token, Password: password}
	return mustEvent(t, c.Events, EventJoinResult).Status
}

// joinOK joins and drains the join result and timer snapshot.
func (e *testEnv) joinOK(t *testing.T, c *Client, room *store.Room, user *store.User, password string) {
	t.Helper()
	require.Equal(t, JoinOK, e.join(t, c, room, user, password))
	mustEvent(t, c.Events, EventTimerSnapshot)
}

// members returns the user ids of the live connections in roomID, in join
// order.
func (e *testEnv) members(t *testing.T, roomID int64) []int64 {
	t.Helper()

	r := e.hub.lookup(roomID)
	if r == nil {
		return nil
	}
	var ids []int64
	err := r.call(context.Background(), func(r *Room) error {
		for _, c := range r.clients {
			userID, _, _ := c.Binding()
			ids = append(ids, userID)
		}
		return nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	require.NoError(t, err)
	return ids
}

// memberRows counts the persisted membership rows of roomID.
func (e *testEnv) memberRows(t *testing.T, roomID int64) int {
	t.Helper()
	count, err := e.store.CountMembers(context.Background(), roomID)
	require.NoError(t, err)
	return count
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for event kind %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// nextEvent returns the next event without skipping any.
func nextEvent(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("no event received")
		return nil
	}
}

func expectNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(wait):
	}
}

func expectClosed(t *testing.T, ch <-chan *Event) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("events channel was not closed")
		}
	}
}
