package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/studyroom-server/internal/store"
)

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 4, "")

	ac := env.connect(t, 0)
	bc := env.connect(t, 0)

	env.joinOK(t, ac, room, alice, "")

	require.Equal(t, JoinOK, env.join(t, bc, room, bob, ""))
	snap := mustEvent(t, bc.Events, EventTimerSnapshot)
	require.NotNil(t, snap.Timer)
	assert.Equal(t, store.TimerStopped, snap.Timer.State)
	assert.Equal(t, store.ModeWork, snap.Timer.Mode)
	assert.Equal(t, store.DefaultWorkLength, snap.Timer.WorkLength)

	joined := mustEvent(t, ac.Events, EventPresence)
	assert.Equal(t, PresenceJoined, joined.Presence)
	assert.Equal(t, bob.ID, joined.UserID)

	ac.Commands <- &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: alice.Token, Text: "hi"}
	msg := mustEvent(t, bc.Events, EventChat)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, alice.ID, msg.UserID)

	env.hub.UnregisterClient(ac)
	left := mustEvent(t, bc.Events, EventPresence)
	assert.Equal(t, PresenceLeft, left.Presence)
	assert.Equal(t, alice.ID, left.UserID)

	assert.Equal(t, []int64{bob.ID}, env.members(t, room.ID))
	assert.Equal(t, 1, env.memberRows(t, room.ID))
}

func TestJoinCapacityOne(t *testing.T) {
	env := newTestEnv(t)
	owner, other := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, owner, 1, "")

	oc := env.connect(t, 0)
	env.joinOK(t, oc, room, owner, "")

	bc := env.connect(t, 0)
	assert.Equal(t, JoinRoomFull, env.join(t, bc, room, other, ""))

	env.hub.UnregisterClient(oc)
	assert.Zero(t, env.memberRows(t, room.ID))

	// The rejected connection stays unbound and may retry.
	env.joinOK(t, bc, room, other, "")
	assert.Equal(t, []int64{other.ID}, env.members(t, room.ID))
	assert.Equal(t, 1, env.memberRows(t, room.ID))
}

func TestJoinPassword(t *testing.T) {
	env := newTestEnv(t)
	owner, guest := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, owner, 4, "abc")

	// The owner needs no password.
	env.joinOK(t, env.connect(t, 0), room, owner, "")

	gc := env.connect(t, 0)
	assert.Equal(t, JoinWrongPassword, env.join(t, gc, room, guest, "xyz"))
	assert.Equal(t, JoinOK, env.join(t, gc, room, guest, "abc"))
}

func TestJoinUnknownRoomAndToken(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 2, "")
	c := env.connect(t, 0)

	assert.Equal(t, JoinRoomNotFound, env.join(t, c, &store.Room{ID: room.ID + 100}, owner, ""))
	assert.Equal(t, JoinUnauthorized, env.join(t, c, room, &store.User{Token: "nope"}, ""))

	// A room that does not exist wins over a bad token.
	assert.Equal(t, JoinRoomNotFound, env.join(t, c, &store.Room{ID: room.ID + 100}, &store.User{Token: "nope"}, ""))
}

func TestJoinDuplicateUser(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	other := env.newUser(t)
	room := env.newRoom(t, owner, 4, "")

	first := env.connect(t, 0)
	env.joinOK(t, first, room, owner, "")

	assert.Equal(t, JoinAlreadyJoined, env.join(t, env.connect(t, 0), room, owner, ""))
	// A bound connection cannot join again, even as another user.
	assert.Equal(t, JoinAlreadyJoined, env.join(t, first, room, other, ""))

	ids := env.members(t, room.ID)
	assert.Equal(t, []int64{owner.ID}, ids)
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 3, "")

	const n = 10
	users := make([]*store.User, n)
	clients := make([]*Client, n)
	for i := range users {
		users[i] = env.newUser(t)
		clients[i] = env.connect(t, 0)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[JoinStatus]int{}
	)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := env.hub.Join(context.Background(), clients[i], room.ID, users[i].Token, "")
			mu.Lock()
			statuses[JoinStatusOf(err)]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, statuses[JoinOK])
	assert.Equal(t, n-3, statuses[JoinRoomFull])

	ids := env.members(t, room.ID)
	assert.Len(t, ids, 3)

	count, err := env.store.CountMembers(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChatEchoesInOrder(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac, bc := env.connect(t, 0), env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")
	env.joinOK(t, bc, room, bob, "")
	mustEvent(t, ac.Events, EventPresence)

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		ac.Commands <- &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: alice.Token, Text: text}
	}

	for _, c := range []*Client{ac, bc} {
		for _, text := range texts {
			ev := nextEvent(t, c.Events)
			require.Equal(t, EventChat, ev.Kind)
			assert.Equal(t, text, ev.Text)
			assert.Equal(t, alice.ID, ev.UserID)
		}
	}
}

func TestChatRejected(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac := env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")

	cases := []struct {
		name string
		cmd  *Command
	}{
		{"blank text", &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: alice.Token, Text: "   "}},
		{"unknown token", &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: "nope", Text: "hi"}},
		{"other user's token", &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: bob.Token, Text: "hi"}},
		{"wrong room", &Command{Kind: CommandSendRoomMessage, RoomID: room.ID + 1, Token: alice.Token, Text: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ac.Commands <- tc.cmd
			ev := nextEvent(t, ac.Events)
			assert.Equal(t, EventMessageRejected, ev.Kind)
		})
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac, bc := env.connect(t, 0), env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")
	env.joinOK(t, bc, room, bob, "")

	env.hub.UnregisterClient(bc)
	env.hub.UnregisterClient(bc)

	left := mustEvent(t, ac.Events, EventPresence)
	require.Equal(t, PresenceJoined, left.Presence)
	left = mustEvent(t, ac.Events, EventPresence)
	require.Equal(t, PresenceLeft, left.Presence)
	expectNoEvent(t, ac.Events, 100*time.Millisecond)

	// The seat is free again.
	env.joinOK(t, env.connect(t, 0), room, bob, "")
}

func TestSlowConsumerIsEvicted(t *testing.T) {
	env := newTestEnv(t)
	alice, slow := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac := env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")

	// Room for the join result and snapshot only; never drained.
	sc := env.connect(t, 2)
	require.NoError(t, env.hub.Join(context.Background(), sc, room.ID, slow.Token, ""))
	mustEvent(t, ac.Events, EventPresence)

	ac.Commands <- &Command{Kind: CommandSendRoomMessage, RoomID: room.ID, Token: alice.Token, Text: "hello"}
	mustEvent(t, ac.Events, EventChat)

	left := mustEvent(t, ac.Events, EventPresence)
	assert.Equal(t, PresenceLeft, left.Presence)
	assert.Equal(t, slow.ID, left.UserID)
	assert.True(t, sc.Closed())

	ids := env.members(t, room.ID)
	assert.Equal(t, []int64{alice.ID}, ids)
}

func TestDeleteRoomClosesConnections(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac, bc := env.connect(t, 0), env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")
	env.joinOK(t, bc, room, bob, "")
	mustEvent(t, ac.Events, EventPresence)

	ctx := context.Background()
	err := env.hub.CloseRoom(ctx, room.ID, func(ctx context.Context) error {
		return env.store.DeleteRoom(ctx, room.ID)
	})
	require.NoError(t, err)

	for _, c := range []*Client{ac, bc} {
		ev := nextEvent(t, c.Events)
		assert.Equal(t, EventRoomDeleted, ev.Kind)
		expectClosed(t, c.Events)
	}

	_, err = env.store.GetRoomByID(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, JoinRoomNotFound, env.join(t, env.connect(t, 0), room, bob, ""))
	assert.ErrorIs(t, env.hub.CloseRoom(ctx, room.ID, func(context.Context) error { return nil }), ErrRoomNotFound)
}

func TestDeleteRoomFailureKeepsRoomJoinable(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 2, "")

	err := env.hub.CloseRoom(context.Background(), room.ID, func(context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	env.joinOK(t, env.connect(t, 0), room, owner, "")
}

func TestDeleteRoomFailureClearsMembership(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := env.newUser(t), env.newUser(t)
	room := env.newRoom(t, alice, 2, "")

	ac, bc := env.connect(t, 0), env.connect(t, 0)
	env.joinOK(t, ac, room, alice, "")
	env.joinOK(t, bc, room, bob, "")
	require.Equal(t, 2, env.memberRows(t, room.ID))

	err := env.hub.CloseRoom(context.Background(), room.ID, func(context.Context) error {
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	expectClosed(t, ac.Events)
	expectClosed(t, bc.Events)
	env.hub.UnregisterClient(ac)
	env.hub.UnregisterClient(bc)

	assert.Empty(t, env.members(t, room.ID))
	assert.Zero(t, env.memberRows(t, room.ID))

	got, err := env.store.GetRoomByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
}

func TestDeleteRoomNoticeReachesFullBuffer(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 2, "")

	// Join result and snapshot fill the buffer; nothing drains it.
	c := env.connect(t, 2)
	require.NoError(t, env.hub.Join(context.Background(), c, room.ID, owner.Token, ""))

	err := env.hub.CloseRoom(context.Background(), room.ID, func(ctx context.Context) error {
		return env.store.DeleteRoom(ctx, room.ID)
	})
	require.NoError(t, err)

	var last *Event
	for ev := range c.Events {
		last = ev
	}
	require.NotNil(t, last)
	assert.Equal(t, EventRoomDeleted, last.Kind)
}

func TestDeleteRoomOutlivesCancelledCaller(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 2, "")

	c := env.connect(t, 0)
	env.joinOK(t, c, room, owner, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.hub.CloseRoom(ctx, room.ID, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return env.store.DeleteRoom(ctx, room.ID)
	})
	require.NoError(t, err)

	assert.Equal(t, EventRoomDeleted, nextEvent(t, c.Events).Kind)
	expectClosed(t, c.Events)

	_, err = env.store.GetRoomByID(context.Background(), room.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, JoinRoomNotFound, env.join(t, env.connect(t, 0), room, owner, ""))
}

func TestShutdownClosesClients(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t)
	room := env.newRoom(t, owner, 2, "")

	c := env.connect(t, 0)
	env.joinOK(t, c, room, owner, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	expectClosed(t, c.Events)
}
