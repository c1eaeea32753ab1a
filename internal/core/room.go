package core

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vovakirdan/studyroom-server/internal/store"
)

const (
	roomQueueSize = 256
	storeTimeout  = 5 * time.Second
	tickInterval  = time.Second
)

type roomOp func(r *Room)

// Room is the live session of one persisted room. A single goroutine owns
// all of its state and applies operations in the order they were queued,
// so membership changes, chat and timer events are totally ordered.
type Room struct {
	ID int64

	hub  *Hub
	ops  chan roomOp
	done chan struct{}

	// Owned by the run goroutine.
	info    *store.Room
	timer   Timer
	clients []*Client
	members map[int64]*Client
	closed  bool
	loadErr error

	driverGen    uint64
	driverStop   chan struct{}
	driverTicker clockwork.Ticker
}

func newRoom(h *Hub, id int64) *Room {
	return &Room{
		ID:      id,
		hub:     h,
		ops:     make(chan roomOp, roomQueueSize),
		done:    make(chan struct{}),
		members: make(map[int64]*Client),
	}
}

func (r *Room) run(ctx context.Context) {
	defer close(r.done)
	defer r.hub.forget(r)

	if err := r.load(ctx); err != nil {
		r.loadErr = err
		return
	}

	for {
		select {
		case op := <-r.ops:
			op(r)
			if r.closed {
				return
			}
		case <-ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *Room) load(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	info, err := r.hub.store.GetRoomByID(sctx, r.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return Internal("load room", err)
	}
	r.info = info

	rec, err := r.hub.store.GetTimer(sctx, r.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		def := store.NewTimer(r.ID)
		rec = &def
	case err != nil:
		return Internal("load timer", err)
	}
	r.timer = TimerFromStore(rec)

	// No tick source survives a restart, so a running row is stale.
	if r.timer.Running() {
		r.timer.State = store.TimerStopped
		r.persistTimer(ctx)
	}
	return nil
}

// post queues op for the session goroutine. It reports false once the
// session has ended.
func (r *Room) post(op roomOp) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.ops <- op:
		return true
	case <-r.done:
		return false
	}
}

// call runs fn on the session goroutine and waits for its result.
func (r *Room) call(ctx context.Context, fn func(r *Room) error) error {
	reply := make(chan error, 1)
	op := func(r *Room) { reply <- fn(r) }

	select {
	case r.ops <- op:
	case <-r.done:
		return r.endedErr()
	case <-ctx.Done():
		return Internal("room", ctx.Err())
	}

	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return r.endedErr()
		}
	case <-ctx.Done():
		return Internal("room", ctx.Err())
	}
}

func (r *Room) endedErr() error {
	if r.loadErr != nil {
		return r.loadErr
	}
	return ErrRoomNotFound
}

func (r *Room) join(ctx context.Context, c *Client, user *store.User, password string) error {
	if c.Closed() {
		return errClientGone
	}
	if len(r.members) >= r.info.Capacity {
		return ErrRoomFull
	}
	if _, ok := r.members[user.ID]; ok {
		return ErrAlreadyJoined
	}
	if r.info.HasPassword() && user.ID != r.info.OwnerID && !r.hub.passwordMatches(*r.info.PasswordHash, password) {
		return ErrWrongPassword
	}
	if !c.bind(user.ID, r.ID) {
		return ErrAlreadyJoined
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := r.hub.store.AddMember(sctx, user.ID, r.ID); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			c.unbind()
			return Internal("add member", err)
		}
		r.hub.log.Warn().Int64("room_id", r.ID).Int64("user_id", user.ID).Msg("stale membership row reused")
	}

	r.addClient(c, user.ID)

	snap := r.timer.Snapshot(r.ID)
	r.deliver(c, &Event{Kind: EventJoinResult, RoomID: r.ID, UserID: user.ID, Status: JoinOK})
	r.deliver(c, &Event{Kind: EventTimerSnapshot, RoomID: r.ID, Timer: &snap})
	r.broadcastExcept(c, &Event{Kind: EventPresence, RoomID: r.ID, UserID: user.ID, Presence: PresenceJoined})

	r.hub.log.Info().Int64("room_id", r.ID).Int64("user_id", user.ID).Str("client_id", c.ID).Msg("joined room")
	return nil
}

func (r *Room) leave(ctx context.Context, c *Client) {
	userID, ok := r.removeClient(c)
	if !ok {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := r.hub.store.RemoveMember(sctx, userID, r.ID); err != nil {
		r.hub.log.Error().Err(err).Int64("room_id", r.ID).Int64("user_id", userID).Msg("remove member")
	}

	r.Broadcast(&Event{Kind: EventPresence, RoomID: r.ID, UserID: userID, Presence: PresenceLeft})
	r.hub.log.Info().Int64("room_id", r.ID).Int64("user_id", userID).Str("client_id", c.ID).Msg("left room")
}

func (r *Room) sendMessage(c *Client, userID int64, text string) error {
	if member, ok := r.members[userID]; !ok || member != c {
		return ErrNotInRoom
	}
	r.Broadcast(&Event{Kind: EventChat, RoomID: r.ID, UserID: userID, Text: text})
	return nil
}

func (r *Room) timerCommand(ctx context.Context, userID int64, cmd TimerCommand) error {
	if userID != r.info.OwnerID {
		return ErrForbidden
	}

	var (
		events []*Event
		err    error
	)
	switch cmd.Kind {
	case TimerStart:
		if events, err = r.timer.Start(); err == nil {
			r.startDriver()
		}
	case TimerStop:
		if events, err = r.timer.Stop(); err == nil {
			r.stopDriver()
		}
	case TimerBreak:
		if events, err = r.timer.EnterMode(store.ModeBreak); err == nil {
			r.stopDriver()
		}
	case TimerWork:
		if events, err = r.timer.EnterMode(store.ModeWork); err == nil {
			r.stopDriver()
		}
	case TimerLength:
		if events, err = r.timer.SetLength(cmd.Length); err == nil {
			r.stopDriver()
		}
	default:
		return ErrBadRequest
	}
	if err != nil {
		return err
	}

	r.persistTimer(ctx)
	r.broadcastTimer(events)
	return nil
}

func (r *Room) tick(ctx context.Context, gen uint64) {
	if r.driverStop == nil || gen != r.driverGen {
		return
	}

	events, rolled := r.timer.Tick()
	if rolled {
		// Fresh period: start counting from a new tick source.
		r.startDriver()
	}
	r.persistTimer(ctx)
	r.broadcastTimer(events)
}

// startDriver replaces the tick source with a new one. At most one driver
// is active per room; ticks from older generations are ignored.
func (r *Room) startDriver() {
	r.stopDriver()

	r.driverGen++
	gen := r.driverGen
	stop := make(chan struct{})
	r.driverStop = stop

	r.driverTicker = r.hub.clock.NewTicker(tickInterval)
	go r.drive(gen, r.driverTicker, stop)
}

func (r *Room) stopDriver() {
	if r.driverStop == nil {
		return
	}
	r.driverTicker.Stop()
	close(r.driverStop)
	r.driverStop = nil
	r.driverTicker = nil
}

func (r *Room) drive(gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-ticker.Chan():
			if !r.post(func(r *Room) { r.tick(r.hub.ctx, gen) }) {
				return
			}
		case <-stop:
			return
		case <-r.done:
			return
		}
	}
}

func (r *Room) persistTimer(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := r.hub.store.SaveTimer(sctx, r.timer.Record(r.ID)); err != nil {
		r.hub.log.Error().Err(err).Int64("room_id", r.ID).Msg("save timer")
	}
}

// closeForDeletion ends the session: every connection receives a final
// roomDeleted event and is closed.
func (r *Room) closeForDeletion() {
	r.end(&Event{Kind: EventRoomDeleted, RoomID: r.ID})
}

func (r *Room) shutdown() {
	r.end(nil)
}

func (r *Room) end(last *Event) {
	r.stopDriver()
	for _, c := range r.clients {
		if last != nil {
			c.sendFinal(last)
		}
		c.close()
	}

	// Closed clients find no session to leave, so their rows go here.
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := r.hub.store.RemoveRoomMembers(ctx, r.ID); err != nil {
		r.hub.log.Error().Err(err).Int64("room_id", r.ID).Msg("remove room members")
	}

	r.clients = nil
	r.members = make(map[int64]*Client)
	r.closed = true
}

func (r *Room) addClient(c *Client, userID int64) {
	r.clients = append(r.clients, c)
	r.members[userID] = c
}

func (r *Room) removeClient(c *Client) (int64, bool) {
	for i, member := range r.clients {
		if member != c {
			continue
		}
		r.clients = append(r.clients[:i], r.clients[i+1:]...)
		userID, _, _ := c.Binding()
		if r.members[userID] == c {
			delete(r.members, userID)
		}
		return userID, true
	}
	return 0, false
}

// Broadcast sends an event to every live connection in the room.
func (r *Room) Broadcast(ev *Event) {
	r.broadcastExcept(nil, ev)
}

func (r *Room) broadcastExcept(except *Client, ev *Event) {
	for _, c := range r.clients {
		if c == except {
			continue
		}
		r.deliver(c, ev)
	}
}

func (r *Room) broadcastTimer(events []*Event) {
	for _, ev := range events {
		ev.RoomID = r.ID
		r.Broadcast(ev)
	}
}

// deliver sends ev to c. A connection that cannot keep up is closed and
// removed from the room by a later operation.
func (r *Room) deliver(c *Client, ev *Event) {
	if c.Send(ev) {
		return
	}
	if !c.close() {
		return
	}
	r.hub.log.Warn().Int64("room_id", r.ID).Str("client_id", c.ID).Msg("evicting slow client")
	go r.post(func(r *Room) { r.leave(r.hub.ctx, c) })
}

// Len returns the number of live connections. Session goroutine only.
func (r *Room) Len() int {
	return len(r.clients)
}
