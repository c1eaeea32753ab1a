package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/store"
)

const commandTimeout = 10 * time.Second

// errClientGone means the connection was closed while its command was queued.
var errClientGone = errors.New("client closed")

// Identity resolves opaque tokens to users.
type Identity interface {
	Resolve(ctx context.Context, token string) (*store.User, error)
}

// Hub coordinates live room sessions and the connections bound to them.
type Hub struct {
	store    store.Store
	identity Identity
	clock    clockwork.Clock
	log      *zerolog.Logger

	passwordMatches func(hash, password string) bool

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	rooms      map[int64]*Room
	tombstones map[int64]struct{}
	clients    map[*Client]*clientLoop
}

type clientLoop struct {
	stop chan struct{}
	done chan struct{}
}

// NewHub creates a hub backed by st. A nil logger disables logging.
func NewHub(st store.Store, identity Identity, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:           st,
		identity:        identity,
		clock:           clockwork.NewRealClock(),
		log:             logger,
		passwordMatches: auth.PasswordMatches,
		ctx:             ctx,
		cancel:          cancel,
		rooms:           make(map[int64]*Room),
		tombstones:      make(map[int64]struct{}),
		clients:         make(map[*Client]*clientLoop),
	}
}

// Run blocks until ctx is cancelled and then stops every room session.
func (h *Hub) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-h.ctx.Done():
	}
	h.Shutdown()
}

// Shutdown stops all sessions and closes every connection.
func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		<-r.done
	}
}

// RegisterClient starts processing commands sent on c.Commands.
func (h *Hub) RegisterClient(c *Client) {
	loop := &clientLoop{stop: make(chan struct{}), done: make(chan struct{})}

	h.mu.Lock()
	if _, exists := h.clients[c]; exists {
		h.mu.Unlock()
		return
	}
	h.clients[c] = loop
	h.mu.Unlock()

	go h.serveClient(c, loop)
}

// UnregisterClient stops command processing for c and removes it from its
// room. It is safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	loop := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if loop != nil {
		close(loop.stop)
		<-loop.done
	}

	ctx, cancel := context.WithTimeout(h.ctx, commandTimeout)
	defer cancel()
	h.Leave(ctx, c)
}

func (h *Hub) serveClient(c *Client, loop *clientLoop) {
	defer close(loop.done)
	for {
		select {
		case cmd := <-c.Commands:
			if cmd != nil {
				h.handleCommand(c, cmd)
			}
		case <-loop.stop:
			return
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	ctx, cancel := context.WithTimeout(h.ctx, commandTimeout)
	defer cancel()

	switch cmd.Kind {
	case CommandJoinRoom:
		_ = h.Join(ctx, c, cmd.RoomID, cmd.Token, cmd.Password)
	case CommandSendRoomMessage:
		if err := h.SendMessage(ctx, c, cmd.RoomID, cmd.Token, cmd.Text); err != nil {
			h.log.Debug().Err(err).Str("client_id", c.ID).Int64("room_id", cmd.RoomID).Msg("message rejected")
			c.Send(&Event{Kind: EventMessageRejected, RoomID: cmd.RoomID, Error: asCore(err)})
		}
	default:
		c.Send(errorEvent(cmd.RoomID, ErrBadRequest))
	}
}

// Join binds c to roomID as the user owning token. The outcome is always
// delivered to c as an EventJoinResult; on success it is followed by a
// timer snapshot and the other members see a presence event.
func (h *Hub) Join(ctx context.Context, c *Client, roomID int64, token, password string) error {
	err := h.join(ctx, c, roomID, token, password)
	if errors.Is(err, errClientGone) {
		return err
	}
	if err != nil {
		if KindOf(err) == KindInternal {
			h.log.Error().Err(err).Int64("room_id", roomID).Str("client_id", c.ID).Msg("join failed")
		}
		c.Send(&Event{Kind: EventJoinResult, RoomID: roomID, Status: JoinStatusOf(err), Error: asCore(err)})
	}
	return err
}

func (h *Hub) join(ctx context.Context, c *Client, roomID int64, token, password string) error {
	if _, _, bound := c.Binding(); bound {
		return ErrAlreadyJoined
	}
	if _, err := h.store.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return Internal("get room", err)
	}
	user, err := h.resolve(ctx, token)
	if err != nil {
		return err
	}

	r, err := h.session(roomID)
	if err != nil {
		return err
	}
	return r.call(ctx, func(r *Room) error {
		return r.join(h.ctx, c, user, password)
	})
}

// SendMessage broadcasts text to the room c is bound to, sender included.
func (h *Hub) SendMessage(ctx context.Context, c *Client, roomID int64, token, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	user, err := h.resolve(ctx, token)
	if err != nil {
		return err
	}
	r := h.lookup(roomID)
	if r == nil {
		return ErrNotInRoom
	}
	return r.call(ctx, func(r *Room) error {
		return r.sendMessage(c, user.ID, text)
	})
}

// Leave removes c from its room. Unknown or unbound clients are ignored.
func (h *Hub) Leave(ctx context.Context, c *Client) {
	_, roomID, bound := c.Binding()
	if !bound {
		return
	}
	r := h.lookup(roomID)
	if r == nil {
		return
	}
	_ = r.call(ctx, func(r *Room) error {
		r.leave(h.ctx, c)
		return nil
	})
}

// TimerCommand applies an owner command to the room timer.
func (h *Hub) TimerCommand(ctx context.Context, roomID, userID int64, cmd TimerCommand) error {
	r, err := h.session(roomID)
	if err != nil {
		return err
	}
	return r.call(ctx, func(r *Room) error {
		return r.timerCommand(h.ctx, userID, cmd)
	})
}

// TimerSnapshot returns the current timer of roomID.
func (h *Hub) TimerSnapshot(ctx context.Context, roomID int64) (TimerSnapshot, error) {
	r, err := h.session(roomID)
	if err != nil {
		return TimerSnapshot{}, err
	}
	var snap TimerSnapshot
	err = r.call(ctx, func(r *Room) error {
		snap = r.timer.Snapshot(r.ID)
		return nil
	})
	return snap, err
}

// CloseRoom closes the live session of roomID, sending roomDeleted to every
// connection, and then runs remove to drop the persisted room. No join can
// succeed for roomID once CloseRoom starts. If remove fails the room
// becomes joinable again.
func (h *Hub) CloseRoom(ctx context.Context, roomID int64, remove func(ctx context.Context) error) error {
	h.mu.Lock()
	if _, gone := h.tombstones[roomID]; gone {
		h.mu.Unlock()
		return ErrRoomNotFound
	}
	h.tombstones[roomID] = struct{}{}
	r := h.rooms[roomID]
	h.mu.Unlock()

	// Once tombstoned, closing and removing run to completion even if the
	// caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commandTimeout)
	defer cancel()

	if r != nil {
		_ = r.call(ctx, func(r *Room) error {
			r.closeForDeletion()
			return nil
		})
		select {
		case <-r.done:
		case <-ctx.Done():
		}
	}

	if err := remove(ctx); err != nil {
		h.mu.Lock()
		delete(h.tombstones, roomID)
		h.mu.Unlock()
		return err
	}

	h.log.Info().Int64("room_id", roomID).Msg("room deleted")
	return nil
}

func (h *Hub) resolve(ctx context.Context, token string) (*store.User, error) {
	user, err := h.identity.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownToken) {
			return nil, ErrUnauthorized
		}
		return nil, Internal("resolve token", err)
	}
	return user, nil
}

// session returns the live session for roomID, starting one if needed.
func (h *Hub) session(roomID int64) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, gone := h.tombstones[roomID]; gone {
		return nil, ErrRoomNotFound
	}
	if r, ok := h.rooms[roomID]; ok {
		return r, nil
	}
	if h.ctx.Err() != nil {
		return nil, Internal("start room", h.ctx.Err())
	}

	r := newRoom(h, roomID)
	h.rooms[roomID] = r
	go r.run(h.ctx)
	return r, nil
}

func (h *Hub) lookup(roomID int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[roomID]
}

func (h *Hub) forget(r *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[r.ID] == r {
		delete(h.rooms, r.ID)
	}
}

func asCore(err error) *CoreError {
	if ce, ok := AsCoreError(err); ok {
		return ce
	}
	return Internal("request", err)
}
