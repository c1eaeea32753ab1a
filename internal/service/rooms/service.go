package rooms

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/studyroom-server/internal/auth"
	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/store"
)

// Capacity bounds for a room.
const (
	MinCapacity = 1
	MaxCapacity = 16
)

// Coordinator is the part of the live session layer the registry drives.
type Coordinator interface {
	CloseRoom(ctx context.Context, roomID int64, remove func(ctx context.Context) error) error
	TimerSnapshot(ctx context.Context, roomID int64) (core.TimerSnapshot, error)
	TimerCommand(ctx context.Context, roomID, userID int64, cmd core.TimerCommand) error
}

// Room is the public view of a room. The password hash never leaves the
// registry.
type Room struct {
	ID             int64
	OwnerID        int64
	Name           string
	HasPassword    bool
	Capacity       int
	UsersConnected int
}

// Service provides room management business logic.
type Service struct {
	store store.RoomStore
	hub   Coordinator
	log   *zerolog.Logger
}

// New creates a new room service.
func New(st store.RoomStore, hub Coordinator, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, hub: hub, log: logger}
}

// Create validates and persists a room owned by ownerID. An empty password
// creates an open room.
func (s *Service) Create(ctx context.Context, ownerID int64, name, password string, capacity int) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, core.ErrInvalidRoomName
	}
	if capacity < MinCapacity || capacity > MaxCapacity {
		return 0, core.ErrInvalidCapacity
	}

	var hash *string
	if password != "" {
		h, err := auth.HashPassword(password)
		if err != nil {
			return 0, core.Internal("hash password", err)
		}
		hash = &h
	}

	room, err := s.store.CreateRoom(ctx, ownerID, name, hash, capacity)
	if err != nil {
		return 0, core.Internal("create room", err)
	}

	s.log.Info().Int64("room_id", room.ID).Int64("owner_id", ownerID).Int("capacity", capacity).Msg("room created")
	return room.ID, nil
}

// Get returns the room with its current occupancy.
func (s *Service) Get(ctx context.Context, id int64) (*Room, error) {
	room, err := s.store.GetRoomByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr("get room", err)
	}
	count, err := s.store.CountMembers(ctx, id)
	if err != nil {
		return nil, core.Internal("count members", err)
	}
	view := toView(room, count)
	return &view, nil
}

// List returns every room ordered by id.
func (s *Service) List(ctx context.Context) ([]Room, error) {
	rows, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, core.Internal("list rooms", err)
	}
	out := make([]Room, 0, len(rows))
	for _, row := range rows {
		out = append(out, toView(&row.Room, row.UsersConnected))
	}
	return out, nil
}

// Delete removes a room on behalf of its owner. Live connections are closed
// before any row is removed.
func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	room, err := s.store.GetRoomByID(ctx, id)
	if err != nil {
		return mapStoreErr("get room", err)
	}
	if room.OwnerID != requesterID {
		return core.ErrForbidden
	}

	return s.hub.CloseRoom(ctx, id, func(ctx context.Context) error {
		return mapStoreErr("delete room", s.store.DeleteRoom(ctx, id))
	})
}

// Timer returns the current timer of a room.
func (s *Service) Timer(ctx context.Context, id int64) (core.TimerSnapshot, error) {
	return s.hub.TimerSnapshot(ctx, id)
}

// TimerCommand forwards an owner command to the room timer.
func (s *Service) TimerCommand(ctx context.Context, id, requesterID int64, cmd core.TimerCommand) error {
	if cmd.Kind == core.TimerLength && cmd.Length <= 0 {
		return core.ErrInvalidLength
	}
	return s.hub.TimerCommand(ctx, id, requesterID, cmd)
}

func toView(room *store.Room, usersConnected int) Room {
	return Room{
		ID:             room.ID,
		OwnerID:        room.OwnerID,
		Name:           room.Name,
		HasPassword:    room.HasPassword(),
		Capacity:       room.Capacity,
		UsersConnected: usersConnected,
	}
}

func mapStoreErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return core.ErrRoomNotFound
	default:
		return core.Internal(op, err)
	}
}
