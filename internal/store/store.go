package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("store: duplicate entry")
)

// Default timer lengths in seconds (25 minutes of work, 5 minutes of break).
const (
	DefaultWorkLength  = 1500
	DefaultBreakLength = 300
)

// User represents an anonymous, device-bound identity.
type User struct {
	ID        int64
	Token     string
	CreatedAt time.Time
}

// Room represents a study room.
type Room struct {
	ID           int64
	OwnerID      int64
	Name         string
	PasswordHash *string // nil means the room has no password
	Capacity     int
	CreatedAt    time.Time
}

// HasPassword reports whether joining the room requires a password.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != nil
}

// RoomWithOccupancy is a room together with its current membership count.
type RoomWithOccupancy struct {
	Room
	UsersConnected int
}

// TimerState is whether the room timer is counting.
type TimerState string

const (
	TimerStopped TimerState = "stopped"
	TimerRunning TimerState = "running"
)

// TimerMode is the phase of the pomodoro cycle.
type TimerMode string

const (
	ModeWork  TimerMode = "work"
	ModeBreak TimerMode = "break"
)

// Opposite returns the mode the timer rolls over into.
func (m TimerMode) Opposite() TimerMode {
	if m == ModeBreak {
		return ModeWork
	}
	return ModeBreak
}

// Timer is the persisted timer row of a room.
type Timer struct {
	RoomID         int64
	State          TimerState
	Mode           TimerMode
	ElapsedSeconds int
	WorkLength     int
	BreakLength    int
}

// NewTimer returns the zeroed timer every room starts with.
func NewTimer(roomID int64) Timer {
	return Timer{
		RoomID:      roomID,
		State:       TimerStopped,
		Mode:        ModeWork,
		WorkLength:  DefaultWorkLength,
		BreakLength: DefaultBreakLength,
	}
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser inserts a user bound to the given token.
	CreateUser(ctx context.Context, token string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByToken retrieves a user by its opaque token.
	GetUserByToken(ctx context.Context, token string) (*User, error)
}

// RoomStore handles room persistence.
type RoomStore interface {
	// CreateRoom inserts the room and its zeroed timer atomically.
	CreateRoom(ctx context.Context, ownerID int64, name string, passwordHash *string, capacity int) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRooms lists every room with its membership count.
	ListRooms(ctx context.Context) ([]*RoomWithOccupancy, error)

	// CountMembers returns the number of membership rows for a room.
	CountMembers(ctx context.Context, roomID int64) (int, error)

	// DeleteRoom removes timer, membership and room rows in that order.
	DeleteRoom(ctx context.Context, id int64) error
}

// MembershipStore handles the room_members relation.
type MembershipStore interface {
	// AddMember records that a user occupies a room. Returns ErrDuplicate
	// when the pair already exists.
	AddMember(ctx context.Context, userID, roomID int64) error

	// RemoveMember deletes the membership row, if any.
	RemoveMember(ctx context.Context, userID, roomID int64) error

	// RemoveRoomMembers deletes every membership row of a room.
	RemoveRoomMembers(ctx context.Context, roomID int64) error

	// ClearMembers drops every membership row. Used at startup since no
	// connection survives a restart.
	ClearMembers(ctx context.Context) error
}

// TimerStore handles room timer persistence.
type TimerStore interface {
	// GetTimer retrieves the timer of a room.
	GetTimer(ctx context.Context, roomID int64) (*Timer, error)

	// SaveTimer overwrites the timer row of a room.
	SaveTimer(ctx context.Context, t *Timer) error

	// StopAllTimers marks every running timer as stopped.
	StopAllTimers(ctx context.Context) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MembershipStore
	TimerStore

	// Close closes the underlying database connection.
	Close() error
}
