package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/studyroom-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the embedded schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// ==== UserStore implementation ====

// CreateUser inserts a user bound to the given token.
func (s *SQLiteStore) CreateUser(ctx context.Context, token string) (*store.User, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (token) VALUES (?)`, token)
	if err != nil {
		if isConstraintErr(err) {
			return nil, fmt.Errorf("insert user: %w", store.ErrDuplicate)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, `SELECT id, token, created_at FROM users WHERE id = ?`, id)
}

// GetUserByToken retrieves a user by its opaque token.
func (s *SQLiteStore) GetUserByToken(ctx context.Context, token string) (*store.User, error) {
	return s.getUser(ctx, `SELECT id, token, created_at FROM users WHERE token = ?`, token)
}

func (s *SQLiteStore) getUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Token, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// ==== RoomStore implementation ====

// CreateRoom inserts the room and its zeroed timer in one transaction.
func (s *SQLiteStore) CreateRoom(ctx context.Context, ownerID int64, name string, passwordHash *string, capacity int) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rooms (owner_id, name, password_hash, capacity)
		VALUES (?, ?, ?, ?)
	`, ownerID, name, passwordHash, capacity)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	timer := store.NewTimer(roomID)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_timers (room_id, state, mode, elapsed, work_length, break_length)
		VALUES (?, ?, ?, ?, ?, ?)
	`, timer.RoomID, string(timer.State), string(timer.Mode), timer.ElapsedSeconds, timer.WorkLength, timer.BreakLength); err != nil {
		return nil, fmt.Errorf("insert timer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, owner_id, name, password_hash, capacity, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	var passwordHash sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.OwnerID,
		&room.Name,
		&passwordHash,
		&room.Capacity,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	if passwordHash.Valid {
		room.PasswordHash = &passwordHash.String
	}

	return &room, nil
}

// ListRooms lists every room with the number of membership rows it has.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.RoomWithOccupancy, error) {
	query := `
		SELECT r.id, r.owner_id, r.name, r.password_hash, r.capacity, r.created_at, COUNT(rm.user_id)
		FROM rooms r
		LEFT JOIN room_members rm ON r.id = rm.room_id
		GROUP BY r.id
		ORDER BY r.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.RoomWithOccupancy
	for rows.Next() {
		var room store.RoomWithOccupancy
		var passwordHash sql.NullString
		if err := rows.Scan(
			&room.ID,
			&room.OwnerID,
			&room.Name,
			&passwordHash,
			&room.Capacity,
			&room.CreatedAt,
			&room.UsersConnected,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if passwordHash.Valid {
			room.PasswordHash = &passwordHash.String
		}
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

// CountMembers returns the number of membership rows for a room.
func (s *SQLiteStore) CountMembers(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM room_members WHERE room_id = ?`, roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// DeleteRoom removes the timer, the memberships and then the room row.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_timers WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ?`, id); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("room: %w", store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ==== MembershipStore implementation ====

// AddMember records that a user occupies a room.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64) error {
	query := `
		INSERT INTO room_members (user_id, room_id)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roomID); err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("insert room member: %w", store.ErrDuplicate)
		}
		return fmt.Errorf("insert room member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a room.
func (s *SQLiteStore) RemoveMember(ctx context.Context, userID, roomID int64) error {
	query := `
		DELETE FROM room_members
		WHERE user_id = ? AND room_id = ?
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roomID); err != nil {
		return fmt.Errorf("delete room member: %w", err)
	}
	return nil
}

// RemoveRoomMembers removes every member of a room.
func (s *SQLiteStore) RemoveRoomMembers(ctx context.Context, roomID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room members: %w", err)
	}
	return nil
}

// ClearMembers drops every membership row.
func (s *SQLiteStore) ClearMembers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_members`); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	return nil
}

// ==== TimerStore implementation ====

// GetTimer retrieves the timer of a room.
func (s *SQLiteStore) GetTimer(ctx context.Context, roomID int64) (*store.Timer, error) {
	query := `
		SELECT room_id, state, mode, elapsed, work_length, break_length
		FROM room_timers
		WHERE room_id = ?
	`
	var t store.Timer
	var state, mode string
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(
		&t.RoomID,
		&state,
		&mode,
		&t.ElapsedSeconds,
		&t.WorkLength,
		&t.BreakLength,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("timer: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query timer: %w", err)
	}
	t.State = store.TimerState(state)
	t.Mode = store.TimerMode(mode)
	return &t, nil
}

// SaveTimer overwrites the timer row of a room.
func (s *SQLiteStore) SaveTimer(ctx context.Context, t *store.Timer) error {
	query := `
		UPDATE room_timers
		SET state = ?, mode = ?, elapsed = ?, work_length = ?, break_length = ?
		WHERE room_id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(t.State),
		string(t.Mode),
		t.ElapsedSeconds,
		t.WorkLength,
		t.BreakLength,
		t.RoomID,
	)
	if err != nil {
		return fmt.Errorf("update timer: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("timer: %w", store.ErrNotFound)
	}
	return nil
}

// StopAllTimers marks every running timer as stopped.
func (s *SQLiteStore) StopAllTimers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE room_timers SET state = 'stopped' WHERE state = 'running'`); err != nil {
		return fmt.Errorf("stop timers: %w", err)
	}
	return nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
