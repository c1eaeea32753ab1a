package core

import (
	"errors"
	"fmt"
)

// ErrorKind groups domain errors by how callers should react to them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error codes for domain errors.
const (
	ErrCodeRoomNotFound      = "room_not_found"
	ErrCodeAlreadyJoined     = "already_joined"
	ErrCodeNotInRoom         = "not_in_room"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
	ErrCodeRoomFull          = "room_full"
	ErrCodeWrongPassword     = "wrong_password"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeInvalidName       = "invalid_name"
	ErrCodeInvalidCapacity   = "invalid_capacity"
	ErrCodeInvalidLength     = "invalid_length"
	ErrCodeEmptyMessage      = "empty_message"
	ErrCodeRoomClosed        = "room_closed"
	ErrCodeInternal          = "internal"
)

var (
	ErrRoomNotFound      = coreError(KindNotFound, ErrCodeRoomNotFound, "room not found")
	ErrUnauthorized      = coreError(KindUnauthorized, ErrCodeUnauthorized, "unauthorized")
	ErrWrongPassword     = coreError(KindUnauthorized, ErrCodeWrongPassword, "wrong password")
	ErrForbidden         = coreError(KindForbidden, ErrCodeForbidden, "only the room owner may do that")
	ErrRoomFull          = coreError(KindConflict, ErrCodeRoomFull, "room is full")
	ErrAlreadyJoined     = coreError(KindConflict, ErrCodeAlreadyJoined, "already joined")
	ErrInvalidTransition = coreError(KindConflict, ErrCodeInvalidTransition, "invalid timer transition")
	ErrNotInRoom         = coreError(KindConflict, ErrCodeNotInRoom, "not in room")
	ErrBadRequest        = coreError(KindValidation, ErrCodeBadRequest, "bad request")
	ErrInvalidRoomName   = coreError(KindValidation, ErrCodeInvalidName, "room name must not be empty")
	ErrInvalidCapacity   = coreError(KindValidation, ErrCodeInvalidCapacity, "capacity must be between 1 and 16")
	ErrInvalidLength     = coreError(KindValidation, ErrCodeInvalidLength, "length must be a positive number of seconds")
	ErrEmptyMessage      = coreError(KindValidation, ErrCodeEmptyMessage, "message must not be empty")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so wrapped copies compare equal to the
// sentinel values above.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func coreError(kind ErrorKind, code, msg string) *CoreError {
	return &CoreError{Kind: kind, Code: code, Message: msg}
}

// Internal wraps a store or infrastructure failure.
func Internal(op string, err error) *CoreError {
	return &CoreError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: fmt.Sprintf("%s failed", op),
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindInternal when err is not a domain error.
func KindOf(err error) ErrorKind {
	if ce, ok := AsCoreError(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// AsCoreError unwraps err into a *CoreError.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
