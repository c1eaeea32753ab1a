package core

import (
	"errors"

	"github.com/vovakirdan/studyroom-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventJoinResult tells a connection how its join attempt ended.
	EventJoinResult EventKind = iota
	// EventChat carries a chat message to every member, sender included.
	EventChat
	// EventPresence notifies members that someone joined or left.
	EventPresence
	// EventMessageRejected tells the sender its chat message was not delivered.
	EventMessageRejected
	// EventTimerSnapshot delivers the full timer state to a joining connection.
	EventTimerSnapshot
	// EventTimerUpdate reports the elapsed seconds of the running period.
	EventTimerUpdate
	// EventStateUpdate reports the timer switching between running and stopped.
	EventStateUpdate
	// EventModeUpdate reports the timer switching between work and break.
	EventModeUpdate
	// EventLengthUpdate reports a new length for the work or break period.
	EventLengthUpdate
	// EventTimerFinished fires once when a period runs out.
	EventTimerFinished
	// EventRoomDeleted is the last event a connection receives before the
	// server closes it because its room was deleted.
	EventRoomDeleted
	// EventError notifies a connection about a domain error.
	EventError
)

// Presence tells whether a user arrived or went away.
type Presence int

const (
	PresenceJoined Presence = iota
	PresenceLeft
)

// JoinStatus is the typed outcome of a join attempt.
type JoinStatus int

const (
	JoinOK JoinStatus = iota
	JoinRoomFull
	JoinWrongPassword
	JoinRoomNotFound
	JoinAlreadyJoined
	JoinUnauthorized
	JoinFailed
)

// JoinStatusOf maps the error returned by a join to its outcome.
func JoinStatusOf(err error) JoinStatus {
	switch {
	case err == nil:
		return JoinOK
	case errors.Is(err, ErrRoomFull):
		return JoinRoomFull
	case errors.Is(err, ErrWrongPassword):
		return JoinWrongPassword
	case errors.Is(err, ErrRoomNotFound):
		return JoinRoomNotFound
	case errors.Is(err, ErrAlreadyJoined):
		return JoinAlreadyJoined
	case errors.Is(err, ErrUnauthorized):
		return JoinUnauthorized
	default:
		return JoinFailed
	}
}

// TimerSnapshot is a point-in-time copy of a room timer.
type TimerSnapshot struct {
	RoomID         int64
	State          store.TimerState
	Mode           store.TimerMode
	ElapsedSeconds int
	WorkLength     int
	BreakLength    int
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	RoomID   int64
	UserID   int64 // chat sender or presence subject
	Text     string
	Presence Presence
	Status   JoinStatus

	// Timer fields.
	Elapsed int
	State   store.TimerState
	Mode    store.TimerMode
	Length  int
	Timer   *TimerSnapshot

	Error *CoreError
}

func timerUpdateEvent(elapsed int) *Event {
	return &Event{Kind: EventTimerUpdate, Elapsed: elapsed}
}

func stateUpdateEvent(state store.TimerState) *Event {
	return &Event{Kind: EventStateUpdate, State: state}
}

func modeUpdateEvent(mode store.TimerMode) *Event {
	return &Event{Kind: EventModeUpdate, Mode: mode}
}

func lengthUpdateEvent(mode store.TimerMode, length int) *Event {
	return &Event{Kind: EventLengthUpdate, Mode: mode, Length: length}
}

func errorEvent(roomID int64, err error) *Event {
	return &Event{Kind: EventError, RoomID: roomID, Error: asCore(err)}
}
