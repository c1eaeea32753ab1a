package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Inbound operations.
const (
	OpJoinRoom    = "joinRoom"
	OpUserMessage = "userMessage"
)

// Outbound operations.
const (
	OpMessage           = "message"
	OpTimerUpdate       = "timerUpdate"
	OpStateUpdate       = "stateUpdate"
	OpModeUpdate        = "modeUpdate"
	OpWorkLengthUpdate  = "workLengthUpdate"
	OpBreakLengthUpdate = "breakLengthUpdate"
	OpTimerFinished     = "timerFinished"
	OpTimerSnapshot     = "timerSnapshot"
	OpRoomDeleted       = "roomDeleted"
	OpError             = "error"
)

// Texts shown to users.
const (
	MessageNotSent     = "Message not sent"
	RoomDeletedMessage = "The room has been deleted."
)

// Join statuses sent as a bare JSON number after joinRoom.
const (
	JoinStatusOK            = 200
	JoinStatusRoomFull      = 400
	JoinStatusUnauthorized  = 401
	JoinStatusNotFound      = 404
	JoinStatusAlreadyJoined = 405
	JoinStatusFailed        = 500
)

// Presence values.
const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// Int is an integer that also accepts its decimal string form, since
// browsers send route params and form values as strings.
type Int int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*i = Int(n)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid number %s", data)
	}
	*i = Int(n)
	return nil
}

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Operation string `json:"operation"`
	ID        Int    `json:"id"`
	Token     string `json:"token"`
	Password  string `json:"password,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ChatMessage is a chat line or a presence notice. Message holds the
// human-readable text; the other fields carry the same data structured.
type ChatMessage struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
	RoomID    int64  `json:"roomId,omitempty"`
	SenderID  int64  `json:"senderId,omitempty"`
	Text      string `json:"text,omitempty"`
	Presence  string `json:"presence,omitempty"`
	UserID    int64  `json:"userId,omitempty"`
}

// TimerUpdate reports elapsed seconds.
type TimerUpdate struct {
	Operation      string `json:"operation"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// StateUpdate reports a running/stopped switch.
type StateUpdate struct {
	Operation string `json:"operation"`
	State     string `json:"state"`
}

// ModeUpdate reports a work/break switch.
type ModeUpdate struct {
	Operation string `json:"operation"`
	Mode      string `json:"mode"`
}

// LengthUpdate reports a new period length in seconds.
type LengthUpdate struct {
	Operation string `json:"operation"`
	Length    int    `json:"length"`
}

// Timer is the full state of a room timer.
type Timer struct {
	RoomID         int64  `json:"roomId"`
	State          string `json:"state"`
	Mode           string `json:"mode"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	WorkLength     int    `json:"workLength"`
	BreakLength    int    `json:"breakLength"`
}

// TimerSnapshot delivers the timer to a joining connection.
type TimerSnapshot struct {
	Operation string `json:"operation"`
	Timer
}

// Notice is an operation with an optional human-readable message.
type Notice struct {
	Operation string `json:"operation"`
	Message   string `json:"message,omitempty"`
}

// Error describes a protocol-level error sent to a single connection.
type Error struct {
	Operation string `json:"operation"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewError builds an error notice.
func NewError(code, msg string) Error {
	return Error{Operation: OpError, Code: code, Message: msg}
}
