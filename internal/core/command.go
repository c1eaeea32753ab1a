package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom binds the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
)

// Command represents a parsed, validated action requested by a connection.
type Command struct {
	Kind     CommandKind
	RoomID   int64
	Token    string
	Password string
	Text     string
}

// TimerCommandKind enumerates owner-only timer operations.
type TimerCommandKind int

const (
	TimerStart TimerCommandKind = iota
	TimerStop
	TimerBreak
	TimerWork
	TimerLength
)

// TimerCommand is a timer operation issued by the room owner.
type TimerCommand struct {
	Kind   TimerCommandKind
	Length int // seconds, TimerLength only
}

var timerOperations = map[string]TimerCommandKind{
	"start":  TimerStart,
	"stop":   TimerStop,
	"break":  TimerBreak,
	"work":   TimerWork,
	"length": TimerLength,
}

// ParseTimerOperation maps a wire operation name to its command kind.
func ParseTimerOperation(op string) (TimerCommandKind, bool) {
	kind, ok := timerOperations[op]
	return kind, ok
}
