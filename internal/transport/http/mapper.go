package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/studyroom-server/internal/core"
	"github.com/vovakirdan/studyroom-server/internal/proto"
	"github.com/vovakirdan/studyroom-server/internal/store"
)

const errCodeInvalidMessage = "invalid_message"

// decodeInbound parses a raw frame into a core command. A non-nil
// proto.Error means the frame is rejected and the connection stays open.
func decodeInbound(data []byte) (*core.Command, *proto.Error) {
	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return nil, protoErr(errCodeInvalidMessage, "malformed message")
	}
	return inboundToCommand(inbound)
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Operation {
	case proto.OpJoinRoom:
		if inbound.ID <= 0 {
			return nil, protoErr(core.ErrCodeBadRequest, "id is required")
		}
		return &core.Command{
			Kind:     core.CommandJoinRoom,
			RoomID:   int64(inbound.ID),
			Token:    inbound.Token,
			Password: inbound.Password,
		}, nil
	case proto.OpUserMessage:
		if inbound.ID <= 0 {
			return nil, protoErr(core.ErrCodeBadRequest, "id is required")
		}
		return &core.Command{
			Kind:   core.CommandSendRoomMessage,
			RoomID: int64(inbound.ID),
			Token:  inbound.Token,
			Text:   inbound.Message,
		}, nil
	default:
		return nil, protoErr(errCodeInvalidMessage, "unknown operation")
	}
}

func protoErr(code, msg string) *proto.Error {
	e := proto.NewError(code, msg)
	return &e
}

func joinStatusCode(status core.JoinStatus) int {
	switch status {
	case core.JoinOK:
		return proto.JoinStatusOK
	case core.JoinRoomFull:
		return proto.JoinStatusRoomFull
	case core.JoinWrongPassword, core.JoinUnauthorized:
		return proto.JoinStatusUnauthorized
	case core.JoinRoomNotFound:
		return proto.JoinStatusNotFound
	case core.JoinAlreadyJoined:
		return proto.JoinStatusAlreadyJoined
	default:
		return proto.JoinStatusFailed
	}
}

func timerView(s core.TimerSnapshot) proto.Timer {
	return proto.Timer{
		RoomID:         s.RoomID,
		State:          string(s.State),
		Mode:           string(s.Mode),
		ElapsedSeconds: s.ElapsedSeconds,
		WorkLength:     s.WorkLength,
		BreakLength:    s.BreakLength,
	}
}

// outboundFromEvent converts a core event to its wire form.
func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventJoinResult:
		return joinStatusCode(event.Status)
	case core.EventChat:
		return proto.ChatMessage{
			Operation: proto.OpMessage,
			Message:   fmt.Sprintf("%d: %s", event.UserID, event.Text),
			RoomID:    event.RoomID,
			SenderID:  event.UserID,
			Text:      event.Text,
		}
	case core.EventPresence:
		presence := proto.PresenceJoined
		if event.Presence == core.PresenceLeft {
			presence = proto.PresenceLeft
		}
		return proto.ChatMessage{
			Operation: proto.OpMessage,
			Message:   fmt.Sprintf("%d %s.", event.UserID, presence),
			RoomID:    event.RoomID,
			Presence:  presence,
			UserID:    event.UserID,
		}
	case core.EventMessageRejected:
		return proto.Notice{Operation: proto.OpMessage, Message: proto.MessageNotSent}
	case core.EventTimerSnapshot:
		if event.Timer == nil {
			return proto.Notice{Operation: proto.OpTimerSnapshot}
		}
		return proto.TimerSnapshot{Operation: proto.OpTimerSnapshot, Timer: timerView(*event.Timer)}
	case core.EventTimerUpdate:
		return proto.TimerUpdate{Operation: proto.OpTimerUpdate, ElapsedSeconds: event.Elapsed}
	case core.EventStateUpdate:
		return proto.StateUpdate{Operation: proto.OpStateUpdate, State: string(event.State)}
	case core.EventModeUpdate:
		return proto.ModeUpdate{Operation: proto.OpModeUpdate, Mode: string(event.Mode)}
	case core.EventLengthUpdate:
		op := proto.OpWorkLengthUpdate
		if event.Mode == store.ModeBreak {
			op = proto.OpBreakLengthUpdate
		}
		return proto.LengthUpdate{Operation: op, Length: event.Length}
	case core.EventTimerFinished:
		return proto.Notice{Operation: proto.OpTimerFinished}
	case core.EventRoomDeleted:
		return proto.Notice{Operation: proto.OpRoomDeleted, Message: proto.RoomDeletedMessage}
	case core.EventError:
		if event.Error == nil {
			return proto.NewError(core.ErrCodeInternal, "unknown error")
		}
		return proto.NewError(event.Error.Code, event.Error.Message)
	default:
		return proto.NewError(core.ErrCodeInternal, "unknown event")
	}
}
