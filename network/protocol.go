package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wfunc/quizserver/models"
)

// 客户端 -> 服务器
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeCreateRoom   = 103
	MsgTypeSetReady     = 104
	MsgTypeStartGame    = 105
	MsgTypeBuzz         = 201
	MsgTypeSubmitAnswer = 202
	MsgTypeAdvanceRound = 203
)

// 服务器 -> 客户端
const (
	MsgTypeRoomState      = 301
	MsgTypeRoster         = 302
	MsgTypeGameStart      = 303
	MsgTypeSnapshot       = 304
	MsgTypeGameEnd        = 305
	MsgTypeCountdown      = 306
	MsgTypeRoundStarted   = 307
	MsgTypeBuzzAccepted   = 308
	MsgTypeAnswerReceived = 309
	MsgTypeRoundResult    = 310
	MsgTypeHostChanged    = 311
	MsgTypeRejected       = 312
	MsgTypeRoomCreated    = 313
	MsgTypeRoomRemoved    = 314
	MsgTypeRoomClosed     = 315
)

var ErrPacketTooLarge = errors.New("packet exceeds 65535 bytes")

var eventMsgIDs = map[models.EventKind]uint16{
	models.EventRoomState:      MsgTypeRoomState,
	models.EventRoster:         MsgTypeRoster,
	models.EventGameStarted:    MsgTypeGameStart,
	models.EventSnapshot:       MsgTypeSnapshot,
	models.EventGameFinished:   MsgTypeGameEnd,
	models.EventCountdown:      MsgTypeCountdown,
	models.EventRoundStarted:   MsgTypeRoundStarted,
	models.EventBuzzAccepted:   MsgTypeBuzzAccepted,
	models.EventAnswerReceived: MsgTypeAnswerReceived,
	models.EventRoundResult:    MsgTypeRoundResult,
	models.EventHostChanged:    MsgTypeHostChanged,
	models.EventRejected:       MsgTypeRejected,
	models.EventRoomCreated:    MsgTypeRoomCreated,
	models.EventRoomRemoved:    MsgTypeRoomRemoved,
	models.EventRoomClosed:     MsgTypeRoomClosed,
}

var msgEventKinds = func() map[uint16]models.EventKind {
	out := make(map[uint16]models.EventKind, len(eventMsgIDs))
	for k, v := range eventMsgIDs {
		out[v] = k
	}
	return out
}()

var commandNames = map[uint16]string{
	MsgTypeHeartbeat:    "heartbeat",
	MsgTypeJoinRoom:     "join_room",
	MsgTypeLeaveRoom:    "leave_room",
	MsgTypeCreateRoom:   "create_room",
	MsgTypeSetReady:     "set_ready",
	MsgTypeStartGame:    "start_game",
	MsgTypeBuzz:         "buzz",
	MsgTypeSubmitAnswer: "submit_answer",
	MsgTypeAdvanceRound: "advance_round",
}

// MessageName names an inbound message id for rejections and logs.
func MessageName(msgID uint16) string {
	if name, ok := commandNames[msgID]; ok {
		return name
	}
	return "unknown"
}

var validate = validator.New()

// EncodeEvent 把事件编码成消息ID和JSON包体
func EncodeEvent(evt models.Event) (uint16, []byte, error) {
	id, ok := eventMsgIDs[evt.Kind]
	if !ok {
		return 0, nil, fmt.Errorf("no message id for event %q", evt.Kind)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return 0, nil, err
	}
	if len(data) > 0xFFFF {
		return 0, nil, ErrPacketTooLarge
	}
	return id, data, nil
}

// DecodeEvent is the client side of EncodeEvent. Payload stays raw JSON.
func DecodeEvent(msgID uint16, data []byte) (models.Event, json.RawMessage, error) {
	kind, ok := msgEventKinds[msgID]
	if !ok {
		return models.Event{}, nil, models.ErrUnknownCommand
	}
	var wire struct {
		models.Event
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.Event{}, nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	wire.Event.Kind = kind
	return wire.Event, wire.Payload, nil
}

func decodeInto(data []byte, v interface{}) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return nil
}

// DecodeCommand 解析房间内指令，房间码统一转为大写后再校验
func DecodeCommand(msgID uint16, data []byte) (models.Command, error) {
	var cmd models.Command
	switch msgID {
	case MsgTypeJoinRoom:
		var c models.JoinRoom
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeLeaveRoom:
		var c models.LeaveRoom
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeSetReady:
		var c models.SetReady
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeStartGame:
		var c models.StartGame
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeBuzz:
		var c models.Buzz
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeSubmitAnswer:
		var c models.SubmitAnswer
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	case MsgTypeAdvanceRound:
		var c models.AdvanceRound
		if err := decodeInto(data, &c); err != nil {
			return nil, err
		}
		c.Code = normalizeCode(c.Code)
		cmd = c
	default:
		return nil, models.ErrUnknownCommand
	}

	if err := validate.Struct(cmd); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			for _, f := range fields {
				if f.Field() == "Code" {
					return nil, fmt.Errorf("%w: %v", models.ErrInvalidCode, err)
				}
			}
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return cmd, nil
}

func DecodeCreateRoom(data []byte) (models.CreateRoom, error) {
	var c models.CreateRoom
	if err := decodeInto(data, &c); err != nil {
		return c, err
	}
	if err := validate.Struct(c); err != nil {
		return c, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return c, nil
}

// EncodeCommand is used by clients to build inbound packets.
func EncodeCommand(cmd interface{}) (uint16, []byte, error) {
	var id uint16
	switch cmd.(type) {
	case models.JoinRoom:
		id = MsgTypeJoinRoom
	case models.LeaveRoom:
		id = MsgTypeLeaveRoom
	case models.SetReady:
		id = MsgTypeSetReady
	case models.StartGame:
		id = MsgTypeStartGame
	case models.Buzz:
		id = MsgTypeBuzz
	case models.SubmitAnswer:
		id = MsgTypeSubmitAnswer
	case models.AdvanceRound:
		id = MsgTypeAdvanceRound
	case models.CreateRoom:
		id = MsgTypeCreateRoom
	default:
		return 0, nil, models.ErrUnknownCommand
	}
	data, err := json.Marshal(cmd)
	return id, data, err
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
