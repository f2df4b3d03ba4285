package models

// Command is an inbound, room scoped client action. The set is closed: only the
// types below implement it.
type Command interface {
	RoomCode() string
	command()
}

type JoinRoom struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

type LeaveRoom struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

type SetReady struct {
	Code   string `json:"code" validate:"required,len=6,alphanum"`
	Ready  bool   `json:"ready"`
	UserID string `json:"user_id,omitempty"` // defaults to the caller
}

type StartGame struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

// Buzz claims the right to answer the current round. ClientTime is diagnostic only.
type Buzz struct {
	Code       string `json:"code" validate:"required,len=6,alphanum"`
	ClientTime int64  `json:"client_time,omitempty"`
}

type SubmitAnswer struct {
	Code       string `json:"code" validate:"required,len=6,alphanum"`
	Answer     string `json:"answer" validate:"max=256"`
	ClientTime int64  `json:"client_time,omitempty"`
}

type AdvanceRound struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

func (c JoinRoom) RoomCode() string     { return c.Code }
func (c LeaveRoom) RoomCode() string    { return c.Code }
func (c SetReady) RoomCode() string     { return c.Code }
func (c StartGame) RoomCode() string    { return c.Code }
func (c Buzz) RoomCode() string         { return c.Code }
func (c SubmitAnswer) RoomCode() string { return c.Code }
func (c AdvanceRound) RoomCode() string { return c.Code }

func (JoinRoom) command()     {}
func (LeaveRoom) command()    {}
func (SetReady) command()     {}
func (StartGame) command()    {}
func (Buzz) command()         {}
func (SubmitAnswer) command() {}
func (AdvanceRound) command() {}

// CreateRoom is not room scoped; it is handled before any room exists.
type CreateRoom struct {
	GameID  string      `json:"game_id" validate:"required,max=64"`
	Options RoomOptions `json:"options"`
}

// CommandName is the wire name of a command, used for logs and metrics labels.
func CommandName(c Command) string {
	switch c.(type) {
	case JoinRoom:
		return "join_room"
	case LeaveRoom:
		return "leave_room"
	case SetReady:
		return "set_ready"
	case StartGame:
		return "start_game"
	case Buzz:
		return "buzz"
	case SubmitAnswer:
		return "submit_answer"
	case AdvanceRound:
		return "advance_round"
	}
	return "unknown"
}
