package models

import "time"

// EventKind names an outbound server event.
type EventKind string

const (
	EventSnapshot       EventKind = "snapshot"
	EventRoster         EventKind = "roster"
	EventRoomState      EventKind = "room_state"
	EventCountdown      EventKind = "countdown"
	EventGameStarted    EventKind = "game_started"
	EventRoundStarted   EventKind = "round_started"
	EventBuzzAccepted   EventKind = "buzz_accepted"
	EventAnswerReceived EventKind = "answer_received"
	EventRoundResult    EventKind = "round_result"
	EventGameFinished   EventKind = "game_finished"
	EventHostChanged    EventKind = "host_changed"
	EventRejected       EventKind = "rejected"
	EventRoomCreated    EventKind = "room_created"
	EventRoomRemoved    EventKind = "room_removed"
	EventRoomClosed     EventKind = "room_closed"
)

// Event is what the notification bus delivers. Seq increases per room channel.
type Event struct {
	Kind    EventKind   `json:"kind"`
	Room    string      `json:"room,omitempty"`
	Seq     uint64      `json:"seq"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

type RosterPayload struct {
	HostUserID   string        `json:"host_user_id"`
	Participants []Participant `json:"participants"`
}

type RoomStatePayload struct {
	Status RoomStatus `json:"status"`
}

type CountdownPayload struct {
	Remaining int `json:"remaining"`
}

type GameStartedPayload struct {
	TotalQuestions int       `json:"total_questions"`
	StartedAt      time.Time `json:"started_at"`
}

type BuzzAcceptedPayload struct {
	Index  int    `json:"index"`
	UserID string `json:"user_id"`
}

// AnswerReceivedPayload never carries the answer itself.
type AnswerReceivedPayload struct {
	Index  int    `json:"index"`
	UserID string `json:"user_id"`
}

type GameFinishedPayload struct {
	Rankings []Ranking `json:"rankings"`
}

type HostChangedPayload struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

type RejectedPayload struct {
	Command string    `json:"command"`
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}
