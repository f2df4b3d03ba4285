package models

import "errors"

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindCapacity      ErrorKind = "capacity"
	KindNotFound      ErrorKind = "not_found"
	KindInternal      ErrorKind = "internal"
)

// Error is a rejection returned to the caller. None of them are fatal for a room.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so wrapped copies still compare equal to the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidPayload = newError(KindValidation, "invalid_payload", "malformed payload")
	ErrInvalidCode    = newError(KindValidation, "invalid_code", "invalid room code")
	ErrUnknownGame    = newError(KindValidation, "unknown_game", "unknown game")
	ErrUnknownCommand = newError(KindValidation, "unknown_command", "unknown command")

	ErrForbidden       = newError(KindAuthorization, "forbidden", "action not allowed for this user")
	ErrUnauthenticated = newError(KindAuthorization, "unauthenticated", "missing or invalid credentials")

	ErrNotMember             = newError(KindConflict, "not_member", "user is not a participant of this room")
	ErrGameInProgress        = newError(KindConflict, "game_in_progress", "game is already in progress")
	ErrRoomFinished          = newError(KindConflict, "room_finished", "game has finished")
	ErrNotAllReady           = newError(KindConflict, "not_all_ready", "not every participant is ready")
	ErrNotInProgress         = newError(KindConflict, "not_in_progress", "game is not in progress")
	ErrNoActiveRound         = newError(KindConflict, "no_active_round", "no active round")
	ErrAlreadyBuzzed         = newError(KindConflict, "already_buzzed", "someone already buzzed this round")
	ErrRoundNotBuzzable      = newError(KindConflict, "round_not_buzzable", "this round has no buzzer")
	ErrNotAuthorizedToAnswer = newError(KindConflict, "not_authorized_to_answer", "only the buzzed participant may answer")
	ErrAlreadyAnswered       = newError(KindConflict, "already_answered", "answer already submitted")
	ErrRoundResolved         = newError(KindConflict, "round_resolved", "round already resolved")
	ErrNotEligible           = newError(KindConflict, "not_eligible", "participant is not playing this round")
	ErrTransition            = newError(KindConflict, "transition_not_allowed", "state transition not allowed")

	ErrCapacity      = newError(KindCapacity, "capacity", "player bounds not satisfied")
	ErrRoomFull      = newError(KindCapacity, "room_full", "room is full")
	ErrTooFewPlayers = newError(KindCapacity, "too_few_players", "not enough players to start")

	ErrRoomNotFound     = newError(KindNotFound, "room_not_found", "room not found")
	ErrGameNotFound     = newError(KindNotFound, "game_not_found", "game not found")
	ErrQuestionNotFound = newError(KindNotFound, "question_not_found", "question not found")
	ErrRoomClosed       = newError(KindNotFound, "room_closed", "room is closed")

	ErrCodeGeneration = newError(KindInternal, "code_generation", "could not generate a unique room code")
	ErrInternal       = newError(KindInternal, "internal", "internal error")
)

// AsError extracts the *Error from err, falling back to ErrInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	return AsError(err).Kind
}
