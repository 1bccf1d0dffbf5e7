package domain

import "errors"

var (
	// ErrRoomNotFound is returned when no room exists for a code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrQuestionNotFound indicates a question ordinal out of range for the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when an identity acts in a room it never joined.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrNotHost is returned when a non-host identity tries to start the room.
	ErrNotHost = errors.New("only the host may start the room")
	// ErrRoomNotRunning rejects submissions before the host has started the quiz.
	ErrRoomNotRunning = errors.New("room is not running")
	// ErrRoomCodesExhausted signals that code generation could not find a free
	// code within the allowed retries. Operational, not a user error.
	ErrRoomCodesExhausted = errors.New("room code space exhausted")
	// ErrRoomCodeTaken is the store-level collision signal the registry retries on.
	ErrRoomCodeTaken = errors.New("room code already taken")
)

// Kind groups errors for callers that map them onto a transport response.
type Kind int

const (
	KindTransient Kind = iota // persistence/transport failure, retryable
	KindNotFound
	KindForbidden
	KindInvalidState
	KindConflict
)

// Classify maps an error chain onto its Kind. Unrecognized errors are
// transient: the caller may retry them.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrQuestionNotFound):
		return KindNotFound
	case errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrNotHost):
		return KindForbidden
	case errors.Is(err, ErrRoomNotRunning):
		return KindInvalidState
	case errors.Is(err, ErrRoomCodesExhausted), errors.Is(err, ErrRoomCodeTaken):
		return KindConflict
	default:
		return KindTransient
	}
}
