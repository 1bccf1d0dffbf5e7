package app

import (
	"context"

	"quizroom-service/internal/domain"
)

// Store abstracts the persistence collaborator holding rooms, participants and
// answer history (in-memory, Postgres, etc).
type Store interface {
	// CreateRoom persists a new room row. Returns domain.ErrRoomCodeTaken when
	// the code collides with an existing room.
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, code string) (domain.Room, error)
	// TransitionRoomState moves the room from one state to another atomically.
	// Reports false without error when the room is not in the expected state;
	// concurrent callers observe exactly one successful transition.
	TransitionRoomState(ctx context.Context, code string, from, to domain.RoomState) (bool, error)

	// GetOrCreateParticipant returns the existing participant for
	// (room, identity) or creates one with zero score. The bool reports
	// whether a new row was created.
	GetOrCreateParticipant(ctx context.Context, code string, id domain.Identity) (domain.Participant, bool, error)
	GetParticipant(ctx context.Context, code, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, code string) ([]domain.Participant, error)

	// RecordAnswer applies one submission atomically: it inserts the answer
	// row and, when the row is new and correct, adds the awarded points to the
	// participant score. When a record already exists for
	// (room, participant, question) the stored record is returned unchanged
	// and the bool is false; nothing is re-scored.
	RecordAnswer(ctx context.Context, rec domain.AnswerRecord) (domain.AnswerRecord, bool, error)
	ListAnswers(ctx context.Context, code, participantID string) ([]domain.AnswerRecord, error)
}

// QuestionSource resolves the authoritative question set for a quiz by
// ordinal. Implementations cache aggressively; the correct option for a
// question never changes mid-session.
type QuestionSource interface {
	GetQuestion(ctx context.Context, quizID string, ordinal int) (domain.Question, error)
}
