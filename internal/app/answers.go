package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
)

// AnswerProcessor validates and scores one submitted answer. It has no
// broadcast side effects; the coordinator owns the leaderboard fan-out.
type AnswerProcessor struct {
	store     Store
	questions QuestionSource
}

func NewAnswerProcessor(store Store, questions QuestionSource) *AnswerProcessor {
	return &AnswerProcessor{store: store, questions: questions}
}

// Submit resolves the room, participant and question, compares the selected
// option against the stored correct option by exact equality, and records the
// answer. A participant scores each question at most once: a resubmission is
// ignored and the originally recorded outcome comes back with Duplicate set.
func (p *AnswerProcessor) Submit(ctx context.Context, roomCode, userID string, sub domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	room, err := p.store.GetRoom(ctx, roomCode)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	if room.State != domain.RoomRunning {
		return domain.AnswerOutcome{}, domain.ErrRoomNotRunning
	}

	participant, err := p.store.GetParticipant(ctx, roomCode, userID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	question, err := p.questions.GetQuestion(ctx, room.QuizID, sub.QuestionOrdinal)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	correct := sub.SelectedOption == question.CorrectOption

	points := sub.Points
	if points <= 0 {
		points = question.Points
	}
	if points <= 0 {
		points = 1
	}

	awarded := 0
	if correct {
		awarded = points
	}

	record, created, err := p.store.RecordAnswer(ctx, domain.AnswerRecord{
		ID:              uuid.NewString(),
		RoomCode:        roomCode,
		ParticipantID:   participant.ID,
		QuestionOrdinal: sub.QuestionOrdinal,
		SelectedOption:  sub.SelectedOption,
		Correct:         correct,
		Points:          awarded,
		AnsweredAt:      sub.AnsweredAt,
	})
	if err != nil {
		return domain.AnswerOutcome{}, fmt.Errorf("record answer: %w", err)
	}

	// Re-read for the authoritative total; the increment happened in the store.
	participant, err = p.store.GetParticipant(ctx, roomCode, userID)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	return domain.AnswerOutcome{
		AnswerID:  record.ID,
		Correct:   record.Correct,
		Duplicate: !created,
		Score:     participant.Score,
	}, nil
}
