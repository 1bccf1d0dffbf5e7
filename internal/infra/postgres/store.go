package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

const uniqueViolation = "23505"

// Store implements app.Store on Postgres. Rooms, participants and answer
// history survive process restarts; live connection state does not.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (code, quiz_id, host_id, state, created_at) VALUES ($1, $2, $3, $4, $5)`,
		room.Code, room.QuizID, room.HostID, string(room.State), room.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrRoomCodeTaken
	}
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, code string) (domain.Room, error) {
	var room domain.Room
	var state string
	err := s.pool.QueryRow(ctx,
		`SELECT code, quiz_id, host_id, state, created_at FROM rooms WHERE code = $1`, code,
	).Scan(&room.Code, &room.QuizID, &room.HostID, &state, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room: %w", err)
	}
	room.State = domain.RoomState(state)
	return room, nil
}

func (s *Store) TransitionRoomState(ctx context.Context, code string, from, to domain.RoomState) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET state = $3 WHERE code = $1 AND state = $2`,
		code, string(from), string(to),
	)
	if err != nil {
		return false, fmt.Errorf("transition room state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing room from a room already past the transition.
		if _, err := s.GetRoom(ctx, code); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) GetOrCreateParticipant(ctx context.Context, code string, id domain.Identity) (domain.Participant, bool, error) {
	if _, err := s.GetRoom(ctx, code); err != nil {
		return domain.Participant{}, false, err
	}

	var p domain.Participant
	err := s.pool.QueryRow(ctx,
		`INSERT INTO room_participants (room_code, user_id, display_name, avatar)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_code, user_id) DO NOTHING
		 RETURNING id, room_code, user_id, display_name, avatar, score, joined_at`,
		code, id.UserID, id.DisplayName, id.Avatar,
	).Scan(&p.ID, &p.RoomCode, &p.UserID, &p.DisplayName, &p.Avatar, &p.Score, &p.JoinedAt)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, false, fmt.Errorf("create participant: %w", err)
	}

	// Conflict path: the participant already exists, return it untouched.
	existing, err := s.GetParticipant(ctx, code, id.UserID)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return existing, false, nil
}

func (s *Store) GetParticipant(ctx context.Context, code, userID string) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx,
		`SELECT id, room_code, user_id, display_name, avatar, score, joined_at
		 FROM room_participants WHERE room_code = $1 AND user_id = $2`,
		code, userID,
	).Scan(&p.ID, &p.RoomCode, &p.UserID, &p.DisplayName, &p.Avatar, &p.Score, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, code string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_code, user_id, display_name, avatar, score, joined_at
		 FROM room_participants WHERE room_code = $1`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.RoomCode, &p.UserID, &p.DisplayName, &p.Avatar, &p.Score, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// RecordAnswer inserts the answer row and applies the score increment in one
// transaction; either both commit or neither does. The unique index on
// (room_code, participant_id, question_index) makes resubmission a no-op that
// returns the originally stored record.
func (s *Store) RecordAnswer(ctx context.Context, rec domain.AnswerRecord) (domain.AnswerRecord, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var insertedID string
	err = tx.QueryRow(ctx,
		`INSERT INTO room_answers (id, room_code, participant_id, question_index, selected_option, is_correct, points_awarded, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (room_code, participant_id, question_index) DO NOTHING
		 RETURNING id`,
		rec.ID, rec.RoomCode, rec.ParticipantID, rec.QuestionOrdinal,
		rec.SelectedOption, rec.Correct, rec.Points, rec.AnsweredAt,
	).Scan(&insertedID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already answered; return what was recorded the first time.
		existing, err := s.getAnswer(ctx, rec.RoomCode, rec.ParticipantID, rec.QuestionOrdinal)
		if err != nil {
			return domain.AnswerRecord{}, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("insert answer: %w", err)
	}

	if rec.Correct && rec.Points > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE room_participants SET score = score + $2 WHERE id = $1`,
			rec.ParticipantID, rec.Points,
		); err != nil {
			return domain.AnswerRecord{}, false, fmt.Errorf("increment score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.AnswerRecord{}, false, fmt.Errorf("commit: %w", err)
	}
	return rec, true, nil
}

func (s *Store) ListAnswers(ctx context.Context, code, participantID string) ([]domain.AnswerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_code, participant_id, question_index, selected_option, is_correct, points_awarded, answered_at
		 FROM room_answers WHERE room_code = $1 AND participant_id = $2
		 ORDER BY question_index ASC`,
		code, participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.AnswerRecord
	for rows.Next() {
		var rec domain.AnswerRecord
		if err := rows.Scan(&rec.ID, &rec.RoomCode, &rec.ParticipantID, &rec.QuestionOrdinal,
			&rec.SelectedOption, &rec.Correct, &rec.Points, &rec.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, rec)
	}
	return answers, rows.Err()
}

func (s *Store) getAnswer(ctx context.Context, code, participantID string, ordinal int) (domain.AnswerRecord, error) {
	var rec domain.AnswerRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, room_code, participant_id, question_index, selected_option, is_correct, points_awarded, answered_at
		 FROM room_answers WHERE room_code = $1 AND participant_id = $2 AND question_index = $3`,
		code, participantID, ordinal,
	).Scan(&rec.ID, &rec.RoomCode, &rec.ParticipantID, &rec.QuestionOrdinal,
		&rec.SelectedOption, &rec.Correct, &rec.Points, &rec.AnsweredAt)
	if err != nil {
		return domain.AnswerRecord{}, fmt.Errorf("get answer: %w", err)
	}
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
