package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizroom-service/internal/domain"
)

// Store is an in-memory implementation of app.Store, used for tests and
// no-database runs.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	rooms        map[string]domain.Room
	participants map[string]map[string]domain.Participant // room code -> user id
	answers      map[string]domain.AnswerRecord           // room|participant|ordinal
	joinSeq      int64
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:          now,
		rooms:        make(map[string]domain.Room),
		participants: make(map[string]map[string]domain.Participant),
		answers:      make(map[string]domain.AnswerRecord),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomCodeTaken
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *Store) GetRoom(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) TransitionRoomState(_ context.Context, code string, from, to domain.RoomState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	if room.State != from {
		return false, nil
	}
	room.State = to
	s.rooms[code] = room
	return true, nil
}

func (s *Store) GetOrCreateParticipant(_ context.Context, code string, id domain.Identity) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return domain.Participant{}, false, domain.ErrRoomNotFound
	}
	roomParticipants, ok := s.participants[code]
	if !ok {
		roomParticipants = make(map[string]domain.Participant)
		s.participants[code] = roomParticipants
	}
	if existing, ok := roomParticipants[id.UserID]; ok {
		return existing, false, nil
	}
	s.joinSeq++
	participant := domain.Participant{
		ID:          uuid.NewString(),
		RoomCode:    code,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		Avatar:      id.Avatar,
		Score:       0,
		// joinSeq keeps join order strict even when the clock does not advance
		// between two joins.
		JoinedAt: s.now().Add(time.Duration(s.joinSeq)),
	}
	roomParticipants[id.UserID] = participant
	return participant, true, nil
}

func (s *Store) GetParticipant(_ context.Context, code, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participant, ok := s.participants[code][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return participant, nil
}

func (s *Store) ListParticipants(_ context.Context, code string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants := make([]domain.Participant, 0, len(s.participants[code]))
	for _, p := range s.participants[code] {
		participants = append(participants, p)
	}
	return participants, nil
}

func (s *Store) RecordAnswer(_ context.Context, rec domain.AnswerRecord) (domain.AnswerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey(rec.RoomCode, rec.ParticipantID, rec.QuestionOrdinal)
	if existing, ok := s.answers[key]; ok {
		return existing, false, nil
	}
	s.answers[key] = rec
	if rec.Correct && rec.Points > 0 {
		for userID, p := range s.participants[rec.RoomCode] {
			if p.ID == rec.ParticipantID {
				p.Score += rec.Points
				s.participants[rec.RoomCode][userID] = p
				break
			}
		}
	}
	return rec, true, nil
}

func (s *Store) ListAnswers(_ context.Context, code, participantID string) ([]domain.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var answers []domain.AnswerRecord
	for _, rec := range s.answers {
		if rec.RoomCode == code && rec.ParticipantID == participantID {
			answers = append(answers, rec)
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].QuestionOrdinal < answers[j].QuestionOrdinal
	})
	return answers, nil
}

func answerKey(code, participantID string, ordinal int) string {
	return code + "|" + participantID + "|" + strconv.Itoa(ordinal)
}
