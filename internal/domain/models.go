package domain

import "time"

// RoomState tracks the lifecycle of a quiz room.
type RoomState string

const (
	RoomPending RoomState = "pending"
	RoomRunning RoomState = "running"
	RoomEnded   RoomState = "ended"
)

// Room is one live quiz session, addressed by a short human-typeable code.
type Room struct {
	Code      string    `json:"code"`
	QuizID    string    `json:"quizId"`
	HostID    string    `json:"hostId"`
	State     RoomState `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is a pre-verified caller identity. The coordinator consumes it
// as-is and never re-verifies mid-session.
type Identity struct {
	UserID      string `json:"identity"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// Participant is a joined identity within a specific room. The authoritative
// score lives in the persistence store; hubs only mirror it for reads.
type Participant struct {
	ID          string    `json:"id"`
	RoomCode    string    `json:"-"`
	UserID      string    `json:"identity"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Question is addressed by its ordinal index within a quiz; the wire protocol
// never exposes storage identifiers.
type Question struct {
	Ordinal       int      `json:"ordinal"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correctOption"`
	Points        int      `json:"points"` // defaults to 1 if zero
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionOrdinal int       `json:"questionOrdinal"`
	SelectedOption  string    `json:"selectedOption"`
	Points          int       `json:"points"`
	AnsweredAt      time.Time `json:"answeredAt"`
}

// AnswerRecord is the persisted outcome of one submission. At most one record
// exists per (room, participant, question).
type AnswerRecord struct {
	ID              string    `json:"answerId"`
	RoomCode        string    `json:"-"`
	ParticipantID   string    `json:"participantId"`
	QuestionOrdinal int       `json:"questionOrdinal"`
	SelectedOption  string    `json:"selectedOption"`
	Correct         bool      `json:"correct"`
	Points          int       `json:"points"`
	AnsweredAt      time.Time `json:"answeredAt"`
}

// AnswerOutcome acknowledges a submission back to the submitter. Duplicate is
// set when the participant had already answered the question; the originally
// recorded result is returned unchanged in that case.
type AnswerOutcome struct {
	AnswerID  string `json:"answerId"`
	Correct   bool   `json:"correct"`
	Duplicate bool   `json:"duplicate"`
	Score     int    `json:"score"`
}

// JoinResult reports the participant record for a join call, which is
// idempotent per (room, identity).
type JoinResult struct {
	ParticipantID string `json:"participantId"`
	QuizID        string `json:"quizId"`
	AlreadyJoined bool   `json:"alreadyJoined"`
	Score         int    `json:"score"`
}

// LeaderboardEntry is one ranked row of a leaderboard snapshot.
type LeaderboardEntry struct {
	UserID      string `json:"identity"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Rank        int    `json:"rank"`
	Score       int    `json:"score"`
}

// Leaderboard is a derived snapshot, recomputed from participant scores on
// demand and never persisted.
type Leaderboard []LeaderboardEntry

// PresenceEntry is one row of a user_list broadcast.
type PresenceEntry struct {
	UserID      string `json:"identity"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}
