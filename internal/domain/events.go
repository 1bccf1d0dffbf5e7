package domain

import "encoding/json"

// Event is the JSON envelope exchanged over a room connection.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound event types.
const (
	EventChat   = "chat"
	EventAnswer = "answer"
)

// Outbound event types.
const (
	EventUserList    = "user_list"
	EventQuizStarted = "quiz_started"
	EventAnswerAck   = "answer_ack"
	EventLeaderboard = "leaderboard"
)

// NewEvent marshals data into an envelope. Marshaling only fails for
// unrepresentable values, which the event payloads here never are.
func NewEvent(eventType string, data any) Event {
	if data == nil {
		return Event{Type: eventType}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{Type: eventType}
	}
	return Event{Type: eventType, Data: raw}
}
