package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/auth"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.RoomCoordinator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	questions := memory.NewQuestionCache(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"quiz-1": {
			{Ordinal: 0, Prompt: "Pick B", Options: []string{"A", "B", "C"}, CorrectOption: "B", Points: 10},
		},
	}), time.Minute)
	coordinator := app.NewRoomCoordinator(store, questions, app.NewHub())

	wsHandler := NewWSHandler(coordinator, auth.InsecureVerifier{})
	roomHandler := NewRoomHandler(coordinator, auth.InsecureVerifier{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	roomHandler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, coordinator, store
}

func seedRoom(t *testing.T, store *memory.Store, state domain.RoomState) {
	t.Helper()
	err := store.CreateRoom(context.Background(), domain.Room{
		Code: "ABCD12", QuizID: "quiz-1", HostID: "host", State: state, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed room: %v", err)
	}
}

func dial(t *testing.T, server *httptest.Server, room, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?room=" + room + "&token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Data
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, data := readNext(t, conn)
		if typ == eventType {
			return data
		}
	}
	t.Fatalf("never received %s", eventType)
	return nil
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, coordinator, store := newTestServer(t)
	seedRoom(t, store, domain.RoomRunning)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", domain.Identity{UserID: "p1", DisplayName: "p1"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	conn := dial(t, server, "ABCD12", "p1")

	// Presence broadcast arrives first.
	data := readUntil(t, conn, domain.EventUserList)
	var users []domain.PresenceEntry
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("unmarshal user_list: %v", err)
	}
	if len(users) != 1 || users[0].UserID != "p1" {
		t.Fatalf("unexpected user_list %+v", users)
	}

	answer := map[string]any{
		"type": "answer",
		"data": map[string]any{
			"questionOrdinal": 0,
			"selectedOption":  "B",
			"points":          10,
			"answeredAt":      time.Now().Format(time.RFC3339),
		},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	var ack domain.AnswerOutcome
	if err := json.Unmarshal(readUntil(t, conn, domain.EventAnswerAck), &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if !ack.Correct || ack.Score != 10 {
		t.Fatalf("unexpected ack %+v", ack)
	}

	var board domain.Leaderboard
	if err := json.Unmarshal(readUntil(t, conn, domain.EventLeaderboard), &board); err != nil {
		t.Fatalf("unmarshal leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].UserID != "p1" || board[0].Rank != 1 || board[0].Score != 10 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}
}

func TestWebSocketChatFanout(t *testing.T) {
	server, _, store := newTestServer(t)
	seedRoom(t, store, domain.RoomRunning)

	sender := dial(t, server, "ABCD12", "p1")
	receiver := dial(t, server, "ABCD12", "p2")

	// Drain the receiver's initial presence event(s) before chatting.
	readUntil(t, receiver, domain.EventUserList)

	msg := map[string]any{"type": "chat", "data": "hello"}
	if err := sender.WriteJSON(msg); err != nil {
		t.Fatalf("write chat: %v", err)
	}

	var line string
	if err := json.Unmarshal(readUntil(t, receiver, domain.EventChat), &line); err != nil {
		t.Fatalf("unmarshal chat: %v", err)
	}
	if line != "p1: hello" {
		t.Fatalf("expected prefixed line, got %q", line)
	}
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	server, _, store := newTestServer(t)
	seedRoom(t, store, domain.RoomRunning)

	u := "ws" + server.URL[len("http"):] + "/ws?room=ABCD12"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestWebSocketErrorEventForBadAnswer(t *testing.T) {
	server, _, store := newTestServer(t)
	// Room not started: submissions are rejected but the connection stays up.
	seedRoom(t, store, domain.RoomPending)

	conn := dial(t, server, "ABCD12", "p1")
	readUntil(t, conn, domain.EventUserList)

	answer := map[string]any{
		"type": "answer",
		"data": map[string]any{"questionOrdinal": 0, "selectedOption": "B"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	data := readUntil(t, conn, "error")
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if payload.Message == "" {
		t.Fatalf("expected error message")
	}
}
