package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func newTestCoordinator(t *testing.T) (*RoomCoordinator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	questions := memory.NewQuestionCache(memory.NewStaticQuestionLoader(testQuestions()), 5*time.Minute)
	return NewRoomCoordinator(store, questions, NewHub()), store
}

func createFixedRoom(t *testing.T, store *memory.Store, code string, state domain.RoomState) {
	t.Helper()
	err := store.CreateRoom(context.Background(), domain.Room{
		Code: code, QuizID: "quiz-1", HostID: "host", State: state, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	first, err := coordinator.Join(ctx, "ABCD12", identity("p1"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if first.AlreadyJoined || first.QuizID != "quiz-1" {
		t.Fatalf("unexpected first join %+v", first)
	}

	again, err := coordinator.Join(ctx, "ABCD12", identity("p1"))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !again.AlreadyJoined {
		t.Fatalf("expected already-joined flag, got %+v", again)
	}
	if again.ParticipantID != first.ParticipantID {
		t.Fatalf("expected same participant id, got %s then %s", first.ParticipantID, again.ParticipantID)
	}
}

func TestJoinKeepsScoreAcrossRejoins(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomRunning)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", identity("p1")); err != nil {
		t.Fatalf("join: %v", err)
	}

	w := &fakeWriter{}
	conn, err := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
		QuestionOrdinal: 0, SelectedOption: "B", Points: 10, AnsweredAt: time.Now(),
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	coordinator.Disconnect(conn)

	rejoined, err := coordinator.Join(ctx, "ABCD12", identity("p1"))
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if rejoined.Score != 10 {
		t.Fatalf("expected score 10 to survive reconnect, got %d", rejoined.Score)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	_, err := coordinator.Join(context.Background(), "NOSUCH", identity("p1"))
	if err != domain.ErrRoomNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartRequiresHost(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	if err := coordinator.Start(ctx, "ABCD12", "p1"); err != domain.ErrNotHost {
		t.Fatalf("expected host check, got %v", err)
	}

	if err := coordinator.Start(ctx, "ABCD12", "host"); err != nil {
		t.Fatalf("host start: %v", err)
	}
	room, err := store.GetRoom(ctx, "ABCD12")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.State != domain.RoomRunning {
		t.Fatalf("expected running room, got %s", room.State)
	}
}

func TestDuplicateStartIsNoop(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	w := &fakeWriter{}
	conn, err := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer coordinator.Disconnect(conn)

	if err := coordinator.Start(ctx, "ABCD12", "host"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := coordinator.Start(ctx, "ABCD12", "host"); err != nil {
		t.Fatalf("duplicate start should be a no-op, got %v", err)
	}

	waitFor(t, func() bool { return w.countOf(domain.EventQuizStarted) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := w.countOf(domain.EventQuizStarted); got != 1 {
		t.Fatalf("expected exactly one quiz_started broadcast, got %d", got)
	}
}

func TestChatFanoutWithDisplayName(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomRunning)
	createFixedRoom(t, store, "OTHER9", domain.RoomRunning)
	ctx := context.Background()

	sender := &fakeWriter{}
	peer := &fakeWriter{}
	outsider := &fakeWriter{}
	senderConn, _ := coordinator.Connect(ctx, "ABCD12", identity("p1"), sender)
	peerConn, _ := coordinator.Connect(ctx, "ABCD12", identity("p2"), peer)
	outsiderConn, _ := coordinator.Connect(ctx, "OTHER9", identity("p3"), outsider)
	defer coordinator.Disconnect(senderConn)
	defer coordinator.Disconnect(peerConn)
	defer coordinator.Disconnect(outsiderConn)

	coordinator.HandleChat(senderConn, "hello room")

	waitFor(t, func() bool { return peer.countOf(domain.EventChat) == 1 })
	var line string
	for _, ev := range peer.snapshot() {
		if ev.Type == domain.EventChat {
			if err := json.Unmarshal(ev.Data, &line); err != nil {
				t.Fatalf("unmarshal chat: %v", err)
			}
		}
	}
	if line != "name-p1: hello room" {
		t.Fatalf("expected prefixed chat line, got %q", line)
	}
	if outsider.countOf(domain.EventChat) != 0 {
		t.Fatalf("chat leaked into another room")
	}
}

// Scenario from the product requirements: room ABCD12, question ordinal 0 with
// correct option B worth 10 points.
func TestAnswerFlowEndToEnd(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", identity("p1")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := coordinator.Start(ctx, "ABCD12", "host"); err != nil {
		t.Fatalf("start: %v", err)
	}

	w := &fakeWriter{}
	conn, err := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer coordinator.Disconnect(conn)

	outcome, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
		QuestionOrdinal: 0, SelectedOption: "B", Points: 10, AnsweredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !outcome.Correct || outcome.Score != 10 {
		t.Fatalf("expected correct 10-point outcome, got %+v", outcome)
	}

	waitFor(t, func() bool {
		return w.countOf(domain.EventAnswerAck) == 1 && w.countOf(domain.EventLeaderboard) == 1
	})

	var board domain.Leaderboard
	for _, ev := range w.snapshot() {
		if ev.Type == domain.EventLeaderboard {
			if err := json.Unmarshal(ev.Data, &board); err != nil {
				t.Fatalf("unmarshal leaderboard: %v", err)
			}
		}
	}
	if len(board) != 1 || board[0].UserID != "p1" || board[0].Score != 10 || board[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", board)
	}

	// Duplicate with a different option must not move the score.
	second, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
		QuestionOrdinal: 0, SelectedOption: "A", Points: 10, AnsweredAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("duplicate answer: %v", err)
	}
	if !second.Duplicate || second.Score != 10 {
		t.Fatalf("expected ignored duplicate at score 10, got %+v", second)
	}
}

// Submissions from different participants race on one room; the per-room lock
// must serialize scoring with the leaderboard broadcast so no connection ever
// observes a snapshot going backwards.
func TestConcurrentAnswersKeepLeaderboardConsistent(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomRunning)
	ctx := context.Background()

	const players = 6
	writers := make([]*fakeWriter, players)
	conns := make([]*Conn, players)
	for i := 0; i < players; i++ {
		user := fmt.Sprintf("p%d", i)
		if _, err := coordinator.Join(ctx, "ABCD12", identity(user)); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
		writers[i] = &fakeWriter{}
		conn, err := coordinator.Connect(ctx, "ABCD12", identity(user), writers[i])
		if err != nil {
			t.Fatalf("connect %s: %v", user, err)
		}
		conns[i] = conn
		defer coordinator.Disconnect(conn)
	}

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(conn *Conn) {
			defer wg.Done()
			if _, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
				QuestionOrdinal: 0, SelectedOption: "B", Points: 10, AnsweredAt: time.Now(),
			}); err != nil {
				t.Errorf("answer: %v", err)
			}
		}(conns[i])
	}
	wg.Wait()

	board, err := coordinator.Leaderboard(ctx, "ABCD12")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != players {
		t.Fatalf("expected %d entries, got %d", players, len(board))
	}
	for _, entry := range board {
		if entry.Score != 10 {
			t.Fatalf("expected every score recorded once, got %+v", board)
		}
	}

	for i, w := range writers {
		waitFor(t, func() bool { return w.countOf(domain.EventLeaderboard) == players })
		prev := 0
		for _, ev := range w.snapshot() {
			if ev.Type != domain.EventLeaderboard {
				continue
			}
			var snapshot domain.Leaderboard
			if err := json.Unmarshal(ev.Data, &snapshot); err != nil {
				t.Fatalf("unmarshal leaderboard: %v", err)
			}
			total := 0
			for _, entry := range snapshot {
				total += entry.Score
			}
			if total <= prev {
				t.Fatalf("connection %d saw leaderboard total go from %d to %d", i, prev, total)
			}
			prev = total
		}
		if prev != players*10 {
			t.Fatalf("connection %d ended at total %d, want %d", i, prev, players*10)
		}
	}
}

func TestRoomLockReapedAfterSubmissions(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomRunning)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", identity("p1")); err != nil {
		t.Fatalf("join: %v", err)
	}
	w := &fakeWriter{}
	conn, _ := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	defer coordinator.Disconnect(conn)

	if _, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
		QuestionOrdinal: 0, SelectedOption: "B", Points: 10, AnsweredAt: time.Now(),
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	coordinator.mu.Lock()
	remaining := len(coordinator.roomLocks)
	coordinator.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected room lock reaped after submission, %d entries left", remaining)
	}
}

func TestConcurrentStartsBroadcastOnce(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	w := &fakeWriter{}
	conn, err := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer coordinator.Disconnect(conn)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := coordinator.Start(ctx, "ABCD12", "host"); err != nil {
				t.Errorf("start: %v", err)
			}
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return w.countOf(domain.EventQuizStarted) >= 1 })
	time.Sleep(20 * time.Millisecond)
	if got := w.countOf(domain.EventQuizStarted); got != 1 {
		t.Fatalf("expected exactly one quiz_started under racing starts, got %d", got)
	}
}

func TestHandleAnswerBeforeStart(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomPending)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", identity("p1")); err != nil {
		t.Fatalf("join: %v", err)
	}
	w := &fakeWriter{}
	conn, _ := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	defer coordinator.Disconnect(conn)

	_, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{QuestionOrdinal: 0, SelectedOption: "B"})
	if err != domain.ErrRoomNotRunning {
		t.Fatalf("expected not-running error, got %v", err)
	}
}

func TestConnectUnknownRoom(t *testing.T) {
	coordinator, _ := newTestCoordinator(t)
	_, err := coordinator.Connect(context.Background(), "NOSUCH", identity("p1"), &fakeWriter{})
	if err != domain.ErrRoomNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParticipantResult(t *testing.T) {
	coordinator, store := newTestCoordinator(t)
	createFixedRoom(t, store, "ABCD12", domain.RoomRunning)
	ctx := context.Background()

	if _, err := coordinator.Join(ctx, "ABCD12", identity("p1")); err != nil {
		t.Fatalf("join: %v", err)
	}
	w := &fakeWriter{}
	conn, _ := coordinator.Connect(ctx, "ABCD12", identity("p1"), w)
	defer coordinator.Disconnect(conn)

	if _, err := coordinator.HandleAnswer(ctx, conn, domain.AnswerSubmission{
		QuestionOrdinal: 0, SelectedOption: "B", Points: 10, AnsweredAt: time.Now(),
	}); err != nil {
		t.Fatalf("answer: %v", err)
	}

	participant, answers, err := coordinator.ParticipantResult(ctx, "ABCD12", "p1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if participant.Score != 10 {
		t.Fatalf("expected score 10, got %d", participant.Score)
	}
	if len(answers) != 1 || !answers[0].Correct {
		t.Fatalf("expected one correct answer, got %+v", answers)
	}
}
