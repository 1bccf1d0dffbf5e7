package app

import (
	"context"
	"sync"

	"quizroom-service/internal/domain"
)

// RoomCoordinator orchestrates session lifecycle and event routing. It is the
// only component exposed to external callers; registry, hub, processor and
// builder stay behind it.
type RoomCoordinator struct {
	registry *RoomRegistry
	hub      *Hub
	store    Store
	answers  *AnswerProcessor
	boards   *LeaderboardBuilder

	mu        sync.Mutex
	roomLocks map[string]*roomLock
}

// roomLock is a reference-counted entry in the coordinator's keyed-mutex map.
// The entry lives only while submissions for its room are in flight, so the
// map cannot grow with the number of room codes ever seen.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

func NewRoomCoordinator(store Store, questions QuestionSource, hub *Hub) *RoomCoordinator {
	return &RoomCoordinator{
		registry:  NewRoomRegistry(store),
		hub:       hub,
		store:     store,
		answers:   NewAnswerProcessor(store, questions),
		boards:    NewLeaderboardBuilder(store),
		roomLocks: make(map[string]*roomLock),
	}
}

// CreateRoom generates a room for the host and persists it in pending state.
func (c *RoomCoordinator) CreateRoom(ctx context.Context, quizID string, host domain.Identity) (domain.Room, error) {
	return c.registry.CreateRoom(ctx, quizID, host.UserID)
}

// Join registers the identity as a participant. Idempotent: re-joining
// returns the existing participant and never resets its score. The backing
// quiz id always comes back so late joiners can resume.
func (c *RoomCoordinator) Join(ctx context.Context, roomCode string, id domain.Identity) (domain.JoinResult, error) {
	room, err := c.registry.LookupRoom(ctx, roomCode)
	if err != nil {
		return domain.JoinResult{}, err
	}
	participant, created, err := c.store.GetOrCreateParticipant(ctx, roomCode, id)
	if err != nil {
		return domain.JoinResult{}, err
	}
	return domain.JoinResult{
		ParticipantID: participant.ID,
		QuizID:        room.QuizID,
		AlreadyJoined: !created,
		Score:         participant.Score,
	}, nil
}

// Start transitions the room to running and broadcasts quiz_started. Only the
// host may start; a duplicate start on a running or ended room is a no-op so
// double clicks stay harmless. The transition is a store-level compare-and-set,
// so racing starts broadcast quiz_started at most once.
func (c *RoomCoordinator) Start(ctx context.Context, roomCode, userID string) error {
	room, err := c.registry.LookupRoom(ctx, roomCode)
	if err != nil {
		return err
	}
	if room.HostID != userID {
		return domain.ErrNotHost
	}
	started, err := c.store.TransitionRoomState(ctx, roomCode, domain.RoomPending, domain.RoomRunning)
	if err != nil {
		return err
	}
	if !started {
		return nil
	}
	c.hub.Broadcast(roomCode, domain.NewEvent(domain.EventQuizStarted, nil))
	return nil
}

// Connect attaches a live connection to the room. The identity was verified
// by the auth collaborator before this point and is not re-verified.
func (c *RoomCoordinator) Connect(ctx context.Context, roomCode string, id domain.Identity, w MessageWriter) (*Conn, error) {
	if _, err := c.registry.LookupRoom(ctx, roomCode); err != nil {
		return nil, err
	}
	return c.hub.Accept(w, roomCode, id), nil
}

// Disconnect releases the connection's hub entry; presence broadcasting
// happens inside Remove. Answers and score survive for reconnects.
func (c *RoomCoordinator) Disconnect(conn *Conn) {
	c.hub.Remove(conn)
}

// HandleChat rebroadcasts a chat line to the room, prefixed with the sender's
// display name. Chat is ephemeral; nothing is persisted or validated beyond
// the sender holding a live connection.
func (c *RoomCoordinator) HandleChat(conn *Conn, text string) {
	line := conn.Identity().DisplayName + ": " + text
	c.hub.Broadcast(conn.RoomCode(), domain.NewEvent(domain.EventChat, line))
}

// HandleAnswer runs a submission through the processor, acks the submitter
// and broadcasts the refreshed leaderboard. Submissions for the same room are
// serialized so a stale leaderboard can never overwrite a newer one;
// different rooms proceed in parallel.
func (c *RoomCoordinator) HandleAnswer(ctx context.Context, conn *Conn, sub domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	lock := c.lockRoom(conn.RoomCode())
	defer c.unlockRoom(conn.RoomCode(), lock)

	outcome, err := c.answers.Submit(ctx, conn.RoomCode(), conn.Identity().UserID, sub)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}

	c.hub.SendToIdentity(conn.RoomCode(), conn.Identity().UserID, domain.NewEvent(domain.EventAnswerAck, outcome))

	board, err := c.boards.Build(ctx, conn.RoomCode())
	if err != nil {
		return outcome, err
	}
	c.hub.Broadcast(conn.RoomCode(), domain.NewEvent(domain.EventLeaderboard, board))
	return outcome, nil
}

// Leaderboard exposes the current snapshot for request/response callers.
func (c *RoomCoordinator) Leaderboard(ctx context.Context, roomCode string) (domain.Leaderboard, error) {
	if _, err := c.registry.LookupRoom(ctx, roomCode); err != nil {
		return nil, err
	}
	return c.boards.Build(ctx, roomCode)
}

// ParticipantResult returns one participant's answer history for the
// post-game result view.
func (c *RoomCoordinator) ParticipantResult(ctx context.Context, roomCode, userID string) (domain.Participant, []domain.AnswerRecord, error) {
	if _, err := c.registry.LookupRoom(ctx, roomCode); err != nil {
		return domain.Participant{}, nil, err
	}
	participant, err := c.store.GetParticipant(ctx, roomCode, userID)
	if err != nil {
		return domain.Participant{}, nil, err
	}
	answers, err := c.store.ListAnswers(ctx, roomCode, participant.ID)
	if err != nil {
		return domain.Participant{}, nil, err
	}
	return participant, answers, nil
}

func (c *RoomCoordinator) lockRoom(roomCode string) *roomLock {
	c.mu.Lock()
	lock, ok := c.roomLocks[roomCode]
	if !ok {
		lock = &roomLock{}
		c.roomLocks[roomCode] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *RoomCoordinator) unlockRoom(roomCode string, lock *roomLock) {
	lock.mu.Unlock()

	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.roomLocks, roomCode)
	}
	c.mu.Unlock()
}
