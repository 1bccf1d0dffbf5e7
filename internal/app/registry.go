package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"quizroom-service/internal/domain"
)

const (
	roomCodeLength = 6
	// 0/O and 1/I are left out so codes survive being read aloud.
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// codeRetries bounds collision retries; running out signals that the code
	// space is effectively full, not a normal failure.
	codeRetries = 5
)

// RoomRegistry creates and looks up rooms. Codes are generated locally and
// collision-checked against the store.
type RoomRegistry struct {
	store Store
	rnd   *rand.Rand
	now   func() time.Time
}

func NewRoomRegistry(store Store) *RoomRegistry {
	return newRoomRegistry(store, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// newRoomRegistry allows deterministic codes and timestamps in tests.
func newRoomRegistry(store Store, rnd *rand.Rand, now func() time.Time) *RoomRegistry {
	return &RoomRegistry{store: store, rnd: rnd, now: now}
}

// CreateRoom persists a pending room under a fresh code and returns it.
func (r *RoomRegistry) CreateRoom(ctx context.Context, quizID, hostID string) (domain.Room, error) {
	for attempt := 0; attempt < codeRetries; attempt++ {
		room := domain.Room{
			Code:      r.generateCode(),
			QuizID:    quizID,
			HostID:    hostID,
			State:     domain.RoomPending,
			CreatedAt: r.now(),
		}
		err := r.store.CreateRoom(ctx, room)
		if err == nil {
			return room, nil
		}
		if err == domain.ErrRoomCodeTaken {
			continue
		}
		return domain.Room{}, fmt.Errorf("create room: %w", err)
	}
	return domain.Room{}, domain.ErrRoomCodesExhausted
}

// LookupRoom returns the room for a code or domain.ErrRoomNotFound.
func (r *RoomRegistry) LookupRoom(ctx context.Context, code string) (domain.Room, error) {
	return r.store.GetRoom(ctx, code)
}

func (r *RoomRegistry) generateCode() string {
	buf := make([]byte, roomCodeLength)
	for i := range buf {
		buf[i] = roomCodeAlphabet[r.rnd.Intn(len(roomCodeAlphabet))]
	}
	return string(buf)
}
