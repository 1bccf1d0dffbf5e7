package app

import (
	"context"
	"sort"

	"quizroom-service/internal/domain"
)

// LeaderboardBuilder derives ranked snapshots from participant scores.
type LeaderboardBuilder struct {
	store Store
}

func NewLeaderboardBuilder(store Store) *LeaderboardBuilder {
	return &LeaderboardBuilder{store: store}
}

// Build returns the room's leaderboard ordered by score descending. Ties
// break by earlier join time, then user id, so unchanged scores always yield
// an identical ordering. Ranks follow competition ranking: equal scores share
// a rank and the next distinct score resumes at previous rank + number tied.
// A room with no participants yields an empty snapshot, not an error.
func (b *LeaderboardBuilder) Build(ctx context.Context, roomCode string) (domain.Leaderboard, error) {
	participants, err := b.store.ListParticipants(ctx, roomCode)
	if err != nil {
		return nil, err
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})

	board := make(domain.Leaderboard, 0, len(participants))
	for i, p := range participants {
		rank := i + 1
		if i > 0 && p.Score == participants[i-1].Score {
			rank = board[i-1].Rank
		}
		board = append(board, domain.LeaderboardEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Rank:        rank,
			Score:       p.Score,
		})
	}
	return board, nil
}
