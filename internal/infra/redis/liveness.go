package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomLiveness marks occupied rooms in Redis so operators (or a future
// cross-instance router) can see which rooms hold live connections.
// Best-effort: a marker write failure never blocks the hub.
type RoomLiveness struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomLiveness(client *redis.Client, ttl time.Duration) *RoomLiveness {
	return &RoomLiveness{client: client, ttl: ttl}
}

func (l *RoomLiveness) MarkLive(roomCode string) {
	_ = l.client.Set(context.Background(), l.key(roomCode), "1", l.ttl).Err()
}

func (l *RoomLiveness) ClearLive(roomCode string) {
	_ = l.client.Del(context.Background(), l.key(roomCode)).Err()
}

func (l *RoomLiveness) key(roomCode string) string {
	return "room:live:" + roomCode
}
