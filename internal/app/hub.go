package app

import (
	"log"
	"sort"
	"sync"

	"quizroom-service/internal/domain"
)

// MessageWriter is the transport side of one duplex connection. The hub owns
// when it is written to and when it is closed.
type MessageWriter interface {
	WriteJSON(v any) error
	Close() error
}

// LivenessMarker mirrors room liveness into an external store (Redis). A nil
// marker disables mirroring.
type LivenessMarker interface {
	MarkLive(roomCode string)
	ClearLive(roomCode string)
}

const sendBuffer = 16

// Conn is one live connection filed under a (room, identity) pair. Ownership
// is exclusive to the hub entry it is registered in.
type Conn struct {
	hub      *Hub
	roomCode string
	identity domain.Identity

	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Conn) RoomCode() string          { return c.roomCode }
func (c *Conn) Identity() domain.Identity { return c.identity }

func (c *Conn) signalClose() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Send enqueues an event on this connection only. Reports false when the
// connection stopped draining its buffer; callers should treat that as a
// disconnect.
func (c *Conn) Send(ev domain.Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

type hubRoom struct {
	conns map[*Conn]struct{}
	// byIdentity keeps accept order per identity; the head of the slice is the
	// primary connection for unicast. Presence for an identity lasts until its
	// last connection goes away, so duplicated tabs never double-count.
	byIdentity map[string][]*Conn
	presence   map[string]domain.PresenceEntry
}

// Hub multiplexes live connections per room and provides fan-out. It is the
// only holder of shared in-memory room state; connection goroutines never
// touch its structures directly.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*hubRoom
	marker LivenessMarker
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*hubRoom)}
}

// NewHubWithLiveness mirrors room occupancy into marker.
func NewHubWithLiveness(marker LivenessMarker) *Hub {
	h := NewHub()
	h.marker = marker
	return h
}

// Accept registers a connection under a room, starts its writer goroutine and
// triggers a presence broadcast when the identity was not already present.
func (h *Hub) Accept(w MessageWriter, roomCode string, identity domain.Identity) *Conn {
	conn := &Conn{
		hub:      h,
		roomCode: roomCode,
		identity: identity,
		send:     make(chan domain.Event, sendBuffer),
		done:     make(chan struct{}),
	}

	go writePump(h, conn, w)

	h.mu.Lock()
	room, ok := h.rooms[roomCode]
	if !ok {
		room = &hubRoom{
			conns:      make(map[*Conn]struct{}),
			byIdentity: make(map[string][]*Conn),
			presence:   make(map[string]domain.PresenceEntry),
		}
		h.rooms[roomCode] = room
		if h.marker != nil {
			h.marker.MarkLive(roomCode)
		}
	}
	room.conns[conn] = struct{}{}
	room.byIdentity[identity.UserID] = append(room.byIdentity[identity.UserID], conn)

	var failed []*Conn
	if len(room.byIdentity[identity.UserID]) == 1 {
		room.presence[identity.UserID] = domain.PresenceEntry{
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
			Avatar:      identity.Avatar,
		}
		failed = h.broadcastLocked(roomCode, userListEvent(room))
	}
	h.mu.Unlock()

	h.dropAll(failed)
	return conn
}

// Remove unregisters a connection. Safe to call twice and concurrently with
// Accept; the second call is a no-op. When the last connection for the
// identity goes, the identity leaves presence and a user_list broadcast goes
// out. When the last connection of the room goes, the live room state is
// reaped (the persisted room row survives for post-game results).
func (h *Hub) Remove(conn *Conn) {
	h.mu.Lock()
	room, ok := h.rooms[conn.roomCode]
	if !ok {
		h.mu.Unlock()
		conn.signalClose()
		return
	}
	if _, registered := room.conns[conn]; !registered {
		h.mu.Unlock()
		conn.signalClose()
		return
	}
	delete(room.conns, conn)

	userID := conn.identity.UserID
	remaining := room.byIdentity[userID][:0]
	for _, c := range room.byIdentity[userID] {
		if c != conn {
			remaining = append(remaining, c)
		}
	}

	var failed []*Conn
	if len(remaining) == 0 {
		delete(room.byIdentity, userID)
		delete(room.presence, userID)
		if len(room.conns) == 0 {
			delete(h.rooms, conn.roomCode)
			if h.marker != nil {
				h.marker.ClearLive(conn.roomCode)
			}
		} else {
			failed = h.broadcastLocked(conn.roomCode, userListEvent(room))
		}
	} else {
		room.byIdentity[userID] = remaining
	}
	h.mu.Unlock()

	conn.signalClose()
	h.dropAll(failed)
}

// Broadcast delivers an event to every registered connection in the room.
// Delivery failures are isolated per connection: a failed connection is
// dropped and the rest still receive the event.
func (h *Hub) Broadcast(roomCode string, ev domain.Event) {
	h.mu.Lock()
	failed := h.broadcastLocked(roomCode, ev)
	h.mu.Unlock()
	h.dropAll(failed)
}

// SendToIdentity unicasts to the primary connection of an identity. A silent
// no-op when the identity has no live connection in the room.
func (h *Hub) SendToIdentity(roomCode, userID string, ev domain.Event) {
	h.mu.Lock()
	var target *Conn
	if room, ok := h.rooms[roomCode]; ok {
		if conns := room.byIdentity[userID]; len(conns) > 0 {
			target = conns[0]
		}
	}
	var failed []*Conn
	if target != nil {
		select {
		case target.send <- ev:
		default:
			failed = append(failed, target)
		}
	}
	h.mu.Unlock()
	h.dropAll(failed)
}

// Presence returns the identities currently present in a room, ordered by
// user id for determinism.
func (h *Hub) Presence(roomCode string) []domain.PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[roomCode]
	if !ok {
		return nil
	}
	return presenceSnapshot(room)
}

// broadcastLocked enqueues the event on every connection of the room while the
// hub lock is held, which gives per-room ordering across broadcasts. A full
// send buffer means the client stopped draining; it is reported back as failed
// so the caller can drop it without stalling the others.
func (h *Hub) broadcastLocked(roomCode string, ev domain.Event) []*Conn {
	room, ok := h.rooms[roomCode]
	if !ok {
		return nil
	}
	var failed []*Conn
	for conn := range room.conns {
		select {
		case conn.send <- ev:
		default:
			failed = append(failed, conn)
		}
	}
	return failed
}

func (h *Hub) dropAll(conns []*Conn) {
	for _, conn := range conns {
		log.Printf("room %s: dropping unresponsive connection for %s", conn.roomCode, conn.identity.UserID)
		h.Remove(conn)
	}
}

func presenceSnapshot(room *hubRoom) []domain.PresenceEntry {
	entries := make([]domain.PresenceEntry, 0, len(room.presence))
	for _, entry := range room.presence {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

func userListEvent(room *hubRoom) domain.Event {
	return domain.NewEvent(domain.EventUserList, presenceSnapshot(room))
}

// writePump drains the send channel onto the transport. A write error counts
// as a disconnect and runs the connection through Remove.
func writePump(h *Hub, conn *Conn, w MessageWriter) {
	defer w.Close()
	for {
		select {
		case ev := <-conn.send:
			if err := w.WriteJSON(ev); err != nil {
				log.Printf("room %s: write to %s failed: %v", conn.roomCode, conn.identity.UserID, err)
				h.Remove(conn)
				return
			}
		case <-conn.done:
			return
		}
	}
}
