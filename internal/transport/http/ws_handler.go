package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quizroom-service/internal/app"
	"quizroom-service/internal/auth"
	"quizroom-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and wires them into the room
// coordinator.
type WSHandler struct {
	coordinator *app.RoomCoordinator
	verifier    auth.Verifier
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.RoomCoordinator, verifier auth.Verifier) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		verifier:    verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS handles GET /ws?room={code}&token={credential}. The credential is
// verified once here; the session then runs on the resulting identity.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room")
	token := r.URL.Query().Get("token")
	if roomCode == "" || token == "" {
		http.Error(w, "missing room or token", http.StatusBadRequest)
		return
	}

	identity, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	conn, err := h.coordinator.Connect(r.Context(), roomCode, identity, socket)
	if err != nil {
		_ = socket.WriteJSON(domain.NewEvent("error", errorPayload{Message: err.Error()}))
		_ = socket.Close()
		return
	}
	defer h.coordinator.Disconnect(conn)

	for {
		var inbound domain.Event
		if err := socket.ReadJSON(&inbound); err != nil {
			// Socket closed or broke; Disconnect handles the presence side.
			return
		}
		switch inbound.Type {
		case domain.EventChat:
			var text string
			if err := json.Unmarshal(inbound.Data, &text); err != nil {
				h.sendError(conn, "invalid chat payload")
				continue
			}
			h.coordinator.HandleChat(conn, text)
		case domain.EventAnswer:
			var sub domain.AnswerSubmission
			if err := json.Unmarshal(inbound.Data, &sub); err != nil {
				h.sendError(conn, "invalid answer payload")
				continue
			}
			if _, err := h.coordinator.HandleAnswer(r.Context(), conn, sub); err != nil {
				h.sendError(conn, err.Error())
			}
		default:
			h.sendError(conn, "unsupported message type")
		}
	}
}

func (h *WSHandler) sendError(conn *app.Conn, message string) {
	if !conn.Send(domain.NewEvent("error", errorPayload{Message: message})) {
		h.coordinator.Disconnect(conn)
	}
}
