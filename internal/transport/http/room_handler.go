package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"quizroom-service/internal/app"
	"quizroom-service/internal/auth"
	"quizroom-service/internal/domain"
)

// RoomHandler exposes the coordinator's request/response operations: room
// creation, join, start and post-game reads.
type RoomHandler struct {
	coordinator *app.RoomCoordinator
	verifier    auth.Verifier
}

func NewRoomHandler(coordinator *app.RoomCoordinator, verifier auth.Verifier) *RoomHandler {
	return &RoomHandler{coordinator: coordinator, verifier: verifier}
}

// Register wires the room routes onto mux.
func (h *RoomHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.createRoom)
	mux.HandleFunc("POST /rooms/{code}/join", h.joinRoom)
	mux.HandleFunc("POST /rooms/{code}/start", h.startRoom)
	mux.HandleFunc("GET /rooms/{code}/leaderboard", h.leaderboard)
	mux.HandleFunc("GET /rooms/{code}/participants/{user}/result", h.participantResult)
}

type createRoomRequest struct {
	QuizID string `json:"quizId"`
}

type createRoomResponse struct {
	RoomCode string `json:"roomCode"`
}

func (h *RoomHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	room, err := h.coordinator.CreateRoom(r.Context(), req.QuizID, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{RoomCode: room.Code})
}

func (h *RoomHandler) joinRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	result, err := h.coordinator.Join(r.Context(), r.PathValue("code"), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RoomHandler) startRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if err := h.coordinator.Start(r.Context(), r.PathValue("code"), identity.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	board, err := h.coordinator.Leaderboard(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

type participantResultResponse struct {
	Participant domain.Participant    `json:"participant"`
	Answers     []domain.AnswerRecord `json:"answers"`
}

func (h *RoomHandler) participantResult(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}
	participant, answers, err := h.coordinator.ParticipantResult(r.Context(), r.PathValue("code"), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantResultResponse{Participant: participant, Answers: answers})
}

func (h *RoomHandler) authenticate(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return domain.Identity{}, false
	}
	identity, err := h.verifier.Verify(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return domain.Identity{}, false
	}
	return identity, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.Classify(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindInvalidState:
		status = http.StatusConflict
	case domain.KindConflict:
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}
