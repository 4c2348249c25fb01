package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
)

// RoomHandler serves the HTTP bootstrap surface: room creation and the
// read-only snapshot a page fetches before the live channel connects.
type RoomHandler struct {
	service *app.RoomService
}

func NewRoomHandler(service *app.RoomService) *RoomHandler {
	return &RoomHandler{service: service}
}

type createRoomRequest struct {
	RoomID          string `json:"roomId"`
	HostID          string `json:"hostId"`
	QuizID          string `json:"quizId"`
	AccessMode      string `json:"accessMode"`
	AccessCode      string `json:"accessCode"`
	TimeMode        string `json:"timeMode"`
	MaxParticipants int    `json:"maxParticipants"`
}

// CreateRoom handles POST /rooms.
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.HostID == "" || req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "hostId and quizId are required")
		return
	}

	room, err := h.service.CreateRoom(r.Context(), app.CreateRoomParams{
		RoomID:          req.RoomID,
		HostID:          req.HostID,
		QuizID:          req.QuizID,
		AccessMode:      domain.AccessMode(req.AccessMode),
		AccessCode:      req.AccessCode,
		TimeMode:        domain.TimeMode(req.TimeMode),
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		status := http.StatusUnprocessableEntity
		if domain.ErrorCode(err) == "not_found" {
			status = http.StatusNotFound
		}
		writeError(w, status, domain.ErrorCode(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(room); err != nil {
		log.Warn().Err(err).Msg("encode create room response")
	}
}

// GetRoom handles GET /rooms/{id} with the current snapshot.
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	snap, err := h.service.Resync(r.Context(), roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, domain.ErrorCode(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		log.Warn().Err(err).Msg("encode room snapshot")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
