package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/focus-service/internal/presence"
	"github.com/cwrk-planet/focus-service/internal/service"
	httpmw "github.com/cwrk-planet/focus-service/internal/transport/http/middleware"
)

type Snapshots interface {
	Snapshot(includeParticipants bool) []presence.RoomSummary
	GetOrCreateRoom(roomID, name string) presence.RoomView
}

type Handler struct {
	snapshots Snapshots
	statsSvc  *service.StatsService
}

func NewHandler(snapshots Snapshots, stats *service.StatsService) *Handler {
	return &Handler{
		snapshots: snapshots,
		statsSvc:  stats,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /rooms/active?includeParticipants=true
// Снапшот живых комнат, только память — без чтения базы.
func (h *Handler) GetActiveRooms(w http.ResponseWriter, r *http.Request) {
	include := r.URL.Query().Get("includeParticipants") == "true"
	writeJSON(w, http.StatusOK, h.snapshots.Snapshot(include))
}

// POST /rooms
// Создаёт комнату в памяти; durable-запись появится при первом старте сессии.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if req.RoomID == "" || req.RoomName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "roomId and roomName required"})
		return
	}

	room := h.snapshots.GetOrCreateRoom(req.RoomID, req.RoomName)

	writeJSON(w, http.StatusCreated, CreateRoomResponse{
		RoomID:   room.ID,
		RoomName: room.Name,
	})
}

// GET /users/sessions
// Дневная статистика завершённых сессий текущего пользователя.
func (h *Handler) GetUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}

	count, totalSec, err := h.statsSvc.TodaySessions(r.Context(), userID)
	if err != nil {
		slog.Error("handler.GetUserSessions:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, UserSessionsResponse{
		SessionCount:         count,
		TotalSessionDuration: totalSec,
	})
}

// GET /users/rooms
// Комнаты, где пользователь сегодня завершал сессии.
func (h *Handler) GetUserRooms(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing user id"})
		return
	}

	rooms, err := h.statsSvc.TodayRooms(r.Context(), userID)
	if err != nil {
		slog.Error("handler.GetUserRooms:", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	items := make([]UserRoomItem, 0, len(rooms))
	for _, rm := range rooms {
		parts := make([]UserRoomParticipant, 0, len(rm.Participants))
		for _, p := range rm.Participants {
			parts = append(parts, UserRoomParticipant{UserID: p.UserID, Name: p.DisplayName})
		}
		items = append(items, UserRoomItem{
			RoomID:          rm.ID,
			RoomName:        rm.Name,
			Participants:    parts,
			IsSessionActive: rm.IsSessionActive,
		})
	}

	writeJSON(w, http.StatusOK, items)
}
