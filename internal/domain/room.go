package domain

import "time"

type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusEnded   RoomStatus = "ended"
)

// RoomRecord — durable-запись комнаты. Создаётся лениво при первом старте
// сессии и обновляется только на границах start/end.
type RoomRecord struct {
	ID                 string                `db:"id"`
	Name               string                `db:"name"`
	OwnerID            string                `db:"owner_id"`
	Participants       []ParticipantSnapshot `db:"participants"`
	IsSessionActive    bool                  `db:"is_session_active"`
	RecentSessionStart time.Time             `db:"recent_session_start"`
	Duration           time.Duration         `db:"duration_ms"`
	Status             RoomStatus            `db:"status"`
	SessionIDs         []string              `db:"session_ids"`
	CreatedAt          time.Time             `db:"created_at"`
	UpdatedAt          time.Time             `db:"updated_at"`
}

// ParticipantSnapshot — участник на момент последней границы сессии.
type ParticipantSnapshot struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"userName"`
	JoinedAt    time.Time `json:"joinedAt"`
}
