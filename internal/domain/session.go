package domain

import "time"

type SessionStatus string

const (
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// SessionRecord — одна append-only строка на участника за сессию.
// После создания запись не изменяется.
type SessionRecord struct {
	ID          string        `db:"id"`
	UserID      string        `db:"user_id"`
	RoomID      string        `db:"room_id"`
	StartTime   time.Time     `db:"start_time"`
	EndTime     time.Time     `db:"end_time"`
	DurationSec int64         `db:"duration_sec"`
	Status      SessionStatus `db:"status"`
	CreatedAt   time.Time     `db:"created_at"`
}
