package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Append пишет одну неизменяемую запись сессии. Никаких UPDATE по этой
// таблице нет — история только дописывается.
func (r *SessionRepository) Append(ctx context.Context, rec *domain.SessionRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO focus_sessions (id, user_id, room_id, start_time, end_time, duration_sec, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.RoomID, rec.StartTime, rec.EndTime, rec.DurationSec, rec.Status)
	return err
}

type UserStatsRow struct {
	SessionCount int64
	TotalSec     int64
}

// UserStatsBetween — количество и суммарная длительность завершённых сессий
// пользователя в интервале [from, to).
func (r *SessionRepository) UserStatsBetween(ctx context.Context, userID string, from, to time.Time) (UserStatsRow, error) {
	var row UserStatsRow
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(duration_sec), 0)
		FROM focus_sessions
		WHERE user_id=$1 AND status=$2 AND start_time >= $3 AND start_time < $4
	`, userID, domain.SessionStatusCompleted, from, to).Scan(&row.SessionCount, &row.TotalSec)
	return row, err
}

// UserRoomIDsBetween — id комнат, в которых у пользователя были завершённые
// сессии в интервале [from, to).
func (r *SessionRepository) UserRoomIDsBetween(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT room_id
		FROM focus_sessions
		WHERE user_id=$1 AND status=$2 AND start_time >= $3 AND start_time < $4
	`, userID, domain.SessionStatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
