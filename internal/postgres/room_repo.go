package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/focus-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) FindRoom(ctx context.Context, id string) (*domain.RoomRecord, error) {
	query := `
		SELECT id, name, owner_id, participants, is_session_active,
		       COALESCE(recent_session_start, 'epoch'::timestamptz),
		       COALESCE(duration_ms, 0),
		       status, session_ids, created_at, updated_at
		FROM focus_rooms WHERE id=$1`

	var (
		rec          domain.RoomRecord
		participants []byte
		durationMs   int64
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Name, &rec.OwnerID, &participants, &rec.IsSessionActive,
		&rec.RecentSessionStart, &durationMs,
		&rec.Status, &rec.SessionIDs, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	rec.Duration = msToDuration(durationMs)
	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &rec.Participants); err != nil {
			return nil, fmt.Errorf("decode participants: %w", err)
		}
	}
	return &rec, nil
}

func (r *RoomRepository) UpsertRoom(ctx context.Context, rec *domain.RoomRecord) error {
	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	sessionIDs := rec.SessionIDs
	if sessionIDs == nil {
		sessionIDs = []string{}
	}

	query := `
		INSERT INTO focus_rooms
			(id, name, owner_id, participants, is_session_active,
			 recent_session_start, duration_ms, status, session_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name                 = EXCLUDED.name,
			owner_id             = EXCLUDED.owner_id,
			participants         = EXCLUDED.participants,
			is_session_active    = EXCLUDED.is_session_active,
			recent_session_start = EXCLUDED.recent_session_start,
			duration_ms          = EXCLUDED.duration_ms,
			status               = EXCLUDED.status,
			session_ids          = EXCLUDED.session_ids,
			updated_at           = now()`

	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.Name, rec.OwnerID, participants, rec.IsSessionActive,
		rec.RecentSessionStart, rec.Duration.Milliseconds(), rec.Status, sessionIDs,
	)
	return err
}

// ListByIDs возвращает комнаты по списку id, свежие сессии первыми.
func (r *RoomRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.RoomRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, name, owner_id, participants, is_session_active,
		       COALESCE(recent_session_start, 'epoch'::timestamptz),
		       COALESCE(duration_ms, 0),
		       status, session_ids, created_at, updated_at
		FROM focus_rooms
		WHERE id = ANY($1)
		ORDER BY recent_session_start DESC`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoomRecord
	for rows.Next() {
		var (
			rec          domain.RoomRecord
			participants []byte
			durationMs   int64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.OwnerID, &participants, &rec.IsSessionActive,
			&rec.RecentSessionStart, &durationMs,
			&rec.Status, &rec.SessionIDs, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.Duration = msToDuration(durationMs)
		if len(participants) > 0 {
			if err := json.Unmarshal(participants, &rec.Participants); err != nil {
				return nil, fmt.Errorf("decode participants: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
