package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
	"github.com/cwrk-planet/focus-service/internal/presence"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

type RoomRepository interface {
	// FindRoom возвращает domain.ErrRoomNotFound, если записи нет.
	FindRoom(ctx context.Context, id string) (*domain.RoomRecord, error)
	UpsertRoom(ctx context.Context, rec *domain.RoomRecord) error
}

type SessionRepository interface {
	Append(ctx context.Context, rec *domain.SessionRecord) error
}

type Presence interface {
	Room(roomID string) (presence.RoomView, bool)
	MarkSessionStarted(roomID string, startAt time.Time, d time.Duration) (presence.RoomView, bool)
	ClearSession(roomID string) (presence.RoomView, bool)
}

// Coordinator гарантирует не больше одной активной сессии на комнату и
// сверяет живое состояние с durable-записями.
//
// Политика персистентности — write-then-mirror: сначала подтверждённая
// durable-запись, только потом зеркалирование в память. При ошибке записи
// живое состояние остаётся нетронутым.
type Coordinator struct {
	rooms    RoomRepository
	sessions SessionRepository
	presence Presence

	locks keyedMutex
}

func NewCoordinator(rooms RoomRepository, sessions SessionRepository, p Presence) *Coordinator {
	return &Coordinator{
		rooms:    rooms,
		sessions: sessions,
		presence: p,
	}
}

type StartResult struct {
	IsNewSession bool
	SessionStart time.Time
	Duration     time.Duration
	Status       domain.RoomStatus
}

type EndResult struct {
	// Ended == true: комната переведена в ended, событие завершения можно
	// рассылать даже при ненулевой ошибке (частично потерянные записи
	// участников). Ended == false с ошибкой — сессия всё ещё активна.
	Ended        bool
	SessionStart time.Time
	EndTime      time.Time
	DurationSec  int64
}

// StartSession идемпотентен: если durable-запись уже держит активную сессию,
// второй вызов получает её параметры с IsNewSession=false, а не второй таймер.
func (c *Coordinator) StartSession(ctx context.Context, roomID string, startAt time.Time, duration time.Duration) (StartResult, error) {
	if roomID == "" || duration <= 0 {
		return StartResult{}, domain.ErrInvalidArgument
	}

	// критическая секция на комнату: durable-чтение, запись и зеркалирование
	// не должны перемежаться с другим start той же комнаты
	unlock := c.locks.lock(roomID)
	defer unlock()

	rec, err := c.rooms.FindRoom(ctx, roomID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		rec = nil
	case err != nil:
		return StartResult{}, persistErr("find room", err)
	}

	if rec != nil && rec.IsSessionActive {
		return StartResult{
			IsNewSession: false,
			SessionStart: rec.RecentSessionStart,
			Duration:     rec.Duration,
			Status:       rec.Status,
		}, nil
	}

	live, ok := c.presence.Room(roomID)
	if !ok {
		return StartResult{}, domain.ErrRoomNotFound
	}

	// durable-запись создаётся лениво, снапшотом живой комнаты
	if rec == nil {
		rec = &domain.RoomRecord{
			ID:           roomID,
			Name:         live.Name,
			OwnerID:      live.OwnerID,
			Participants: snapshotParticipants(live),
			SessionIDs:   []string{},
		}
	}

	rec.IsSessionActive = true
	rec.RecentSessionStart = startAt
	rec.Duration = duration
	rec.Status = domain.RoomStatusActive

	if err := c.rooms.UpsertRoom(ctx, rec); err != nil {
		return StartResult{}, persistErr("upsert room", err)
	}
	c.presence.MarkSessionStarted(roomID, startAt, duration)

	return StartResult{
		IsNewSession: true,
		SessionStart: startAt,
		Duration:     duration,
		Status:       domain.RoomStatusActive,
	}, nil
}

// EndSession завершает активную сессию и пишет по одной неизменяемой записи
// на каждого текущего участника. Участник, вошедший в середине сессии,
// получает зачёт только за время фактического присутствия.
//
// Ошибки отдельных участников не прерывают цикл: все записи пробуются,
// отказы агрегируются в одну ошибку, а переход комнаты в ended всё равно
// завершается — потеря одной исторической записи не должна ломать жизненный
// цикл комнаты.
func (c *Coordinator) EndSession(ctx context.Context, roomID string, endAt time.Time) (EndResult, error) {
	if roomID == "" {
		return EndResult{}, domain.ErrInvalidArgument
	}

	unlock := c.locks.lock(roomID)
	defer unlock()

	rec, err := c.rooms.FindRoom(ctx, roomID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return EndResult{}, domain.ErrNoActiveSession
	case err != nil:
		return EndResult{}, persistErr("find room", err)
	}
	if !rec.IsSessionActive {
		return EndResult{}, domain.ErrNoActiveSession
	}

	live, ok := c.presence.Room(roomID)
	if !ok || !live.SessionActive {
		return EndResult{}, domain.ErrNoActiveSession
	}

	var appendErrs error
	for _, p := range live.Participants {
		effStart := rec.RecentSessionStart
		if p.JoinedAt.After(effStart) {
			effStart = p.JoinedAt
		}
		durSec := int64(endAt.Sub(effStart) / time.Second)
		if durSec < 0 {
			durSec = 0 // end раньше effectiveStart: запись валидна, но нулевая
		}

		srec := &domain.SessionRecord{
			ID:          uuid.NewString(),
			UserID:      p.UserID,
			RoomID:      roomID,
			StartTime:   effStart,
			EndTime:     endAt,
			DurationSec: durSec,
			Status:      domain.SessionStatusCompleted,
		}
		if err := c.sessions.Append(ctx, srec); err != nil {
			appendErrs = multierr.Append(appendErrs, fmt.Errorf("participant %s: %w", p.UserID, err))
			continue
		}
		rec.SessionIDs = append(rec.SessionIDs, srec.ID)
	}

	rec.IsSessionActive = false
	rec.Status = domain.RoomStatusEnded
	rec.Participants = snapshotParticipants(live)

	if err := c.rooms.UpsertRoom(ctx, rec); err != nil {
		return EndResult{}, persistErr("upsert room", multierr.Append(appendErrs, err))
	}
	c.presence.ClearSession(roomID)

	totalSec := int64(endAt.Sub(rec.RecentSessionStart) / time.Second)
	if totalSec < 0 {
		totalSec = 0
	}
	res := EndResult{
		Ended:        true,
		SessionStart: rec.RecentSessionStart,
		EndTime:      endAt,
		DurationSec:  totalSec,
	}
	if appendErrs != nil {
		return res, persistErr("append session records", appendErrs)
	}
	return res, nil
}

func snapshotParticipants(v presence.RoomView) []domain.ParticipantSnapshot {
	out := make([]domain.ParticipantSnapshot, 0, len(v.Participants))
	for _, p := range v.Participants {
		out = append(out, domain.ParticipantSnapshot{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			JoinedAt:    p.JoinedAt,
		})
	}
	return out
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}
