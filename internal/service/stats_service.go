package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
	"github.com/cwrk-planet/focus-service/internal/postgres"
)

// StatsService отдаёт дневную статистику пользователя по durable-записям.
type StatsService struct {
	roomRepo    *postgres.RoomRepository
	sessionRepo *postgres.SessionRepository
}

func NewStatsService(roomRepo *postgres.RoomRepository, sessionRepo *postgres.SessionRepository) *StatsService {
	return &StatsService{
		roomRepo:    roomRepo,
		sessionRepo: sessionRepo,
	}
}

// TodaySessions — число завершённых сессий пользователя за сегодня и их
// суммарная длительность в секундах.
func (s *StatsService) TodaySessions(ctx context.Context, userID string) (count, totalSec int64, err error) {
	from, to := todayBounds()
	row, err := s.sessionRepo.UserStatsBetween(ctx, userID, from, to)
	if err != nil {
		return 0, 0, err
	}
	return row.SessionCount, row.TotalSec, nil
}

// TodayRooms — комнаты, в которых пользователь сегодня завершал сессии,
// свежие первыми.
func (s *StatsService) TodayRooms(ctx context.Context, userID string) ([]domain.RoomRecord, error) {
	from, to := todayBounds()
	ids, err := s.sessionRepo.UserRoomIDsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.roomRepo.ListByIDs(ctx, ids)
}

func todayBounds() (from, to time.Time) {
	now := time.Now()
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 1)
}
