package presence

import (
	"sort"

	"github.com/cwrk-planet/focus-service/internal/domain"
)

// SummaryParticipant — идентичность участника в снапшоте.
type SummaryParticipant struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// RoomSummary — сериализуемое представление комнаты для клиентов,
// ещё не подключённых к ней. Только живое состояние, без durable-данных:
// это высокочастотный polling-путь, лишнее чтение из базы здесь ни к чему.
type RoomSummary struct {
	RoomID            string               `json:"roomId"`
	RoomName          string               `json:"roomName"`
	ParticipantsCount int                  `json:"participantsCount"`
	Participants      []SummaryParticipant `json:"participants,omitempty"`
	IsSessionActive   bool                 `json:"isSessionActive"`
	SessionStart      *int64               `json:"sessionStart"` // unix ms
	Duration          *int64               `json:"duration"`     // ms
	OwnerID           string               `json:"ownerId"`
	RoomStatus        domain.RoomStatus    `json:"roomStatus"`
}

// Snapshot возвращает состояние всех живых комнат на момент вызова,
// отсортированное по roomId. Ничего не мутирует.
func (s *Store) Snapshot(includeParticipants bool) []RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RoomSummary, 0, len(s.rooms))
	for id, r := range s.rooms {
		sum := RoomSummary{
			RoomID:            id,
			RoomName:          r.name,
			ParticipantsCount: len(r.participants),
			IsSessionActive:   r.session.active,
			OwnerID:           r.owner.id,
			RoomStatus:        r.status,
		}
		if r.session.active {
			startMs := r.session.startAt.UnixMilli()
			durMs := r.session.duration.Milliseconds()
			sum.SessionStart = &startMs
			sum.Duration = &durMs
		}
		if includeParticipants {
			sum.Participants = make([]SummaryParticipant, 0, len(r.order))
			for _, uid := range r.order {
				p := r.participants[uid]
				sum.Participants = append(sum.Participants, SummaryParticipant{
					UserID: p.UserID,
					Name:   p.DisplayName,
				})
			}
		}
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
