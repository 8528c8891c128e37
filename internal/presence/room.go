package presence

import (
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
)

// Participant — живой участник комнаты.
type Participant struct {
	UserID       string
	DisplayName  string
	ConnectionID string
	JoinedAt     time.Time
}

// User — подключённый пользователь; не больше одной записи на userId.
type User struct {
	UserID       string
	DisplayName  string
	RoomID       string
	ConnectionID string
	ConnectedAt  time.Time
}

type sessionState struct {
	active   bool
	startAt  time.Time
	duration time.Duration
}

type ownerState struct {
	id        string
	temporary bool
}

// graceWindow держит отложенную передачу владения после обрыва соединения.
// generation отсекает срабатывания уже отменённых таймеров.
type graceWindow struct {
	prevOwnerID string
	timer       *time.Timer
	generation  uint64
}

type room struct {
	id   string
	name string

	participants map[string]*Participant
	order        []string // порядок вступления; первый — старейший

	session sessionState
	owner   ownerState
	grace   graceWindow
	status  domain.RoomStatus
}

func newRoom(id, name string) *room {
	return &room{
		id:           id,
		name:         name,
		participants: make(map[string]*Participant),
		status:       domain.RoomStatusWaiting,
	}
}

func (r *room) addParticipant(p *Participant) {
	if _, ok := r.participants[p.UserID]; !ok {
		r.order = append(r.order, p.UserID)
	}
	r.participants[p.UserID] = p
}

func (r *room) removeParticipant(userID string) bool {
	if _, ok := r.participants[userID]; !ok {
		return false
	}
	delete(r.participants, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// oldestParticipant возвращает userId старейшего оставшегося участника
// (детерминированный выбор нового владельца).
func (r *room) oldestParticipant() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.order[0]
}

// RoomView — read-only копия состояния комнаты; безопасна вне лока стора.
type RoomView struct {
	ID              string
	Name            string
	Participants    []Participant
	OwnerID         string
	OwnerTemporary  bool
	SessionActive   bool
	SessionStart    time.Time
	SessionDuration time.Duration
	Status          domain.RoomStatus
}

func (r *room) view() RoomView {
	parts := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		parts = append(parts, *r.participants[id])
	}
	return RoomView{
		ID:              r.id,
		Name:            r.name,
		Participants:    parts,
		OwnerID:         r.owner.id,
		OwnerTemporary:  r.owner.temporary,
		SessionActive:   r.session.active,
		SessionStart:    r.session.startAt,
		SessionDuration: r.session.duration,
		Status:          r.status,
	}
}
