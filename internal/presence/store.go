package presence

import (
	"sync"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
)

// LeaveReason различает добровольный выход и обрыв соединения:
// только обрыв даёт владельцу грейс-окно на возврат.
type LeaveReason string

const (
	ReasonExplicitLeave  LeaveReason = "leave-room"
	ReasonConnectionLost LeaveReason = "connection-lost"
)

// Sink получает асинхронные события стора (истечение грейс-окна владельца).
// Вызывается вне лока; реализуется транспортным слоем.
type Sink interface {
	OwnerGraceExpired(room RoomView)
}

// Store — единственный владелец живых карт комнат и пользователей.
// Все операции атомарны относительно друг друга и не выполняют I/O;
// транспорт выводит события из возвращаемых результатов.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*room
	users map[string]*User

	defaultName string
	gracePeriod time.Duration
	sink        Sink
}

type Options struct {
	DefaultRoomName string
	GracePeriod     time.Duration
}

func NewStore(opts Options) *Store {
	if opts.DefaultRoomName == "" {
		opts.DefaultRoomName = "My room"
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 8 * time.Second
	}
	return &Store{
		rooms:       make(map[string]*room),
		users:       make(map[string]*User),
		defaultName: opts.DefaultRoomName,
		gracePeriod: opts.GracePeriod,
	}
}

// SetSink подключает получателя асинхронных событий. Вызывать до первого Join.
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// GetOrCreateRoom возвращает существующую комнату или создаёт пустую
// в статусе waiting. Пустое имя заменяется дефолтным из конфига.
func (s *Store) GetOrCreateRoom(roomID, name string) RoomView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateRoomLocked(roomID, name).view()
}

func (s *Store) getOrCreateRoomLocked(roomID, name string) *room {
	if r, ok := s.rooms[roomID]; ok {
		return r
	}
	if name == "" {
		name = s.defaultName
	}
	r := newRoom(roomID, name)
	s.rooms[roomID] = r
	return r
}

func (s *Store) Room(roomID string) (RoomView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	return r.view(), true
}

func (s *Store) User(userID string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// JoinResult описывает эффект AddParticipant; транспорт выводит из него
// события и, при необходимости, закрывает вытесненное соединение.
type JoinResult struct {
	User User
	Room RoomView

	// StaleConnectionID — прежнее соединение пользователя, которое транспорт
	// обязан закрыть (last-connection-wins). Пустое, если вытеснять нечего.
	StaleConnectionID string

	// PreviousRoomID / PreviousRoom — комната, из которой пользователь был
	// удалён при переходе. PreviousRoom == nil, если комната опустела и была
	// удалена (PreviousRoomClosed).
	PreviousRoomID     string
	PreviousRoom       *RoomView
	PreviousRoomClosed bool

	// OwnerRestored — пользователь вернулся в своё грейс-окно; владение
	// восстановлено без события смены владельца.
	OwnerRestored bool
}

// AddParticipant выполняет вход в комнату как одну атомарную операцию:
// вытеснение старого соединения, перенос из прежней комнаты, upsert
// пользователя и участника, назначение/восстановление владельца.
func (s *Store) AddParticipant(roomID, userID, displayName, connectionID string) JoinResult {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var res JoinResult

	if prev, ok := s.users[userID]; ok {
		if prev.ConnectionID != connectionID {
			res.StaleConnectionID = prev.ConnectionID
		}
		if prev.RoomID != "" && prev.RoomID != roomID {
			if oldRoom, ok := s.rooms[prev.RoomID]; ok {
				res.PreviousRoomID = prev.RoomID
				// переход в другую комнату равносилен явному выходу
				lr := s.removeFromRoomLocked(oldRoom, userID, ReasonExplicitLeave)
				res.PreviousRoom = lr.Room
				res.PreviousRoomClosed = lr.RoomClosed
			}
		}
	}

	u := &User{
		UserID:       userID,
		DisplayName:  displayName,
		RoomID:       roomID,
		ConnectionID: connectionID,
		ConnectedAt:  now,
	}
	s.users[userID] = u

	r := s.getOrCreateRoomLocked(roomID, "")
	if p, ok := r.participants[userID]; ok {
		// повторный join в ту же комнату: обновляем соединение, JoinedAt не трогаем
		p.DisplayName = displayName
		p.ConnectionID = connectionID
	} else {
		r.addParticipant(&Participant{
			UserID:       userID,
			DisplayName:  displayName,
			ConnectionID: connectionID,
			JoinedAt:     now,
		})
	}

	res.OwnerRestored = s.assignOrRestoreOwnerLocked(r, userID)
	res.User = *u
	res.Room = r.view()
	return res
}

// LeaveResult описывает эффект RemoveParticipant.
type LeaveResult struct {
	// Removed == false: пользователя не было, операция — no-op.
	Removed bool
	User    User

	RoomID string
	// Room == nil, если комната удалена (RoomClosed) либо не существовала.
	Room       *RoomView
	RoomClosed bool
	WasOwner   bool
}

// RemoveParticipant убирает пользователя из его комнаты, переназначает
// владельца согласно reason и удаляет опустевшую комнату вместе с её
// грейс-таймером. Повторный вызов для отсутствующего пользователя — no-op.
func (s *Store) RemoveParticipant(userID string, reason LeaveReason) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return LeaveResult{}
	}
	delete(s.users, userID)

	res := LeaveResult{Removed: true, User: *u, RoomID: u.RoomID}
	r, ok := s.rooms[u.RoomID]
	if !ok {
		return res
	}

	lr := s.removeFromRoomLocked(r, userID, reason)
	res.Room = lr.Room
	res.RoomClosed = lr.RoomClosed
	res.WasOwner = lr.WasOwner
	return res
}

type roomRemoval struct {
	Room       *RoomView
	RoomClosed bool
	WasOwner   bool
}

func (s *Store) removeFromRoomLocked(r *room, userID string, reason LeaveReason) roomRemoval {
	var out roomRemoval
	if !r.removeParticipant(userID) {
		if len(r.participants) > 0 {
			v := r.view()
			out.Room = &v
		}
		return out
	}

	// комната опустела: таймер обязан быть погашен до удаления,
	// иначе он сработает по уже несуществующей комнате
	if len(r.participants) == 0 {
		s.cancelGraceLocked(r)
		delete(s.rooms, r.id)
		out.RoomClosed = true
		return out
	}

	out.WasOwner = r.owner.id == userID
	if out.WasOwner {
		s.reassignOwnerLocked(r, userID, reason)
	}

	v := r.view()
	out.Room = &v
	return out
}

// MarkSessionStarted зеркалирует подтверждённый durable-старт в живую комнату.
func (s *Store) MarkSessionStarted(roomID string, startAt time.Time, d time.Duration) (RoomView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	r.session = sessionState{active: true, startAt: startAt, duration: d}
	r.status = domain.RoomStatusActive
	return r.view(), true
}

// ClearSession сбрасывает сессионные поля после подтверждённого завершения.
func (s *Store) ClearSession(roomID string) (RoomView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	r.session = sessionState{}
	r.status = domain.RoomStatusEnded
	return r.view(), true
}
