package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/focus-service/internal/domain"
	"github.com/cwrk-planet/focus-service/internal/presence"
	"github.com/cwrk-planet/focus-service/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Presence interface {
	AddParticipant(roomID, userID, displayName, connectionID string) presence.JoinResult
	RemoveParticipant(userID string, reason presence.LeaveReason) presence.LeaveResult
	User(userID string) (presence.User, bool)
	Room(roomID string) (presence.RoomView, bool)
}

type Sessions interface {
	StartSession(ctx context.Context, roomID string, startAt time.Time, duration time.Duration) (session.StartResult, error)
	EndSession(ctx context.Context, roomID string, endAt time.Time) (session.EndResult, error)
}

// Server — транспортный слой поверх координатора: принимает операции от
// клиентов, зовёт store/coordinator и выводит события из возвращённых
// результатов. Сам состояние не мутирует.
type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	presence Presence
	sessions Sessions

	pingEvery time.Duration
}

func NewServer(hub *Hub, p Presence, s Sessions) *Server {
	return &Server{
		hub:      hub,
		presence: p,
		sessions: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
	}
}

// WS endpoint: GET /ws?access_token=...&user_id=...&name=...
// user_id приходит уже проверенным внешним identity provider'ом.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accessToken := strings.TrimSpace(q.Get("access_token"))
	userID := strings.TrimSpace(q.Get("user_id"))
	name := strings.TrimSpace(q.Get("name"))
	if accessToken == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	if userID == "" {
		http.Error(w, "missing user_id", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, userID, name)
	s.hub.Add(c)

	go s.writeLoop(r.Context(), c)
	s.readLoop(r.Context(), c)

	s.cleanup(c)

	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "user", userID, "err", err)
	}
}

// cleanup вызывается на выходе из readLoop: и при обрыве, и после Kick.
// Вытесненное соединение не должно удалять пользователя, который уже
// переподключился с новым connId.
func (s *Server) cleanup(c *wsConn) {
	s.hub.Remove(c)

	u, ok := s.presence.User(c.userID)
	if !ok || u.ConnectionID != c.id {
		return // last-connection-wins: это соединение уже не актуально
	}

	res := s.presence.RemoveParticipant(c.userID, presence.ReasonConnectionLost)
	if res.Removed {
		s.emitLeft(res)
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case TypeJoinRoom:
			s.handleJoin(c, msg.Payload)
		case TypeLeaveRoom:
			s.handleLeave(c, msg.Payload)
		case TypeStartSession:
			s.handleStartSession(ctx, c, msg.Payload)
		case TypeEndSession:
			s.handleEndSession(ctx, c, msg.Payload)
		default:
			// ignore
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

// --- операции ---

func (s *Server) handleJoin(c *wsConn, payload interface{}) {
	var p JoinRoomPayload
	if decode(payload, &p) != nil || p.RoomID == "" {
		c.ack(TypeJoinRoom, http.StatusBadRequest, "roomId required")
		return
	}
	if p.Name != "" {
		c.name = p.Name
	}

	res := s.presence.AddParticipant(p.RoomID, c.userID, c.name, c.id)

	if res.StaleConnectionID != "" {
		s.hub.Kick(res.StaleConnectionID)
	}
	s.hub.Subscribe(c, p.RoomID)

	// события прежней комнаты, если пользователь перешёл из другой
	if res.PreviousRoomID != "" {
		if res.PreviousRoomClosed {
			s.hub.BroadcastAll(Message{Type: TypeRoomClosed, Payload: RoomClosedPayload{RoomID: res.PreviousRoomID}})
		} else if res.PreviousRoom != nil {
			s.hub.Broadcast(res.PreviousRoomID, Message{
				Type:    TypePresenceUpdate,
				Payload: presencePayload(*res.PreviousRoom, ChangedUser{UserID: c.userID, Name: c.name, State: StateLeft}),
			})
			s.broadcastRoomUpdated(*res.PreviousRoom)
		}
	}

	s.hub.Broadcast(p.RoomID, Message{
		Type:    TypePresenceUpdate,
		Payload: presencePayload(res.Room, ChangedUser{UserID: c.userID, Name: c.name, State: StateJoin}),
	})
	s.broadcastRoomUpdated(res.Room)

	// синхронизация бегущей сессии вновь вошедшему
	if res.Room.SessionActive {
		_ = c.Send(Message{
			Type: TypeSessionSync,
			Payload: SessionStartedPayload{
				StartTime:   res.Room.SessionStart.UnixMilli(),
				DurationSec: int64(res.Room.SessionDuration / time.Second),
			},
		})
	}

	c.ackRoom(TypeJoinRoom, http.StatusOK, "joined", res.Room.Name)
}

func (s *Server) handleLeave(c *wsConn, payload interface{}) {
	var p LeaveRoomPayload
	if decode(payload, &p) != nil || p.RoomID == "" {
		c.ack(TypeLeaveRoom, http.StatusBadRequest, "roomId required")
		return
	}

	res := s.presence.RemoveParticipant(c.userID, presence.ReasonExplicitLeave)
	s.hub.Unsubscribe(c)

	// выход отсутствующего пользователя — no-op, не ошибка
	if res.Removed {
		s.emitLeft(res)
	}

	c.ack(TypeLeaveRoom, http.StatusOK, "left")
}

func (s *Server) handleStartSession(ctx context.Context, c *wsConn, payload interface{}) {
	var p StartSessionPayload
	if decode(payload, &p) != nil || p.RoomID == "" || p.DurationSeconds <= 0 {
		c.ack(TypeStartSession, http.StatusBadRequest, "roomId and durationSeconds required")
		return
	}

	startAt := time.Now()
	res, err := s.sessions.StartSession(ctx, p.RoomID, startAt, time.Duration(p.DurationSeconds)*time.Second)
	if err != nil {
		c.ack(TypeStartSession, statusFor(err), err.Error())
		return
	}
	if !res.IsNewSession {
		c.ack(TypeStartSession, http.StatusConflict, "Session already running")
		return
	}

	s.hub.Broadcast(p.RoomID, Message{
		Type: TypeSessionStarted,
		Payload: SessionStartedPayload{
			StartTime:   res.SessionStart.UnixMilli(),
			DurationSec: int64(res.Duration / time.Second),
		},
	})
	s.broadcastRoomUpdatedByID(p.RoomID)

	c.ack(TypeStartSession, http.StatusOK, "started")
}

func (s *Server) handleEndSession(ctx context.Context, c *wsConn, payload interface{}) {
	var p EndSessionPayload
	if decode(payload, &p) != nil || p.RoomID == "" {
		c.ack(TypeEndSession, http.StatusBadRequest, "roomId required")
		return
	}

	endAt := time.Now()
	if p.EndTime > 0 {
		endAt = time.UnixMilli(p.EndTime)
	}

	res, err := s.sessions.EndSession(ctx, p.RoomID, endAt)
	if err != nil && !res.Ended {
		// сессия всё ещё активна: успех не подтверждаем
		c.ack(TypeEndSession, statusFor(err), err.Error())
		return
	}
	if err != nil {
		// комната уже переведена в ended; потерянные записи участников
		// агрегированы в одну ошибку — логируем, но цикл комнаты не ломаем
		slog.Error("end-session: partial persistence failure", "room", p.RoomID, "err", err)
	}

	s.hub.Broadcast(p.RoomID, Message{
		Type: TypeSessionEnded,
		Payload: SessionEndedPayload{
			StartTime:   res.SessionStart.UnixMilli(),
			EndTime:     res.EndTime.UnixMilli(),
			DurationSec: res.DurationSec,
		},
	})
	s.broadcastRoomUpdatedByID(p.RoomID)

	c.ack(TypeEndSession, http.StatusOK, "ended")
}

// --- события ---

// OwnerGraceExpired реализует presence.Sink: грейс-окно истекло, временный
// владелец стал постоянным. Единственное событие смены владельца.
func (s *Server) OwnerGraceExpired(room presence.RoomView) {
	s.hub.Broadcast(room.ID, Message{
		Type:    TypePresenceUpdate,
		Payload: presencePayload(room, ChangedUser{UserID: room.OwnerID, Name: nameOf(room, room.OwnerID), State: StateOwnerChanged}),
	})
}

func (s *Server) emitLeft(res presence.LeaveResult) {
	if res.RoomClosed {
		s.hub.BroadcastAll(Message{Type: TypeRoomClosed, Payload: RoomClosedPayload{RoomID: res.RoomID}})
		return
	}
	if res.Room == nil {
		return
	}
	s.hub.Broadcast(res.RoomID, Message{
		Type:    TypePresenceUpdate,
		Payload: presencePayload(*res.Room, ChangedUser{UserID: res.User.UserID, Name: res.User.DisplayName, State: StateLeft}),
	})
	s.broadcastRoomUpdated(*res.Room)
}

func (s *Server) broadcastRoomUpdated(room presence.RoomView) {
	p := RoomUpdatedPayload{
		RoomID:            room.ID,
		RoomName:          room.Name,
		ParticipantsCount: len(room.Participants),
		IsSessionActive:   room.SessionActive,
		OwnerID:           room.OwnerID,
	}
	if room.SessionActive {
		startMs := room.SessionStart.UnixMilli()
		durSec := int64(room.SessionDuration / time.Second)
		p.SessionStart = &startMs
		p.DurationSec = &durSec
	}
	s.hub.BroadcastAll(Message{Type: TypeRoomUpdated, Payload: p})
}

func (s *Server) broadcastRoomUpdatedByID(roomID string) {
	if room, ok := s.presence.Room(roomID); ok {
		s.broadcastRoomUpdated(room)
	}
}

func presencePayload(room presence.RoomView, changed ChangedUser) PresenceUpdatePayload {
	users := make([]UserRef, 0, len(room.Participants))
	for _, p := range room.Participants {
		users = append(users, UserRef{UserID: p.UserID, Name: p.DisplayName})
	}
	return PresenceUpdatePayload{
		Users:            users,
		OwnerID:          room.OwnerID,
		IsOwnerTemporary: room.OwnerTemporary,
		ChangedUser:      changed,
	}
}

func nameOf(room presence.RoomView, userID string) string {
	for _, p := range room.Participants {
		if p.UserID == userID {
			return p.DisplayName
		}
	}
	return "Unknown Host"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoActiveSession):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- helpers ---

func decode(payload interface{}, dst interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, dst)
}

type wsConn struct {
	conn      *websocket.Conn
	id        string
	userID    string
	name      string
	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, userID, name string) *wsConn {
	return &wsConn{
		conn:   c,
		id:     uuid.NewString(),
		userID: userID,
		name:   name,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg Message) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

// Close безопасен для конкурентных вызовов: собственный readLoop соединения
// и Kick со стороны нового соединения могут закрывать его одновременно.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

func (c *wsConn) ack(op string, status int, message string) {
	_ = c.Send(Message{Type: TypeAck, Payload: AckPayload{Op: op, Status: status, Message: message}})
}

func (c *wsConn) ackRoom(op string, status int, message, roomName string) {
	_ = c.Send(Message{Type: TypeAck, Payload: AckPayload{Op: op, Status: status, Message: message, RoomName: roomName}})
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }
