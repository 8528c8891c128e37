package ws

import (
	"sync"
)

type Conn interface {
	Send(msg Message) error
	Close() error
	ID() string
	UserID() string
}

// Hub держит живые соединения: глобальный реестр по connId и подписки по
// комнатам. Рассылка best-effort, без персистентности.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn            // connID -> conn
	rooms  map[string]map[string]Conn // roomID -> connID -> conn
	joined map[string]string          // connID -> roomID
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		rooms:  make(map[string]map[string]Conn),
		joined: make(map[string]string),
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c.ID())
	delete(h.conns, c.ID())
}

// Subscribe переводит соединение в комнату roomID; прежняя подписка снимается.
func (h *Hub) Subscribe(c Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(c.ID())

	rs, ok := h.rooms[roomID]
	if !ok {
		rs = make(map[string]Conn)
		h.rooms[roomID] = rs
	}
	rs[c.ID()] = c
	h.joined[c.ID()] = roomID
}

func (h *Hub) Unsubscribe(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c.ID())
}

func (h *Hub) unsubscribeLocked(connID string) {
	roomID, ok := h.joined[connID]
	if !ok {
		return
	}
	delete(h.joined, connID)
	if rs, ok := h.rooms[roomID]; ok {
		delete(rs, connID)
		if len(rs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rs, ok := h.rooms[roomID]; ok {
		for _, c := range rs {
			_ = c.Send(msg) // best-effort
		}
	}
}

// BroadcastAll шлёт событие всем соединениям, включая не вошедшие в комнаты
// (room-updated / room-closed для экрана выбора комнаты).
func (h *Hub) BroadcastAll(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.conns {
		_ = c.Send(msg)
	}
}

// Kick закрывает вытесненное соединение (last-connection-wins).
func (h *Hub) Kick(connID string) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		_ = c.Close()
	}
}
