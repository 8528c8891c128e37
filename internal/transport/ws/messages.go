package ws

// Типы операций, которые принимает WS
const (
	TypeJoinRoom     = "join-room"
	TypeLeaveRoom    = "leave-room"
	TypeStartSession = "start-session"
	TypeEndSession   = "end-session"
)

// Типы событий, которые WS рассылает клиентам
const (
	TypeAck            = "ack"
	TypePresenceUpdate = "presence-update" // состав комнаты и владелец
	TypeSessionStarted = "session-started"
	TypeSessionSync    = "session-sync" // бегущая сессия для вновь вошедшего
	TypeSessionEnded   = "session-ended"
	TypeRoomUpdated    = "room-updated" // глобальное, для списка комнат
	TypeRoomClosed     = "room-closed"  // глобальное: комнаты больше нет
)

// Состояния changedUser в presence-update
const (
	StateJoin         = "join"
	StateLeft         = "left"
	StateOwnerChanged = "ownerChanged"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// --- входящие payload ---

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type StartSessionPayload struct {
	RoomID          string `json:"roomId"`
	DurationSeconds int64  `json:"durationSeconds"`
}

type EndSessionPayload struct {
	RoomID  string `json:"roomId"`
	EndTime int64  `json:"endTime"` // unix ms; 0 — серверное время
}

// --- исходящие payload ---

// AckPayload подтверждает операцию её отправителю; status повторяет
// HTTP-семантику (200/400/404/409/500).
type AckPayload struct {
	Op       string `json:"op"`
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	RoomName string `json:"roomName,omitempty"`
}

type UserRef struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type ChangedUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	State  string `json:"state"` // join|left|ownerChanged
}

type PresenceUpdatePayload struct {
	Users            []UserRef   `json:"users"`
	OwnerID          string      `json:"ownerId"`
	IsOwnerTemporary bool        `json:"isOwnerTemporary"`
	ChangedUser      ChangedUser `json:"changedUser"`
}

// SessionStartedPayload используется и для session-started, и для session-sync.
type SessionStartedPayload struct {
	StartTime   int64 `json:"startTime"` // unix ms
	DurationSec int64 `json:"durationSec"`
}

type SessionEndedPayload struct {
	StartTime   int64 `json:"startTime"` // unix ms
	EndTime     int64 `json:"endTime"`   // unix ms
	DurationSec int64 `json:"durationSec"`
}

type RoomUpdatedPayload struct {
	RoomID            string `json:"roomId"`
	RoomName          string `json:"roomName"`
	ParticipantsCount int    `json:"participantsCount"`
	IsSessionActive   bool   `json:"isSessionActive"`
	SessionStart      *int64 `json:"sessionStart"` // unix ms
	DurationSec       *int64 `json:"durationSec"`
	OwnerID           string `json:"ownerId"`
}

type RoomClosedPayload struct {
	RoomID string `json:"roomId"`
}
