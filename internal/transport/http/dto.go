package http

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateRoomRequest struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type CreateRoomResponse struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type UserSessionsResponse struct {
	SessionCount         int64 `json:"sessionCount"`
	TotalSessionDuration int64 `json:"totalSessionDuration"` // секунды
}

type UserRoomParticipant struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type UserRoomItem struct {
	RoomID          string                `json:"roomId"`
	RoomName        string                `json:"roomName"`
	Participants    []UserRoomParticipant `json:"participants"`
	IsSessionActive bool                  `json:"isSessionActive"`
}
