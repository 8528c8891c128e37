package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNoActiveSession = errors.New("no active session for this room")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPersistence оборачивает ошибки durable-хранилища; причина доступна через errors.Unwrap.
	ErrPersistence = errors.New("persistence failed")
)
