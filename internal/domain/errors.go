package domain

import "errors"

var (
	ErrConnNotFound   = errors.New("connection not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotInRoom      = errors.New("connection not in a room")
	ErrForbidden      = errors.New("action not allowed")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrConnClosed     = errors.New("connection closed")
)
