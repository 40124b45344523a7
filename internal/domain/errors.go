package domain

import "errors"

var (
	ErrStreamNotFound   = errors.New("stream not found")
	ErrMissingRoomID    = errors.New("room id is required")
	ErrRoomStopped      = errors.New("room has been stopped")
	ErrSessionUnknown   = errors.New("session not registered with room")
	ErrLimiterUnreached = errors.New("rate limiter unreachable")
)
