package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrUpstream      = errors.New("upstream error")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrMalformedData = errors.New("malformed payload")
	ErrLockHeld      = errors.New("lock already held")
)
