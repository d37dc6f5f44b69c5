package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrVenue             = errors.New("venue error")
	ErrNoLiquidity       = errors.New("no liquidity")
	ErrStore             = errors.New("store error")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrNotSynced         = errors.New("book not synced")
	ErrLockHeld          = errors.New("lock already held")
)
