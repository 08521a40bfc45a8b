package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrStoreClosed       = errors.New("store is closed")
	ErrInflightExhausted = errors.New("no packet identifiers available")
)
