package network

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrListenerClosed   = errors.New("listener closed")
)
