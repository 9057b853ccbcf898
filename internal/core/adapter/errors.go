package adapter

import "errors"

// Adapter errors
var (
	ErrNotConnected     = errors.New("adapter is not connected")
	ErrConnectFailed    = errors.New("adapter connect failed")
	ErrPushFailed       = errors.New("push failed")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrNoTransport      = errors.New("adapter has no transport configured")
	ErrInvalidHousehold = errors.New("household id is required")
	ErrInvalidUser      = errors.New("user id is required")
)
