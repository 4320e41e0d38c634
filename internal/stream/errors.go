package stream

import "errors"

// Sentinel errors for the connection lifecycle.
var (
	ErrNoToken          = errors.New("no session token")
	ErrAuthRejected     = errors.New("stream authentication rejected")
	ErrNotConnected     = errors.New("stream not connected")
	ErrRetriesExhausted = errors.New("stream reconnect attempts exhausted")
)
