package webchannel

import "errors"

var (
	// ErrClosed is returned when dispatching to or listening on a closed transport.
	ErrClosed = errors.New("webchannel: transport closed")

	// ErrTimeout is returned by Request when no matching response arrives in time.
	ErrTimeout = errors.New("webchannel: request timed out")
)
