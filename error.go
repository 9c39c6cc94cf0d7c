package bleperiph

import "github.com/pkg/errors"

var (
	// ErrDisconnected is returned by Conn operations once the link is gone.
	ErrDisconnected = errors.New("disconnected")

	// ErrNotReady is returned when the attribute server is not attached.
	ErrNotReady = errors.New("server not ready")
)
