package client

import "github.com/pkg/errors"

var (
	// ErrTimeout is returned when a request's timeout elapses before a
	// reply is decoded.
	ErrTimeout = errors.New("CLIENT:TIMEOUT")

	// ErrDeactivated is returned by in-flight and future requests once the
	// client's supervisor has been permanently shut down.
	ErrDeactivated = errors.New("CLIENT:DEACTIVATED")

	// ErrTransport wraps an error carried back on a channel.Msg — a
	// decode failure or transport fault the peer reported rather than a
	// connection loss.
	ErrTransport = errors.New("CLIENT:TRANSPORT")

	// ErrClosed is returned by Request once Close has been called.
	ErrClosed = errors.New("CLIENT:CLOSED")
)
