// Package channel defines the Channel primitive: an ordered, asynchronous,
// closable queue of messages, with two concrete implementations — an
// in-process pair for tests and the demo, and a length-prefixed framed
// adapter over any io.ReadWriteCloser such as a net.Conn.
package channel

import (
	"context"

	"github.com/pkg/errors"
)

// ErrChannelClosed is returned by Enqueue once a Channel has been closed.
// Read does not return it: a closed Channel reads as drained, (nil, nil).
var ErrChannelClosed = errors.New("CHANNEL:CLOSED")

// Msg is the unit of exchange on a Channel. Exactly one of Value or Err is
// meaningful; a transport-level failure (decode error, broken stream) is
// carried as Err rather than terminating the Channel outright, letting
// callers decide whether a single bad message should end the connection.
type Msg struct {
	Value interface{}
	Err   error
}

// Channel is an ordered, asynchronous, closable queue of messages.
// Implementations must be safe for concurrent Enqueue and Read, and Close
// must be safe to call more than once.
type Channel interface {
	// Enqueue appends msg to the outbound side of the channel. Returns
	// ErrChannelClosed if the channel has already been closed.
	Enqueue(Msg) error

	// Read blocks until a message is available, the channel is drained, or
	// ctx is done. Returns (nil, nil) once the channel is closed and every
	// buffered message has been delivered — the drained signal.
	Read(ctx context.Context) (*Msg, error)

	// Close closes the channel. Idempotent.
	Close() error

	// Drained reports whether the channel is closed and has no further
	// buffered messages to deliver, without blocking.
	Drained() bool

	// Fork returns a new, independent reader over this channel's message
	// stream from this point forward. Forking does not consume messages
	// from the original reader or from any other fork; it is used by the
	// supervisor to watch for connection loss without interfering with
	// application-level reads.
	Fork() Channel
}
