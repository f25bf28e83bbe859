// Package server provides the serial and pipelined request handlers that
// run atop a channel.Channel, mirroring client's Serial/Pipelined from the
// receiving side. Grounded on micro/core.go's Server/Handler pair.
package server

import "github.com/pkg/errors"

// ErrConnectionClosed is surfaced by the pipelined server to every reply
// slot still queued when the underlying Channel drains. The serial server
// does not use it: when its Channel drains it stops reading and leaves the
// slot of a handler still running to that handler.
var ErrConnectionClosed = errors.New("SERVER:CONNECTION_CLOSED")
