// Package client provides the serial and pipelined request/response
// clients built on top of a supervisor.Supervisor. Grounded on
// micro/core.go's Client interface (Send(Request) (Response, error)),
// generalized to typed requests/responses driven by a user-supplied Codec
// instead of micro's fixed Request/Response envelope.
package client

// Codec bridges a typed client/server API to the opaque values carried on
// a channel.Msg. Encode runs on the client's consumer (transmit) goroutine
// before Enqueue; Decode runs on the consumer (receive) goroutine after a
// successful Read.
type Codec[Req, Resp any] interface {
	Encode(Req) (interface{}, error)
	Decode(interface{}) (Resp, error)
}
