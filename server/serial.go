package server

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/metrics"
	"github.com/pkopriv2/relay/result"
)

// Handler invokes the application's request logic, completing slot exactly
// once. A Handler that never completes its slot stalls that reply
// permanently — the server makes no attempt to detect this.
type Handler[Req, Resp any] func(ctx context.Context, slot *result.Handle[Resp], req Req)

// Serial serves requests off a single Channel one at a time: the next
// Read does not begin until the current Handler's slot has resolved,
// mirroring the serial client's one-at-a-time discipline from the other
// end of the wire. Grounded on micro.Server's single-handler-per-request
// loop (micro/core.go), generalized to a typed Codec.
type Serial[Req, Resp any] struct {
	ch      channel.Channel
	handler Handler[Req, Resp]
	codec   Codec[Req, Resp]
	metrics *metrics.Connection
}

// NewSerial constructs a Serial server over ch and starts serving
// immediately on a dedicated goroutine.
func NewSerial[Req, Resp any](ch channel.Channel, handler Handler[Req, Resp], codec Codec[Req, Resp], opts ...Option) *Serial[Req, Resp] {
	o := newOptions(opts)
	s := &Serial[Req, Resp]{
		ch:      ch,
		handler: handler,
		codec:   codec,
		metrics: metrics.NewConnection(o.description),
	}
	go s.run()
	return s
}

// Close closes the underlying Channel, unblocking any pending Read.
func (s *Serial[Req, Resp]) Close() error {
	return s.ch.Close()
}

func (s *Serial[Req, Resp]) run() {
	ctx := context.Background()

	for !s.ch.Drained() {
		msg, err := s.ch.Read(ctx)
		if err != nil {
			return
		}
		if msg == nil {
			return
		}
		if msg.Err != nil {
			continue
		}

		req, err := s.codec.DecodeRequest(msg.Value)
		if err != nil {
			s.metrics.RequestsFailed.Inc(1)
			_ = s.ch.Enqueue(channel.Msg{Err: errors.Wrap(err, "decoding request")})
			continue
		}
		s.metrics.ResponsesRecv.Inc(1)
		s.metrics.RequestsInFlight.Update(1)

		slot := result.New[Resp]()
		s.handler(ctx, slot, req)

		resp, err := slot.Wait(ctx)
		s.metrics.RequestsInFlight.Update(0)
		if err != nil {
			s.metrics.RequestsFailed.Inc(1)
			if s.ch.Enqueue(channel.Msg{Err: err}) != nil {
				return
			}
			continue
		}

		encoded, err := s.codec.EncodeResponse(resp)
		if err != nil {
			s.metrics.RequestsFailed.Inc(1)
			if s.ch.Enqueue(channel.Msg{Err: errors.Wrap(err, "encoding response")}) != nil {
				return
			}
			continue
		}
		if s.ch.Enqueue(channel.Msg{Value: encoded}) != nil {
			return
		}
		s.metrics.RequestsSent.Inc(1)
	}
}
