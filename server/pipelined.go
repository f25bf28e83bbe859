package server

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/metrics"
	"github.com/pkopriv2/relay/result"
)

func defaultGOMAXPROCS() int {
	return runtime.GOMAXPROCS(0)
}

// pendingReply holds a request-arrival-ordered reply slot; the response
// loop awaits it and writes back whatever it resolves to.
type pendingReply[Resp any] struct {
	slot *result.Handle[Resp]
}

// Pipelined serves requests off a single Channel with handler execution
// overlapped up to WithWorkers(n) concurrent invocations, while replies
// are still emitted strictly in request-arrival order. Grounded on
// micro.Server's handler dispatch, generalized from one handler per
// Server to a bounded worker pool per Channel (common.WorkPool), per
// message/client/tunnel's split request/response loop idiom mirrored from
// the receiving side.
type Pipelined[Req, Resp any] struct {
	ch      channel.Channel
	handler Handler[Req, Resp]
	codec   Codec[Req, Resp]
	pool    common.WorkPool
	slots   *queue.Queue

	metrics  *metrics.Connection
	inFlight atomic.Int64
}

// NewPipelined constructs a Pipelined server over ch and starts serving
// immediately on two dedicated goroutines.
func NewPipelined[Req, Resp any](ch channel.Channel, handler Handler[Req, Resp], codec Codec[Req, Resp], opts ...Option) *Pipelined[Req, Resp] {
	o := newOptions(opts)
	workers := o.workers
	if workers <= 0 {
		workers = defaultGOMAXPROCS()
	}
	workers = common.Max(1, workers)

	s := &Pipelined[Req, Resp]{
		ch:      ch,
		handler: handler,
		codec:   codec,
		pool:    common.NewWorkPool(common.NewControl(nil), workers),
		slots:   queue.New(16),
		metrics: metrics.NewConnection(o.description),
	}

	go s.requestLoop()
	go s.responseLoop()
	return s
}

// Close closes the underlying Channel and the handler worker pool.
func (s *Pipelined[Req, Resp]) Close() error {
	_ = s.ch.Close()
	return s.pool.Close()
}

func (s *Pipelined[Req, Resp]) requestLoop() {
	ctx := context.Background()

	for !s.ch.Drained() {
		msg, err := s.ch.Read(ctx)
		if err != nil || msg == nil {
			for _, item := range s.slots.Dispose() {
				item.(*pendingReply[Resp]).slot.Fail(ErrConnectionClosed)
			}
			return
		}

		slot := result.New[Resp]()
		if err := s.slots.Put(&pendingReply[Resp]{slot: slot}); err != nil {
			return
		}

		if msg.Err != nil {
			s.metrics.RequestsFailed.Inc(1)
			slot.Fail(errors.Wrap(msg.Err, "decoding request"))
			continue
		}

		req, err := s.codec.DecodeRequest(msg.Value)
		if err != nil {
			s.metrics.RequestsFailed.Inc(1)
			slot.Fail(errors.Wrap(err, "decoding request"))
			continue
		}
		s.metrics.ResponsesRecv.Inc(1)
		s.metrics.RequestsInFlight.Update(s.inFlight.Add(1))

		h := s.handler
		submitErr := s.pool.Submit(func() {
			h(ctx, slot, req)
		})
		if submitErr != nil {
			slot.Fail(errors.Wrap(submitErr, "submitting handler"))
		}
	}
}

func (s *Pipelined[Req, Resp]) responseLoop() {
	ctx := context.Background()

	for {
		items, err := s.slots.Get(1)
		if err != nil {
			return
		}
		entry := items[0].(*pendingReply[Resp])

		resp, err := entry.slot.Wait(ctx)
		s.metrics.RequestsInFlight.Update(s.inFlight.Add(-1))
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
