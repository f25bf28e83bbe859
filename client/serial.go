package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/pkg/errors"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/metrics"
	"github.com/pkopriv2/relay/result"
	"github.com/pkopriv2/relay/supervisor"
)

// request is a single submission awaiting transmission or reply. ctx is the
// caller's own context, kept alongside timeout so either can cut the wait
// short. timer is nil until a deadline has been armed for it; once armed it
// follows the request across a pipelined re-queue so loss-and-retry doesn't
// re-arm (and doesn't lose) the original deadline.
type request[Req, Resp any] struct {
	ctx     context.Context
	req     Req
	handle  *result.Handle[Resp]
	timeout time.Duration
	timer   *time.Timer
}

// Serial sends requests one at a time over a supervisor's connection,
// delivering responses to callers in submission order. Grounded on
// micro.Client's synchronous Send, generalized to an async queue-fed
// consumer so Request never blocks the caller.
type Serial[Req, Resp any] struct {
	sup      *supervisor.Supervisor
	codec    Codec[Req, Resp]
	opts     options
	ctrl     common.Control
	pending  *queue.Queue
	metrics  *metrics.Connection
	inFlight atomic.Int64
}

// NewSerial constructs a Serial client bound to sup and starts its
// consumer goroutine immediately.
func NewSerial[Req, Resp any](sup *supervisor.Supervisor, codec Codec[Req, Resp], opts ...Option) *Serial[Req, Resp] {
	o := newOptions(opts)
	c := &Serial[Req, Resp]{
		sup:     sup,
		codec:   codec,
		opts:    o,
		ctrl:    common.NewControl(nil),
		pending: queue.New(16),
		metrics: metrics.NewConnection(o.description),
	}
	go c.run()
	return c
}

// Request enqueues (req, a fresh handle, timeout) for transmission and
// returns immediately. ctx bounds the request's entire lifetime (canceling
// it fails the handle the same way an expired timeout does); timeout < 0
// disables the deadline, timeout == 0 fails the handle immediately.
func (c *Serial[Req, Resp]) Request(ctx context.Context, req Req, timeout time.Duration) *result.Handle[Resp] {
	h := result.New[Resp]()
	if c.ctrl.IsClosed() {
		h.Fail(ErrClosed)
		return h
	}
	if err := c.pending.Put(&request[Req, Resp]{ctx: ctx, req: req, handle: h, timeout: timeout}); err != nil {
		h.Fail(errors.Wrap(err, "enqueueing request"))
		return h
	}

	c.metrics.RequestsInFlight.Update(c.inFlight.Add(1))
	go func() {
		<-h.Done()
		c.metrics.RequestsInFlight.Update(c.inFlight.Add(-1))
		if _, err := h.Get(); err != nil {
			c.metrics.RequestsFailed.Inc(1)
		} else {
			c.metrics.ResponsesRecv.Inc(1)
		}
	}()
	return h
}

// Close enqueues the close sentinel. Once processed, the underlying
// supervisor is shut down and all subsequent submissions fail with
// ErrClosed.
func (c *Serial[Req, Resp]) Close() error {
	_ = c.pending.Put(closeMarker{})
	return nil
}

func (c *Serial[Req, Resp]) run() {
	ctx := common.ContextFor(c.ctrl)

	for {
		items, err := c.pending.Get(1)
		if err != nil {
			// queue disposed
			return
		}

		switch item := items[0].(type) {
		case closeMarker:
			c.sup.Shutdown()
			c.ctrl.Close()
			c.pending.Dispose()
			return
		case *request[Req, Resp]:
			c.process(ctx, item)
		}
	}
}

func (c *Serial[Req, Resp]) process(ctx context.Context, r *request[Req, Resp]) {
	var timer *time.Timer
	if r.timeout >= 0 {
		timer = time.AfterFunc(r.timeout, func() {
			r.handle.Fail(ErrTimeout)
		})
		defer timer.Stop()
	}

	// reqCtx bounds sup.Get/ch.Read to this request's own lifetime: the
	// caller's ctx, the client's shutdown, and the timeout/handle
	// resolving above all cut it short, so a sustained outage or a
	// silent server never blocks this consumer goroutine past the
	// request's own deadline.
	reqCtx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	go func() {
		select {
		case <-r.handle.Done():
			cancel()
		case <-ctx.Done():
			cancel()
		case <-reqCtx.Done():
		}
	}()

	for {
		if r.handle.Terminal() {
			return
		}

		ch, err := c.sup.Get(reqCtx)
		if err != nil {
			if r.handle.Terminal() {
				return
			}
			if errors.Is(err, supervisor.ErrDeactivated) {
				r.handle.Fail(ErrDeactivated)
				return
			}
			// reqCtx was canceled: the caller's own ctx or the client
			// shutting down (a fired timeout already resolved the
			// handle above). Surface it so the handle always resolves.
			r.handle.Fail(err)
			return
		}

		encoded, err := c.codec.Encode(r.req)
		if err != nil {
			r.handle.Fail(errors.Wrap(err, "encoding request"))
			return
		}
		if err := ch.Enqueue(channel.Msg{Value: encoded}); err != nil {
			continue
		}
		c.metrics.RequestsSent.Inc(1)

		msg, err := ch.Read(reqCtx)
		if err != nil {
			if r.handle.Terminal() {
				return
			}
			c.opts.logger.Warn("read failed: description=%v err=%v", c.opts.description, err)
			continue
		}
		if msg == nil {
			if r.handle.Terminal() {
				return
			}
			// connection lost; retry once a new connection is published.
			c.opts.logger.Warn("connection lost mid-request: description=%v", c.opts.description)
			continue
		}

		if msg.Err != nil {
			r.handle.Fail(errors.Wrap(ErrTransport, msg.Err.Error()))
			return
		}

		resp, err := c.codec.Decode(msg.Value)
		if err != nil {
			r.handle.Fail(errors.Wrap(err, "decoding response"))
			return
		}
		r.handle.Complete(resp)
		return
	}
}
