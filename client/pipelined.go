package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/emirpasic/gods/lists/doublylinkedlist"
	"github.com/pkg/errors"

	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/metrics"
	"github.com/pkopriv2/relay/result"
	"github.com/pkopriv2/relay/supervisor"
)

// inFlight is a request whose reply is still pending on some Channel. timer,
// if non-nil, is the deadline armed for the request back in transmitOne; it
// outlives transmitOne's own return so it can still fire ErrTimeout while
// the reply is awaited here, and is stopped once the handle resolves.
type inFlight[Req, Resp any] struct {
	ctx    context.Context
	req    Req
	handle *result.Handle[Resp]
	ch     channel.Channel
	timer  *time.Timer
}

// Pipelined overlaps request transmission with reply waiting: multiple
// requests may be outstanding on the connection at once. Grounded on
// message/client/tunnel's split sender/receiver pair, generalized from
// bourne's fixed wire envelope to a typed Codec.
type Pipelined[Req, Resp any] struct {
	sup   *supervisor.Supervisor
	codec Codec[Req, Resp]
	opts  options
	ctrl  common.Control

	requests  *queue.Queue
	responses *doublylinkedlist.List
	respMu    chan struct{} // binary semaphore guarding responses

	metrics  *metrics.Connection
	inFlight atomic.Int64
}

// NewPipelined constructs a Pipelined client bound to sup and starts its
// transmit and receive goroutines immediately.
func NewPipelined[Req, Resp any](sup *supervisor.Supervisor, codec Codec[Req, Resp], opts ...Option) *Pipelined[Req, Resp] {
	o := newOptions(opts)
	c := &Pipelined[Req, Resp]{
		sup:       sup,
		codec:     codec,
		opts:      o,
		ctrl:      common.NewControl(nil),
		requests:  queue.New(16),
		responses: doublylinkedlist.New(),
		respMu:    make(chan struct{}, 1),
		metrics:   metrics.NewConnection(o.description),
	}
	c.respMu <- struct{}{}

	go c.transmit()
	go c.receive()
	return c
}

// Request enqueues (req, a fresh handle, timeout) for transmission and
// returns immediately. ctx bounds the request's entire lifetime (canceling
// it fails the handle the same way an expired timeout does); timeout < 0
// disables the deadline, timeout == 0 fails the handle immediately.
func (c *Pipelined[Req, Resp]) Request(ctx context.Context, req Req, timeout time.Duration) *result.Handle[Resp] {
	h := result.New[Resp]()
	if c.ctrl.IsClosed() {
		h.Fail(ErrClosed)
		return h
	}
	if err := c.requests.Put(&request[Req, Resp]{ctx: ctx, req: req, handle: h, timeout: timeout}); err != nil {
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

// Close enqueues the close sentinel on the transmit side. Once processed,
// the underlying supervisor is shut down and all subsequent submissions
// fail with ErrClosed.
func (c *Pipelined[Req, Resp]) Close() error {
	_ = c.requests.Put(closeMarker{})
	return nil
}

func (c *Pipelined[Req, Resp]) lockResponses() {
	<-c.respMu
}

func (c *Pipelined[Req, Resp]) unlockResponses() {
	c.respMu <- struct{}{}
}

func (c *Pipelined[Req, Resp]) transmit() {
	ctx := common.ContextFor(c.ctrl)

	for {
		items, err := c.requests.Get(1)
		if err != nil {
			return
		}

		switch item := items[0].(type) {
		case closeMarker:
			c.sup.Shutdown()
			c.ctrl.Close()
			c.requests.Dispose()
			return
		case *request[Req, Resp]:
			c.transmitOne(ctx, item)
		}
	}
}

func (c *Pipelined[Req, Resp]) transmitOne(ctx context.Context, r *request[Req, Resp]) {
	// r.timer is armed once, on the request's very first transmit attempt,
	// and survives a loss-triggered re-queue (receiveOne passes it through
	// rather than letting transmitOne re-arm it). It deliberately is NOT
	// stopped when this function returns: on the happy path the request is
	// still awaiting its reply in receive(), well short of the deadline, so
	// stopping here would silence ErrTimeout for every in-flight reply.
	// receiveOne stops it once the handle actually resolves.
	if r.timer == nil && r.timeout >= 0 {
		r.timer = time.AfterFunc(r.timeout, func() {
			r.handle.Fail(ErrTimeout)
		})
	}

	// reqCtx bounds sup.Get to this request's own lifetime: the caller's
	// ctx, the client's shutdown, and the timeout/handle resolving above
	// all cut it short, so a request stuck behind a sustained outage
	// never blocks the transmit loop past its own deadline.
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
			stopTimer(r.timer)
			return
		}

		ch, err := c.sup.Get(reqCtx)
		if err != nil {
			if r.handle.Terminal() {
				stopTimer(r.timer)
				return
			}
			if errors.Is(err, supervisor.ErrDeactivated) {
				r.handle.Fail(ErrDeactivated)
				stopTimer(r.timer)
				return
			}
			// reqCtx was canceled: the caller's own ctx or the client
			// shutting down (a fired timeout already resolved the
			// handle above). Surface it so the handle always resolves.
			r.handle.Fail(err)
			stopTimer(r.timer)
			return
		}

		encoded, err := c.codec.Encode(r.req)
		if err != nil {
			r.handle.Fail(errors.Wrap(err, "encoding request"))
			stopTimer(r.timer)
			return
		}

		if err := ch.Enqueue(channel.Msg{Value: encoded}); err != nil {
			select {
			case <-time.After(c.opts.retryInterval):
			case <-c.ctrl.Closed():
				return
			}
			continue
		}
		c.metrics.RequestsSent.Inc(1)

		c.lockResponses()
		c.responses.Add(&inFlight[Req, Resp]{ctx: r.ctx, req: r.req, handle: r.handle, ch: ch, timer: r.timer})
		c.unlockResponses()
		return
	}
}

func (c *Pipelined[Req, Resp]) receive() {
	for {
		select {
		case <-c.ctrl.Closed():
			return
		default:
		}

		c.lockResponses()
		size := c.responses.Size()
		if size == 0 {
			c.unlockResponses()
			select {
			case <-time.After(5 * time.Millisecond):
			case <-c.ctrl.Closed():
				return
			}
			continue
		}
		head, _ := c.responses.Get(0)
		c.responses.Remove(0)
		c.unlockResponses()

		entry := head.(*inFlight[Req, Resp])
		c.receiveOne(entry)
	}
}

func (c *Pipelined[Req, Resp]) receiveOne(entry *inFlight[Req, Resp]) {
	ctx := common.ContextFor(c.ctrl)

	msg, err := entry.ch.Read(ctx)
	if err != nil || msg == nil {
		// connection lost; re-queue for transmission on the next live
		// connection. The original timeout timer, if any, is still armed
		// and carried through so it keeps counting down across the retry
		// instead of being reset.
		if entry.handle.Terminal() {
			stopTimer(entry.timer)
			return
		}
		c.opts.logger.Warn("connection lost, re-queueing: description=%v", c.opts.description)
		_ = c.requests.Put(&request[Req, Resp]{ctx: entry.ctx, req: entry.req, handle: entry.handle, timeout: -1, timer: entry.timer})
		return
	}

	if msg.Err != nil {
		entry.handle.Fail(errors.Wrap(ErrTransport, msg.Err.Error()))
		stopTimer(entry.timer)
		return
	}

	resp, err := c.codec.Decode(msg.Value)
	if err != nil {
		entry.handle.Fail(errors.Wrap(err, "decoding response"))
		stopTimer(entry.timer)
		return
	}
	entry.handle.Complete(resp)
	stopTimer(entry.timer)
}

// stopTimer is a nil-safe time.Timer.Stop, since an unbounded request (a
// negative timeout) never had one armed.
func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
