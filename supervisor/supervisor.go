// Package supervisor implements the persistent-connection supervisor: it
// keeps exactly one live Channel available to its owner, reconnecting with
// exponential backoff whenever the connection attempt fails or the live
// connection is lost. Grounded on msg.Connector's retry-on-failure idiom
// (net/conn.go), generalized from a synchronous retry-on-next-call to an
// asynchronous, continuously-supervised connection with a publish/subscribe
// handoff instead of a mutex-guarded field.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/pkopriv2/relay/backoff"
	"github.com/pkopriv2/relay/channel"
	"github.com/pkopriv2/relay/common"
	"github.com/pkopriv2/relay/metrics"
	"github.com/pkopriv2/relay/result"
)

// ErrDeactivated is returned by Get once the supervisor has been shut down.
var ErrDeactivated = errors.New("SUPERVISOR:DEACTIVATED")

// GenerateFunc produces a freshly opened Channel, or an error if the
// attempt failed. Supplied by the caller; may perform a network dial and
// handshake.
type GenerateFunc func(ctx context.Context) (channel.Channel, error)

// Outcome is the tagged union published on the supervisor's current
// connection handle: either a live Channel, or the closed sentinel once
// the supervisor has shut down.
type Outcome struct {
	Channel channel.Channel
	Epoch   uuid.UUID
	Closed  bool
}

const (
	stateDisconnected = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Supervisor owns exactly one live connection at a time, reconnecting with
// backoff on failure or loss. Construct with New; Get and Shutdown are safe
// to call from any goroutine.
type Supervisor struct {
	description string
	generate    GenerateFunc
	onConnect   func(channel.Channel)
	backoff     backoff.Policy
	ctrl        common.Control
	logger      common.Logger
	metrics     *metrics.Connection

	current atomic.Pointer[result.Handle[Outcome]]
	halt    *result.Signal
}

type options struct {
	description string
	onConnect   func(channel.Channel)
	backoff     backoff.Policy
	control     common.Control
	logger      common.Logger
}

// Option configures a Supervisor at construction time.
type Option func(*options)

// WithDescription sets the log tag used for every message this supervisor
// emits. Defaults to "unknown".
func WithDescription(d string) Option {
	return func(o *options) { o.description = d }
}

// WithOnConnect registers a callback run synchronously after each
// successful connect, before the Channel is published to Get() callers.
func WithOnConnect(fn func(channel.Channel)) Option {
	return func(o *options) { o.onConnect = fn }
}

// WithBackoff overrides the default 500ms/64s backoff policy.
func WithBackoff(p backoff.Policy) Option {
	return func(o *options) { o.backoff = p }
}

// WithControl parents the supervisor's lifecycle under a caller-owned
// Control tree; closing the parent shuts the supervisor down.
func WithControl(c common.Control) Option {
	return func(o *options) { o.control = c }
}

// WithLogger overrides the default standard logger.
func WithLogger(l common.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New constructs a Supervisor and starts its reconnect loop immediately.
func New(generate GenerateFunc, opts ...Option) *Supervisor {
	o := options{
		description: "unknown",
		logger:      common.NewStandardLogger(common.NewEmptyConfig()),
	}
	for _, fn := range opts {
		fn(&o)
	}

	ctrl := o.control
	if ctrl == nil {
		ctrl = common.NewControl(nil)
	} else {
		ctrl = ctrl.Sub()
	}

	s := &Supervisor{
		description: o.description,
		generate:    generate,
		onConnect:   o.onConnect,
		backoff:     o.backoff,
		ctrl:        ctrl,
		logger:      o.logger,
		metrics:     metrics.NewConnection(o.description),
		halt:        result.NewSignal(),
	}

	s.current.Store(result.New[Outcome]())

	ctrl.OnClose(func(error) { s.halt.Fire() })

	go s.run()
	return s
}

// Get returns the supervisor's current connection, blocking (respecting
// ctx) until a handle resolves. Transient generator failures are ridden
// out internally — Get only ever returns a live Channel, ErrDeactivated,
// or ctx's own cancellation error.
func (s *Supervisor) Get(ctx context.Context) (channel.Channel, error) {
	for {
		h := s.current.Load()
		outcome, err := h.Wait(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			// a transient generator failure resolved this handle; the
			// supervisor loop has already published (or is about to
			// publish) the next one.
			continue
		}
		if outcome.Closed {
			return nil, ErrDeactivated
		}
		return outcome.Channel, nil
	}
}

// Shutdown idempotently requests permanent shutdown. The next connection
// handle observed via Get becomes the closed sentinel, and any live
// Channel is closed.
func (s *Supervisor) Shutdown() {
	s.ctrl.Close()
}

func (s *Supervisor) publish(o Outcome) {
	// resolve the pending handle Get callers may already be waiting on;
	// only replace it when it has already resolved.
	if s.current.Load().Complete(o) {
		return
	}
	h := result.New[Outcome]()
	h.Complete(o)
	s.current.Store(h)
}

func (s *Supervisor) failCurrent(err error) {
	cur := s.current.Load()
	cur.Fail(err)
	s.current.Store(result.New[Outcome]())
}

func (s *Supervisor) run() {
	ctx := common.ContextFor(s.ctrl)

	state := stateDisconnected
	delay := s.backoff.Reset()
	var live channel.Channel

	for {
		switch state {
		case stateClosed:
			if live != nil {
				live.Close()
			}
			s.publish(Outcome{Closed: true})
			return

		case stateDisconnected:
			if delay > 0 {
				s.logger.Warn("reconnecting: description=%v delay=%v", s.description, delay)
				<-common.NewTimer(s.ctrl, delay)
			}

			if s.halt.Fired() {
				state = stateClosed
				continue
			}
			state = stateConnecting

		case stateConnecting:
			s.metrics.ReconnectAttempts.Inc(1)

			ch, err := s.generate(ctx)
			if err != nil {
				s.logger.Warn("generator failed: description=%v err=%v", s.description, err)
				s.failCurrent(errors.Wrap(err, "generating connection"))
				delay = s.backoff.Next(delay)
				s.metrics.BackoffDelayMs.Update(int64(delay / time.Millisecond))
				state = stateDisconnected
				continue
			}

			delay = s.backoff.Reset()
			s.metrics.BackoffDelayMs.Update(0)
			s.metrics.ReconnectSuccess.Inc(1)

			if s.onConnect != nil {
				s.onConnect(ch)
			}

			epoch := uuid.NewV4()
			s.logger.Info("connected: description=%v epoch=%v", s.description, epoch)

			live = ch
			s.publish(Outcome{Channel: ch, Epoch: epoch})
			state = stateConnected

		case stateConnected:
			lost := s.awaitLoss(live)
			select {
			case <-lost:
				s.metrics.ReconnectLosses.Inc(1)
				s.logger.Warn("connection lost: description=%v", s.description)
				// fail the current handle so Get callers observing the
				// dead connection block on a fresh one instead of
				// spinning against a stale, already-resolved handle
				// while the next generate() call is in flight.
				s.failCurrent(errors.New("connection lost"))
			case <-s.halt.C():
			}

			if s.halt.Fired() {
				state = stateClosed
				continue
			}
			state = stateDisconnected
		}
	}
}

// awaitLoss forks ch and reads it to exhaustion on a dedicated goroutine,
// reporting back over the returned channel once the fork drains or errors.
// This mirrors msg.Connector's retry-on-read-failure idiom, generalized
// from a synchronous retry to an async, continuously-forked observer.
func (s *Supervisor) awaitLoss(ch channel.Channel) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		fork := ch.Fork()
		defer fork.Close()

		for {
			msg, err := fork.Read(context.Background())
			if err != nil {
				return
			}
			if msg == nil {
				return
			}
		}
	}()

	return done
}
